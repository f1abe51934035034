package block

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/botforge/chatflow/model"
	"github.com/stretchr/testify/require"
)

func TestWebhookBlock(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, client *resty.Client,
	){
		"test response mapping":        testWebhookResponseMapping,
		"test substituted request":     testWebhookSubstitutedRequest,
		"test save raw body":           testWebhookSaveRawBody,
		"test error status continues":  testWebhookErrorStatusContinues,
		"test unreachable continues":   testWebhookUnreachableContinues,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, resty.New().SetRetryCount(0))
		})
	}
}

func testWebhookResponseMapping(t *testing.T, client *resty.Client) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{"id": "ord-42", "total": 19.9},
		})
	}))
	defer server.Close()

	b := NewWebhookBlock(model.WebhookDef{
		Method: "GET",
		Url:    server.URL,
		ResponseMap: map[string]string{
			"orderId":    "$.order.id",
			"orderTotal": "$.order.total",
			"missing":    "$.order.nope",
		},
	}, client, NewBaseBlock("hook", model.BLOCK_TYPE_WEBHOOK, "next-block"))

	res := b.Evaluate(&model.ExecutionContext{Variables: map[string]any{}}, nil)
	require.Equal(t, model.STEP_ACTION, res.Kind)
	require.Equal(t, "next-block", res.Next)
	require.Equal(t, "ord-42", res.Vars["orderId"])
	require.Equal(t, 19.9, res.Vars["orderTotal"])
	require.NotContains(t, res.Vars, "missing")
}

func testWebhookSubstitutedRequest(t *testing.T, client *resty.Client) {
	var gotPath, gotHeader, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Api-Key")
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	b := NewWebhookBlock(model.WebhookDef{
		Method:  "POST",
		Url:     server.URL + "/customers/{{customerId}}",
		Headers: map[string]string{"X-Api-Key": "{{apiKey}}"},
		Body:    `{"name":"{{name}}"}`,
	}, client, NewBaseBlock("hook", model.BLOCK_TYPE_WEBHOOK, "next-block"))

	vars := map[string]any{"customerId": "c-7", "apiKey": "secret", "name": "Ana"}
	res := b.Evaluate(&model.ExecutionContext{Variables: vars}, nil)
	require.Equal(t, model.STEP_ACTION, res.Kind)
	require.Equal(t, "/customers/c-7", gotPath)
	require.Equal(t, "secret", gotHeader)
	require.Equal(t, `{"name":"Ana"}`, gotBody)
}

func testWebhookSaveRawBody(t *testing.T, client *resty.Client) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text reply"))
	}))
	defer server.Close()

	b := NewWebhookBlock(model.WebhookDef{
		Method: "GET",
		Url:    server.URL,
		SaveAs: "raw",
	}, client, NewBaseBlock("hook", model.BLOCK_TYPE_WEBHOOK, "next-block"))

	res := b.Evaluate(&model.ExecutionContext{Variables: map[string]any{}}, nil)
	require.Equal(t, "plain text reply", res.Vars["raw"])
}

func testWebhookErrorStatusContinues(t *testing.T, client *resty.Client) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b := NewWebhookBlock(model.WebhookDef{
		Method: "GET",
		Url:    server.URL,
		SaveAs: "raw",
	}, client, NewBaseBlock("hook", model.BLOCK_TYPE_WEBHOOK, "next-block"))

	res := b.Evaluate(&model.ExecutionContext{Variables: map[string]any{}}, nil)
	require.Equal(t, model.STEP_ACTION, res.Kind)
	require.Equal(t, "next-block", res.Next)
	require.Empty(t, res.Vars)
}

func testWebhookUnreachableContinues(t *testing.T, client *resty.Client) {
	b := NewWebhookBlock(model.WebhookDef{
		Method:         "GET",
		Url:            "http://127.0.0.1:1",
		TimeoutSeconds: 1,
	}, client, NewBaseBlock("hook", model.BLOCK_TYPE_WEBHOOK, "next-block"))

	res := b.Evaluate(&model.ExecutionContext{Variables: map[string]any{}}, nil)
	require.Equal(t, model.STEP_ACTION, res.Kind)
	require.Equal(t, "next-block", res.Next)
}

func TestWebhookBlockValidate(t *testing.T) {
	base := NewBaseBlock("hook", model.BLOCK_TYPE_WEBHOOK, "next-block")
	require.Error(t, NewWebhookBlock(model.WebhookDef{Method: "GET"}, nil, base).Validate())
	require.Error(t, NewWebhookBlock(model.WebhookDef{Method: "TRACE", Url: "http://x"}, nil, base).Validate())
	require.NoError(t, NewWebhookBlock(model.WebhookDef{Method: "post", Url: "http://x"}, nil, base).Validate())
}

package block

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
	"github.com/oliveagle/jsonpath"
	"go.uber.org/zap"
)

const defaultWebhookTimeout = 10 * time.Second
const maxWebhookTimeout = 30 * time.Second

var _ Block = new(webhookBlock)

type webhookBlock struct {
	baseBlock
	webhook model.WebhookDef
	client  *resty.Client
}

func NewWebhookBlock(webhook model.WebhookDef, client *resty.Client, base baseBlock) *webhookBlock {
	return &webhookBlock{
		baseBlock: base,
		webhook:   webhook,
		client:    client,
	}
}

func (b *webhookBlock) Validate() error {
	if b.webhook.Url == "" {
		return fmt.Errorf("blockId=%s, webhook block must have a url", b.id)
	}
	switch strings.ToUpper(b.webhook.Method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("blockId=%s, unsupported webhook method %s", b.id, b.webhook.Method)
	}
	return nil
}

func (b *webhookBlock) timeout() time.Duration {
	t := time.Duration(b.webhook.TimeoutSeconds) * time.Second
	if t <= 0 {
		return defaultWebhookTimeout
	}
	if t > maxWebhookTimeout {
		return maxWebhookTimeout
	}
	return t
}

// Evaluate performs the outbound call with variable substitution on all
// string fields. A failed call is logged and the flow continues to the
// outgoing target; webhook failures must not hang the flow.
func (b *webhookBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	res := model.StepResult{
		Kind: model.STEP_ACTION,
		Next: b.next,
	}
	vars := flowCtx.Variables
	url := util.Substitute(b.webhook.Url, vars)

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout())
	defer cancel()
	req := b.client.R().SetContext(ctx)
	for name, value := range b.webhook.Headers {
		req.SetHeader(name, util.Substitute(value, vars))
	}
	if b.webhook.Body != "" {
		req.SetBody(util.Substitute(b.webhook.Body, vars))
	}

	resp, err := req.Execute(strings.ToUpper(b.webhook.Method), url)
	if err != nil {
		logger.Warn("webhook call failed, continuing flow",
			zap.String("blockId", b.id), zap.String("url", url), zap.Error(err))
		return res
	}
	if resp.IsError() {
		logger.Warn("webhook call returned error status, continuing flow",
			zap.String("blockId", b.id), zap.String("url", url), zap.Int("status", resp.StatusCode()))
		return res
	}
	res.Vars = b.mapResponse(resp.Body())
	return res
}

// mapResponse applies the authored variable -> jsonpath mapping to the
// response body. Non-JSON bodies are stored whole under SaveAs.
func (b *webhookBlock) mapResponse(body []byte) map[string]any {
	vars := make(map[string]any)
	if b.webhook.SaveAs != "" {
		vars[b.webhook.SaveAs] = string(body)
	}
	if len(b.webhook.ResponseMap) == 0 {
		return vars
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		logger.Warn("webhook response is not json, skipping response map",
			zap.String("blockId", b.id), zap.Error(err))
		return vars
	}
	for name, path := range b.webhook.ResponseMap {
		value, err := jsonpath.JsonPathLookup(decoded, path)
		if err != nil {
			logger.Warn("webhook response path not found",
				zap.String("blockId", b.id), zap.String("variable", name), zap.String("path", path))
			continue
		}
		vars[name] = value
	}
	return vars
}

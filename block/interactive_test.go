package block

import (
	"testing"

	"github.com/botforge/chatflow/model"
	"github.com/stretchr/testify/require"
)

func menuList() model.ListPayload {
	return model.ListPayload{
		Body:       "Pick a department, {{name}}",
		ButtonText: "Open",
		Sections: []model.ListSection{
			{Title: "Shop", Rows: []model.ListRow{
				{Id: "sales", Title: "Sales", Target: "sales-block"},
				{Id: "billing", Title: "Billing", Target: "billing-block"},
			}},
			{Title: "Help", Rows: []model.ListRow{
				{Id: "support", Title: "Support", Target: "support-block"},
			}},
		},
	}
}

func TestInteractiveListBlock(t *testing.T) {
	b := NewInteractiveListBlock(menuList(), NewBaseBlock("menu", model.BLOCK_TYPE_INTERACTIVE_LIST, ""))
	flowCtx := &model.ExecutionContext{
		ConversationId: "conv-1",
		Variables:      map[string]any{"name": "Ana"},
	}

	// no reply yet: prompt and suspend
	res := b.Evaluate(flowCtx, nil)
	require.Equal(t, model.STEP_AWAIT, res.Kind)
	require.NotNil(t, res.Message.List)
	require.Equal(t, "Pick a department, Ana", res.Message.List.Body)

	for scenario, tc := range map[string]struct {
		event model.InboundEvent
		want  string
	}{
		"resolve by row id":           {event: model.InboundEvent{ChoiceId: "billing"}, want: "billing-block"},
		"resolve by title":            {event: model.InboundEvent{Text: "Support"}, want: "support-block"},
		"title match ignores case":    {event: model.InboundEvent{Text: "sAlEs"}, want: "sales-block"},
		"choice id wins over text":    {event: model.InboundEvent{ChoiceId: "support", Text: "Sales"}, want: "support-block"},
	} {
		t.Run(scenario, func(t *testing.T) {
			res := b.Evaluate(flowCtx, &tc.event)
			require.Equal(t, model.STEP_EMIT, res.Kind)
			require.Equal(t, tc.want, res.Next)
			require.Equal(t, tc.want, res.ChosenTarget)
		})
	}

	res = b.Evaluate(flowCtx, &model.InboundEvent{Text: "something else"})
	require.Equal(t, model.STEP_ERROR, res.Kind)
	require.True(t, res.Recoverable)
	require.Equal(t, "something else", res.UserInput)
}

func TestInteractiveListValidate(t *testing.T) {
	base := NewBaseBlock("menu", model.BLOCK_TYPE_INTERACTIVE_LIST, "")

	require.NoError(t, NewInteractiveListBlock(menuList(), base).Validate())

	empty := model.ListPayload{Body: "b", ButtonText: "Open"}
	require.Error(t, NewInteractiveListBlock(empty, base).Validate())

	dup := menuList()
	dup.Sections[1].Rows[0].Id = "sales"
	require.Error(t, NewInteractiveListBlock(dup, base).Validate())

	tooMany := model.ListPayload{Body: "b", ButtonText: "Open"}
	for i := 0; i < model.MAX_LIST_SECTIONS+1; i++ {
		tooMany.Sections = append(tooMany.Sections, model.ListSection{
			Rows: []model.ListRow{{Id: string(rune('a' + i)), Title: "t", Target: "x"}},
		})
	}
	require.Error(t, NewInteractiveListBlock(tooMany, base).Validate())
}

func TestInteractiveButtonsBlock(t *testing.T) {
	buttons := []model.ButtonDef{
		{Id: "yes", Title: "Yes", Target: "yes-block"},
		{Id: "no", Title: "No", Target: "no-block"},
	}
	b := NewInteractiveButtonsBlock("Confirm, {{name}}?", buttons, NewBaseBlock("confirm", model.BLOCK_TYPE_INTERACTIVE_BUTTONS, ""))
	flowCtx := &model.ExecutionContext{
		ConversationId: "conv-1",
		Variables:      map[string]any{"name": "Ana"},
	}

	res := b.Evaluate(flowCtx, nil)
	require.Equal(t, model.STEP_AWAIT, res.Kind)
	require.Equal(t, "Confirm, Ana?", res.Message.Text)
	require.Len(t, res.Message.Buttons, 2)

	res = b.Evaluate(flowCtx, &model.InboundEvent{ChoiceId: "no"})
	require.Equal(t, model.STEP_EMIT, res.Kind)
	require.Equal(t, "no-block", res.Next)
	require.Equal(t, "no", res.UserInput)

	res = b.Evaluate(flowCtx, &model.InboundEvent{Text: "yes"})
	require.Equal(t, model.STEP_EMIT, res.Kind)
	require.Equal(t, "yes-block", res.Next)

	res = b.Evaluate(flowCtx, &model.InboundEvent{Text: "maybe"})
	require.Equal(t, model.STEP_ERROR, res.Kind)
	require.True(t, res.Recoverable)
}

func TestInteractiveButtonsValidate(t *testing.T) {
	base := NewBaseBlock("confirm", model.BLOCK_TYPE_INTERACTIVE_BUTTONS, "")

	require.Error(t, NewInteractiveButtonsBlock("t", nil, base).Validate())

	four := []model.ButtonDef{
		{Id: "a", Title: "A", Target: "x"},
		{Id: "b", Title: "B", Target: "x"},
		{Id: "c", Title: "C", Target: "x"},
		{Id: "d", Title: "D", Target: "x"},
	}
	require.Error(t, NewInteractiveButtonsBlock("t", four, base).Validate())

	dup := []model.ButtonDef{
		{Id: "a", Title: "A", Target: "x"},
		{Id: "a", Title: "B", Target: "y"},
	}
	require.Error(t, NewInteractiveButtonsBlock("t", dup, base).Validate())
}

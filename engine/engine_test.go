package engine

import (
	"testing"
	"time"

	"github.com/botforge/chatflow/metadata"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence/inmem"
	"github.com/stretchr/testify/require"
)

func TestEngine(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, h *harness,
	){
		"test greeting to handoff":              testGreetingToHandoff,
		"test unmatched choice is recoverable":  testUnmatchedChoiceRecoverable,
		"test delay token gating":               testDelayTokenGating,
		"test step bound stops cycles":          testStepBoundStopsCycles,
		"test duplicate event deduped":          testDuplicateEventDeduped,
		"test condition routing":                testConditionRouting,
		"test restart after terminal":           testRestartAfterTerminal,
		"test keyword trigger starts flow":      testKeywordTriggerStartsFlow,
		"test cancel pauses execution":          testCancelPausesExecution,
		"test tags applied through action":      testTagsAppliedThroughAction,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newHarness(t))
		})
	}
}

type harness struct {
	engine    *Engine
	storage   *inmem.Storage
	metadata  metadata.Service
	transport *fakeTransport
	scheduler *fakeScheduler
}

func newHarness(t *testing.T) *harness {
	storage := inmem.NewStorage()
	metadataService := metadata.NewService(storage.Metadata())
	tr := &fakeTransport{}
	sched := &fakeScheduler{}
	eng := NewEngine(metadataService, storage, tr, tr, sched, 25, 100*time.Millisecond)
	return &harness{
		engine:    eng,
		storage:   storage,
		metadata:  metadataService,
		transport: tr,
		scheduler: sched,
	}
}

func (h *harness) saveFlow(t *testing.T, def model.FlowDef) {
	require.NoError(t, h.metadata.SaveDefinition(def))
}

func (h *harness) loadExecution(t *testing.T, flowName string, conversationId string) *model.ExecutionContext {
	flowCtx, err := h.storage.Executions().Load(flowName, conversationId)
	require.NoError(t, err)
	return flowCtx
}

// supportFlow greets, offers two buttons, and hands off to the chosen
// channel.
func supportFlow() model.FlowDef {
	return model.FlowDef{
		Name:       "support",
		Active:     true,
		Trigger:    model.Trigger{Type: model.TRIGGER_TYPE_KEYWORD, Keywords: []string{"help"}},
		StartBlock: "start",
		Blocks: []model.BlockDef{
			{Id: "start", Type: model.BLOCK_TYPE_START, Next: "greet"},
			{Id: "greet", Type: model.BLOCK_TYPE_MESSAGE, Next: "menu", Text: "Hi {{name}}"},
			{Id: "menu", Type: model.BLOCK_TYPE_INTERACTIVE_BUTTONS, Text: "How can we help?", Buttons: []model.ButtonDef{
				{Id: "sales", Title: "Sales", Target: "to-human"},
				{Id: "support", Title: "Support", Target: "to-ai"},
			}},
			{Id: "to-human", Type: model.BLOCK_TYPE_HUMAN_HANDOFF, Text: "Connecting you to an agent"},
			{Id: "to-ai", Type: model.BLOCK_TYPE_AI_HANDOFF},
		},
	}
}

// wizardFlow has two consecutive reply waits so an execution survives
// the first resolution, which dedup tests need.
func wizardFlow() model.FlowDef {
	return model.FlowDef{
		Name:       "wizard",
		Active:     true,
		Trigger:    model.Trigger{Type: model.TRIGGER_TYPE_MANUAL},
		StartBlock: "start",
		Blocks: []model.BlockDef{
			{Id: "start", Type: model.BLOCK_TYPE_START, Next: "step1"},
			{Id: "step1", Type: model.BLOCK_TYPE_INTERACTIVE_BUTTONS, Text: "Continue?", Buttons: []model.ButtonDef{
				{Id: "go", Title: "Go", Target: "info"},
			}},
			{Id: "info", Type: model.BLOCK_TYPE_MESSAGE, Next: "step2", Text: "Step one done"},
			{Id: "step2", Type: model.BLOCK_TYPE_INTERACTIVE_BUTTONS, Text: "Finish?", Buttons: []model.ButtonDef{
				{Id: "done", Title: "Done", Target: "bye"},
			}},
			{Id: "bye", Type: model.BLOCK_TYPE_END, Text: "All done"},
		},
	}
}

func dripFlow() model.FlowDef {
	return model.FlowDef{
		Name:       "drip",
		Active:     true,
		Trigger:    model.Trigger{Type: model.TRIGGER_TYPE_MANUAL},
		StartBlock: "start",
		Blocks: []model.BlockDef{
			{Id: "start", Type: model.BLOCK_TYPE_START, Next: "wait"},
			{Id: "wait", Type: model.BLOCK_TYPE_DELAY, Next: "bye", DelaySeconds: 120},
			{Id: "bye", Type: model.BLOCK_TYPE_END, Text: "Welcome back"},
		},
	}
}

func routerFlow() model.FlowDef {
	return model.FlowDef{
		Name:       "router",
		Active:     true,
		Trigger:    model.Trigger{Type: model.TRIGGER_TYPE_MANUAL},
		StartBlock: "start",
		Blocks: []model.BlockDef{
			{Id: "start", Type: model.BLOCK_TYPE_START, Next: "check"},
			{Id: "check", Type: model.BLOCK_TYPE_CONDITION, DefaultNext: "minor", Conditions: []model.ConditionDef{
				{Variable: "age", Operator: model.OP_GREATER_THAN, Value: "17", Target: "adult"},
			}},
			{Id: "adult", Type: model.BLOCK_TYPE_MESSAGE, Text: "adult path"},
			{Id: "minor", Type: model.BLOCK_TYPE_MESSAGE, Text: "minor path"},
		},
	}
}

func testGreetingToHandoff(t *testing.T, h *harness) {
	h.saveFlow(t, supportFlow())

	result, err := h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "support",
		ConversationId: "conv-1",
		Variables:      map[string]any{"name": "Ana"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, model.STATUS_ACTIVE, result.Status)
	require.Len(t, result.Messages, 2)
	require.Equal(t, "Hi Ana", result.Messages[0].Text)
	require.Equal(t, "How can we help?", result.Messages[1].Text)
	require.Len(t, result.Messages[1].Buttons, 2)

	flowCtx := h.loadExecution(t, "support", "conv-1")
	require.Equal(t, model.WAIT_REPLY, flowCtx.Wait)
	require.Equal(t, "menu", flowCtx.CurrentBlock)
	require.Len(t, flowCtx.History, 2)

	result, err = h.engine.HandleEvent(&model.InboundEvent{
		EventId:        "evt-1",
		ConversationId: "conv-1",
		Text:           "Support",
	})
	require.NoError(t, err)
	require.Equal(t, model.STATUS_TRANSFERRED_AI, result.Status)
	require.NotNil(t, result.Transfer)
	require.Equal(t, model.TRANSFER_TO_AI, result.Transfer.To)

	flowCtx = h.loadExecution(t, "support", "conv-1")
	require.True(t, flowCtx.Status.Terminal())
	require.NotNil(t, flowCtx.CompletedAt)
	require.Len(t, flowCtx.History, 4)
	require.Equal(t, "menu", flowCtx.History[2].BlockId)
	require.Equal(t, "Support", flowCtx.History[2].UserInput)
	require.Equal(t, "to-ai", flowCtx.History[2].ChosenTarget)
	require.Equal(t, "to-ai", flowCtx.History[3].BlockId)
}

func testUnmatchedChoiceRecoverable(t *testing.T, h *harness) {
	h.saveFlow(t, supportFlow())
	_, err := h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "support",
		ConversationId: "conv-2",
	}, nil)
	require.NoError(t, err)

	result, err := h.engine.HandleEvent(&model.InboundEvent{
		ConversationId: "conv-2",
		Text:           "bogus",
	})
	require.NoError(t, err)
	require.Equal(t, model.STATUS_ACTIVE, result.Status)
	require.NotEmpty(t, result.Error)

	flowCtx := h.loadExecution(t, "support", "conv-2")
	require.Equal(t, "menu", flowCtx.CurrentBlock)
	require.Equal(t, model.WAIT_REPLY, flowCtx.Wait)
	last := flowCtx.History[len(flowCtx.History)-1]
	require.Equal(t, "bogus", last.UserInput)
	require.NotEmpty(t, last.Error)

	// the same wait still resolves with a valid choice
	result, err = h.engine.HandleEvent(&model.InboundEvent{
		ConversationId: "conv-2",
		ChoiceId:       "sales",
	})
	require.NoError(t, err)
	require.Equal(t, model.STATUS_TRANSFERRED_HUMAN, result.Status)
	require.Equal(t, model.TRANSFER_TO_HUMAN, result.Transfer.To)
}

func testDelayTokenGating(t *testing.T, h *harness) {
	h.saveFlow(t, dripFlow())
	result, err := h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "drip",
		ConversationId: "conv-3",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, model.STATUS_ACTIVE, result.Status)

	require.Len(t, h.scheduler.scheduled, 1)
	scheduled := h.scheduler.scheduled[0]
	require.Equal(t, 120*time.Second, scheduled.after)

	flowCtx := h.loadExecution(t, "drip", "conv-3")
	require.Equal(t, model.WAIT_DELAY, flowCtx.Wait)
	require.Equal(t, scheduled.token, flowCtx.DelayToken)
	savedVersion := flowCtx.Version

	// a user reply mid-delay must not advance the flow
	result, err = h.engine.HandleEvent(&model.InboundEvent{
		ConversationId: "conv-3",
		Text:           "hello?",
	})
	require.NoError(t, err)
	require.True(t, result.Ignored)
	flowCtx = h.loadExecution(t, "drip", "conv-3")
	require.Equal(t, "wait", flowCtx.CurrentBlock)
	require.Equal(t, savedVersion, flowCtx.Version)

	// a stale token must not advance it either
	result, err = h.engine.HandleEvent(&model.InboundEvent{
		ConversationId: "conv-3",
		FlowName:       "drip",
		DelayToken:     "stale-token",
	})
	require.NoError(t, err)
	require.True(t, result.Ignored)

	result, err = h.engine.HandleEvent(&model.InboundEvent{
		ConversationId: "conv-3",
		FlowName:       "drip",
		DelayToken:     scheduled.token,
	})
	require.NoError(t, err)
	require.Equal(t, model.STATUS_COMPLETED, result.Status)
	require.Len(t, result.Messages, 1)
	require.Equal(t, "Welcome back", result.Messages[0].Text)

	flowCtx = h.loadExecution(t, "drip", "conv-3")
	require.Equal(t, model.STATUS_COMPLETED, flowCtx.Status)
	require.Equal(t, model.WAIT_NONE, flowCtx.Wait)
	require.Empty(t, flowCtx.DelayToken)
}

func testStepBoundStopsCycles(t *testing.T, h *harness) {
	// a pure action cycle fails publish-time validation, so store the
	// definition directly to exercise the runtime bound
	def := model.FlowDef{
		Name:       "loop",
		Active:     true,
		Trigger:    model.Trigger{Type: model.TRIGGER_TYPE_MANUAL},
		StartBlock: "start",
		Blocks: []model.BlockDef{
			{Id: "start", Type: model.BLOCK_TYPE_START, Next: "a"},
			{Id: "a", Type: model.BLOCK_TYPE_ACTION, Next: "b", Action: &model.ActionDef{Kind: model.ACTION_INCREMENT, Variable: "n"}},
			{Id: "b", Type: model.BLOCK_TYPE_ACTION, Next: "a", Action: &model.ActionDef{Kind: model.ACTION_INCREMENT, Variable: "n"}},
		},
	}
	require.Error(t, h.metadata.ValidateDefinition(def))
	require.NoError(t, h.storage.Metadata().SaveFlowDefinition(def))

	result, err := h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "loop",
		ConversationId: "conv-4",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, model.STATUS_PAUSED, result.Status)
	require.Contains(t, result.Error, "maximum step count")

	flowCtx := h.loadExecution(t, "loop", "conv-4")
	require.Equal(t, model.STATUS_PAUSED, flowCtx.Status)
}

func testDuplicateEventDeduped(t *testing.T, h *harness) {
	h.saveFlow(t, wizardFlow())
	_, err := h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "wizard",
		ConversationId: "conv-5",
	}, nil)
	require.NoError(t, err)

	result, err := h.engine.HandleEvent(&model.InboundEvent{
		EventId:        "evt-1",
		ConversationId: "conv-5",
		ChoiceId:       "go",
	})
	require.NoError(t, err)
	require.Equal(t, model.STATUS_ACTIVE, result.Status)
	flowCtx := h.loadExecution(t, "wizard", "conv-5")
	historyLen := len(flowCtx.History)
	sentCount := len(h.transport.sent)

	// redelivery of the same event id must not step again
	result, err = h.engine.HandleEvent(&model.InboundEvent{
		EventId:        "evt-1",
		ConversationId: "conv-5",
		ChoiceId:       "go",
	})
	require.NoError(t, err)
	require.True(t, result.Deduped)
	flowCtx = h.loadExecution(t, "wizard", "conv-5")
	require.Len(t, flowCtx.History, historyLen)
	require.Equal(t, "step2", flowCtx.CurrentBlock)
	require.Len(t, h.transport.sent, sentCount)

	result, err = h.engine.HandleEvent(&model.InboundEvent{
		EventId:        "evt-2",
		ConversationId: "conv-5",
		ChoiceId:       "done",
	})
	require.NoError(t, err)
	require.Equal(t, model.STATUS_COMPLETED, result.Status)
}

func testConditionRouting(t *testing.T, h *harness) {
	h.saveFlow(t, routerFlow())
	for name, tc := range map[string]struct {
		age  any
		want string
	}{
		"numeric above threshold": {age: 21, want: "adult path"},
		"string number below":     {age: "15", want: "minor path"},
		"unparseable falls back":  {age: "not-a-number", want: "minor path"},
		"missing variable":        {age: nil, want: "minor path"},
	} {
		vars := map[string]any{}
		if tc.age != nil {
			vars["age"] = tc.age
		}
		result, err := h.engine.StartFlow(&model.StartFlowRequest{
			FlowName:       "router",
			ConversationId: "conv-" + name,
			Variables:      vars,
		}, nil)
		require.NoError(t, err, name)
		require.Equal(t, model.STATUS_COMPLETED, result.Status, name)
		require.Len(t, result.Messages, 1, name)
		require.Equal(t, tc.want, result.Messages[0].Text, name)
	}
}

func testRestartAfterTerminal(t *testing.T, h *harness) {
	h.saveFlow(t, routerFlow())
	result, err := h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "router",
		ConversationId: "conv-6",
		Variables:      map[string]any{"age": 30},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, model.STATUS_COMPLETED, result.Status)
	firstId := result.ExecutionId

	result, err = h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "router",
		ConversationId: "conv-6",
		Variables:      map[string]any{"age": 10},
	}, nil)
	require.NoError(t, err)
	require.NotEqual(t, firstId, result.ExecutionId)
	require.Equal(t, "minor path", result.Messages[0].Text)

	// an active execution cannot be restarted
	h.saveFlow(t, wizardFlow())
	_, err = h.engine.StartFlow(&model.StartFlowRequest{FlowName: "wizard", ConversationId: "conv-6"}, nil)
	require.NoError(t, err)
	_, err = h.engine.StartFlow(&model.StartFlowRequest{FlowName: "wizard", ConversationId: "conv-6"}, nil)
	require.ErrorIs(t, err, ErrExecutionActive)
}

func testKeywordTriggerStartsFlow(t *testing.T, h *harness) {
	h.saveFlow(t, supportFlow())
	h.saveFlow(t, dripFlow())

	result, err := h.engine.HandleEvent(&model.InboundEvent{
		ConversationId: "conv-7",
		Text:           "I need HELP please",
	})
	require.NoError(t, err)
	require.Equal(t, model.STATUS_ACTIVE, result.Status)
	require.Len(t, result.Messages, 2)

	// manual flows never trigger from inbound text
	result, err = h.engine.HandleEvent(&model.InboundEvent{
		ConversationId: "conv-8",
		Text:           "good morning",
	})
	require.NoError(t, err)
	require.True(t, result.Ignored)
}

func testCancelPausesExecution(t *testing.T, h *harness) {
	h.saveFlow(t, wizardFlow())
	_, err := h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "wizard",
		ConversationId: "conv-9",
	}, nil)
	require.NoError(t, err)

	result, err := h.engine.Cancel("wizard", "conv-9")
	require.NoError(t, err)
	require.Equal(t, model.STATUS_PAUSED, result.Status)

	// a paused execution drops further events
	result, err = h.engine.HandleEvent(&model.InboundEvent{
		ConversationId: "conv-9",
		ChoiceId:       "go",
	})
	require.NoError(t, err)
	require.True(t, result.Ignored)

	// cancelling a terminal execution is a no-op
	h.saveFlow(t, routerFlow())
	_, err = h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "router",
		ConversationId: "conv-9",
		Variables:      map[string]any{"age": 30},
	}, nil)
	require.NoError(t, err)
	result, err = h.engine.Cancel("router", "conv-9")
	require.NoError(t, err)
	require.True(t, result.Ignored)
	require.Equal(t, model.STATUS_COMPLETED, result.Status)
}

func testTagsAppliedThroughAction(t *testing.T, h *harness) {
	def := model.FlowDef{
		Name:       "tagger",
		Active:     true,
		Trigger:    model.Trigger{Type: model.TRIGGER_TYPE_MANUAL},
		StartBlock: "start",
		Blocks: []model.BlockDef{
			{Id: "start", Type: model.BLOCK_TYPE_START, Next: "tag"},
			{Id: "tag", Type: model.BLOCK_TYPE_ACTION, Next: "untag", Action: &model.ActionDef{Kind: model.ACTION_ADD_TAG, Tag: "vip"}},
			{Id: "untag", Type: model.BLOCK_TYPE_ACTION, Next: "bye", Action: &model.ActionDef{Kind: model.ACTION_REMOVE_TAG, Tag: "prospect"}},
			{Id: "bye", Type: model.BLOCK_TYPE_END},
		},
	}
	h.saveFlow(t, def)
	result, err := h.engine.StartFlow(&model.StartFlowRequest{
		FlowName:       "tagger",
		ConversationId: "conv-10",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, model.STATUS_COMPLETED, result.Status)
	require.Equal(t, []string{"+vip", "-prospect"}, h.transport.tags)
}

type fakeTransport struct {
	sent []model.OutboundMessage
	tags []string
}

func (f *fakeTransport) SendMessage(conversationId string, msg *model.OutboundMessage) error {
	f.sent = append(f.sent, *msg)
	return nil
}

func (f *fakeTransport) AddTag(conversationId string, tag string) error {
	f.tags = append(f.tags, "+"+tag)
	return nil
}

func (f *fakeTransport) RemoveTag(conversationId string, tag string) error {
	f.tags = append(f.tags, "-"+tag)
	return nil
}

type scheduledContinuation struct {
	flowName       string
	conversationId string
	token          string
	after          time.Duration
}

type fakeScheduler struct {
	scheduled []scheduledContinuation
}

func (f *fakeScheduler) ScheduleContinuation(flowName string, conversationId string, token string, after time.Duration) error {
	f.scheduled = append(f.scheduled, scheduledContinuation{
		flowName:       flowName,
		conversationId: conversationId,
		token:          token,
		after:          after,
	})
	return nil
}

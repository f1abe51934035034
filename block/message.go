package block

import (
	"fmt"

	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
)

var _ Block = new(messageBlock)

type messageBlock struct {
	baseBlock
	text string
}

func NewMessageBlock(text string, base baseBlock) *messageBlock {
	return &messageBlock{
		baseBlock: base,
		text:      text,
	}
}

func (b *messageBlock) Validate() error {
	if b.text == "" {
		return fmt.Errorf("blockId=%s, message block must have text", b.id)
	}
	return nil
}

// A message block with no outgoing target is an implicit end; the
// engine completes the execution when Next is empty.
func (b *messageBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	return model.StepResult{
		Kind: model.STEP_EMIT,
		Next: b.next,
		Message: &model.OutboundMessage{
			ConversationId: flowCtx.ConversationId,
			Text:           util.Substitute(b.text, flowCtx.Variables),
		},
	}
}

package block

import (
	"fmt"

	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
)

var _ Block = new(startBlock)

type startBlock struct {
	baseBlock
	text string
}

func NewStartBlock(text string, base baseBlock) *startBlock {
	return &startBlock{
		baseBlock: base,
		text:      text,
	}
}

func (b *startBlock) Validate() error {
	if b.next == "" {
		return fmt.Errorf("blockId=%s, start block must have an outgoing target", b.id)
	}
	return nil
}

func (b *startBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	res := model.StepResult{
		Kind: model.STEP_EMIT,
		Next: b.next,
	}
	if b.text != "" {
		res.Message = &model.OutboundMessage{
			ConversationId: flowCtx.ConversationId,
			Text:           util.Substitute(b.text, flowCtx.Variables),
		}
	}
	return res
}

package block

import (
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
)

var _ Block = new(endBlock)

type endBlock struct {
	baseBlock
	text string
}

func NewEndBlock(text string, base baseBlock) *endBlock {
	return &endBlock{
		baseBlock: base,
		text:      text,
	}
}

func (b *endBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	res := model.StepResult{
		Kind: model.STEP_END,
	}
	if b.text != "" {
		res.Message = &model.OutboundMessage{
			ConversationId: flowCtx.ConversationId,
			Text:           util.Substitute(b.text, flowCtx.Variables),
		}
	}
	return res
}

package block

import (
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
)

var _ Block = new(handoffBlock)

// handoffBlock covers both ai_handoff and human_handoff; the transfer
// target is the only difference.
type handoffBlock struct {
	baseBlock
	target model.TransferTarget
	text   string
}

func NewAiHandoffBlock(text string, base baseBlock) *handoffBlock {
	return &handoffBlock{
		baseBlock: base,
		target:    model.TRANSFER_TO_AI,
		text:      text,
	}
}

func NewHumanHandoffBlock(text string, base baseBlock) *handoffBlock {
	return &handoffBlock{
		baseBlock: base,
		target:    model.TRANSFER_TO_HUMAN,
		text:      text,
	}
}

func (b *handoffBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	res := model.StepResult{
		Kind:     model.STEP_TRANSFER,
		Transfer: b.target,
	}
	if b.text != "" {
		res.Message = &model.OutboundMessage{
			ConversationId: flowCtx.ConversationId,
			Text:           util.Substitute(b.text, flowCtx.Variables),
		}
	}
	return res
}

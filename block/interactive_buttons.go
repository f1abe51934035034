package block

import (
	"fmt"
	"strings"

	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
)

var _ Block = new(interactiveButtonsBlock)

type interactiveButtonsBlock struct {
	baseBlock
	text    string
	buttons []model.ButtonDef
}

func NewInteractiveButtonsBlock(text string, buttons []model.ButtonDef, base baseBlock) *interactiveButtonsBlock {
	return &interactiveButtonsBlock{
		baseBlock: base,
		text:      text,
		buttons:   buttons,
	}
}

func (b *interactiveButtonsBlock) Validate() error {
	if len(b.buttons) == 0 {
		return fmt.Errorf("blockId=%s, buttons block must have at least one button", b.id)
	}
	if len(b.buttons) > model.MAX_BUTTONS {
		return fmt.Errorf("blockId=%s, buttons block allows at most %d buttons", b.id, model.MAX_BUTTONS)
	}
	seen := make(map[string]bool)
	for _, btn := range b.buttons {
		if btn.Id == "" || btn.Target == "" {
			return fmt.Errorf("blockId=%s, button must have id and target", b.id)
		}
		if seen[btn.Id] {
			return fmt.Errorf("blockId=%s, button id %s is duplicate", b.id, btn.Id)
		}
		seen[btn.Id] = true
	}
	return nil
}

func (b *interactiveButtonsBlock) Targets() []string {
	targets := make([]string, 0, len(b.buttons))
	for _, btn := range b.buttons {
		targets = append(targets, btn.Target)
	}
	return targets
}

func (b *interactiveButtonsBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	if !event.UserReply() {
		return model.StepResult{
			Kind: model.STEP_AWAIT,
			Message: &model.OutboundMessage{
				ConversationId: flowCtx.ConversationId,
				Text:           util.Substitute(b.text, flowCtx.Variables),
				Buttons:        b.buttons,
			},
		}
	}
	input := event.ChoiceId
	if input == "" {
		input = event.Text
	}
	for _, btn := range b.buttons {
		if btn.Id == input || strings.EqualFold(btn.Title, input) {
			return model.StepResult{
				Kind:         model.STEP_EMIT,
				Next:         btn.Target,
				UserInput:    input,
				ChosenTarget: btn.Target,
			}
		}
	}
	res := errorResult("interactive response %q did not match any offered option", input)
	res.Recoverable = true
	res.UserInput = input
	return res
}

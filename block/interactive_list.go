package block

import (
	"fmt"
	"strings"

	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
)

var _ Block = new(interactiveListBlock)

type interactiveListBlock struct {
	baseBlock
	list model.ListPayload
}

func NewInteractiveListBlock(list model.ListPayload, base baseBlock) *interactiveListBlock {
	return &interactiveListBlock{
		baseBlock: base,
		list:      list,
	}
}

func (b *interactiveListBlock) Validate() error {
	if len(b.list.Sections) == 0 {
		return fmt.Errorf("blockId=%s, interactive list must have at least one section", b.id)
	}
	if len(b.list.Sections) > model.MAX_LIST_SECTIONS {
		return fmt.Errorf("blockId=%s, interactive list allows at most %d sections", b.id, model.MAX_LIST_SECTIONS)
	}
	seen := make(map[string]bool)
	for _, section := range b.list.Sections {
		if len(section.Rows) == 0 {
			return fmt.Errorf("blockId=%s, list section must have at least one row", b.id)
		}
		if len(section.Rows) > model.MAX_SECTION_ROWS {
			return fmt.Errorf("blockId=%s, list section allows at most %d rows", b.id, model.MAX_SECTION_ROWS)
		}
		for _, row := range section.Rows {
			if row.Id == "" || row.Target == "" {
				return fmt.Errorf("blockId=%s, list row must have id and target", b.id)
			}
			if seen[row.Id] {
				return fmt.Errorf("blockId=%s, list row id %s is duplicate", b.id, row.Id)
			}
			seen[row.Id] = true
		}
	}
	return nil
}

// Targets enumerates the row targets; branching lives in the payload.
func (b *interactiveListBlock) Targets() []string {
	var targets []string
	for _, section := range b.list.Sections {
		for _, row := range section.Rows {
			targets = append(targets, row.Target)
		}
	}
	return targets
}

func (b *interactiveListBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	if !event.UserReply() {
		return model.StepResult{
			Kind:    model.STEP_AWAIT,
			Message: b.prompt(flowCtx),
		}
	}
	row, input := b.resolve(event)
	if row == nil {
		res := errorResult("interactive response %q did not match any offered option", input)
		res.Recoverable = true
		res.UserInput = input
		return res
	}
	return model.StepResult{
		Kind:         model.STEP_EMIT,
		Next:         row.Target,
		UserInput:    input,
		ChosenTarget: row.Target,
	}
}

func (b *interactiveListBlock) prompt(flowCtx *model.ExecutionContext) *model.OutboundMessage {
	list := b.list
	list.Header = util.Substitute(list.Header, flowCtx.Variables)
	list.Body = util.Substitute(list.Body, flowCtx.Variables)
	list.Footer = util.Substitute(list.Footer, flowCtx.Variables)
	return &model.OutboundMessage{
		ConversationId: flowCtx.ConversationId,
		List:           &list,
	}
}

func (b *interactiveListBlock) resolve(event *model.InboundEvent) (*model.ListRow, string) {
	input := event.ChoiceId
	if input == "" {
		input = event.Text
	}
	for _, section := range b.list.Sections {
		for i, row := range section.Rows {
			if row.Id == input || strings.EqualFold(row.Title, input) {
				return &section.Rows[i], input
			}
		}
	}
	return nil, input
}

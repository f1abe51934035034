package block

import (
	"fmt"

	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
)

var _ Block = new(actionBlock)

type actionBlock struct {
	baseBlock
	action model.ActionDef
}

func NewActionBlock(action model.ActionDef, base baseBlock) *actionBlock {
	return &actionBlock{
		baseBlock: base,
		action:    action,
	}
}

func (b *actionBlock) Validate() error {
	switch b.action.Kind {
	case model.ACTION_SET_VARIABLE, model.ACTION_INCREMENT:
		if b.action.Variable == "" {
			return fmt.Errorf("blockId=%s, %s action must name a variable", b.id, b.action.Kind)
		}
	case model.ACTION_ADD_TAG, model.ACTION_REMOVE_TAG:
		if b.action.Tag == "" {
			return fmt.Errorf("blockId=%s, %s action must name a tag", b.id, b.action.Kind)
		}
	default:
		return fmt.Errorf("blockId=%s, unknown action kind %s", b.id, b.action.Kind)
	}
	return nil
}

func (b *actionBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	res := model.StepResult{
		Kind: model.STEP_ACTION,
		Next: b.next,
	}
	switch b.action.Kind {
	case model.ACTION_SET_VARIABLE:
		value := util.ResolveValue(b.action.Value, flowCtx.Variables)
		if s, ok := value.(string); ok {
			value = util.Substitute(s, flowCtx.Variables)
		}
		res.Vars = map[string]any{b.action.Variable: value}
	case model.ACTION_INCREMENT:
		// missing or non-numeric prior values count from 0
		prior, ok := util.AsNumber(flowCtx.Variables[b.action.Variable])
		if !ok {
			prior = 0
		}
		step := 1.0
		if b.action.Value != nil {
			if v, ok := util.AsNumber(b.action.Value); ok {
				step = v
			}
		}
		res.Vars = map[string]any{b.action.Variable: prior + step}
	case model.ACTION_ADD_TAG:
		res.Tags = []model.TagOp{{Add: true, Tag: b.action.Tag}}
	case model.ACTION_REMOVE_TAG:
		res.Tags = []model.TagOp{{Add: false, Tag: b.action.Tag}}
	}
	return res
}

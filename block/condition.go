package block

import (
	"fmt"
	"strings"

	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/util"
)

var _ Block = new(conditionBlock)

type conditionBlock struct {
	baseBlock
	conditions  []model.ConditionDef
	defaultNext string
}

func NewConditionBlock(conditions []model.ConditionDef, defaultNext string, base baseBlock) *conditionBlock {
	return &conditionBlock{
		baseBlock:   base,
		conditions:  conditions,
		defaultNext: defaultNext,
	}
}

func (b *conditionBlock) Validate() error {
	if len(b.conditions) == 0 {
		return fmt.Errorf("blockId=%s, condition block must have at least one condition", b.id)
	}
	for _, cond := range b.conditions {
		if cond.Variable == "" || cond.Target == "" {
			return fmt.Errorf("blockId=%s, condition must have variable and target", b.id)
		}
		switch cond.Operator {
		case model.OP_EQUALS, model.OP_NOT_EQUALS, model.OP_GREATER_THAN,
			model.OP_LESS_THAN, model.OP_CONTAINS, model.OP_NOT_CONTAINS:
		default:
			return fmt.Errorf("blockId=%s, unknown operator %s", b.id, cond.Operator)
		}
	}
	return nil
}

func (b *conditionBlock) Targets() []string {
	targets := make([]string, 0, len(b.conditions)+1)
	for _, cond := range b.conditions {
		targets = append(targets, cond.Target)
	}
	if b.defaultNext != "" {
		targets = append(targets, b.defaultNext)
	}
	return targets
}

// Conditions are checked in authored order, first match wins. No match
// falls back to the default target; no default is an evaluation error.
func (b *conditionBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	for _, cond := range b.conditions {
		if holds(cond, flowCtx.Variables) {
			return model.StepResult{
				Kind:         model.STEP_EMIT,
				Next:         cond.Target,
				ChosenTarget: cond.Target,
			}
		}
	}
	if b.defaultNext != "" {
		return model.StepResult{
			Kind:         model.STEP_EMIT,
			Next:         b.defaultNext,
			ChosenTarget: b.defaultNext,
		}
	}
	return errorResult("blockId=%s, condition block had no matching branch and no default", b.id)
}

// holds compares one condition against the variable map. Numeric
// operators require both sides to parse as numbers; a failed parse
// fails the condition, not the block.
func holds(cond model.ConditionDef, vars map[string]any) bool {
	value, ok := vars[cond.Variable]
	if !ok {
		value = nil
	}
	switch cond.Operator {
	case model.OP_EQUALS:
		return util.Stringify(value) == cond.Value
	case model.OP_NOT_EQUALS:
		return util.Stringify(value) != cond.Value
	case model.OP_GREATER_THAN, model.OP_LESS_THAN:
		left, lok := util.AsNumber(value)
		right, rok := util.AsNumber(cond.Value)
		if !lok || !rok {
			return false
		}
		if cond.Operator == model.OP_GREATER_THAN {
			return left > right
		}
		return left < right
	case model.OP_CONTAINS:
		return strings.Contains(util.Stringify(value), cond.Value)
	case model.OP_NOT_CONTAINS:
		return !strings.Contains(util.Stringify(value), cond.Value)
	}
	return false
}

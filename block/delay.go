package block

import (
	"fmt"
	"time"

	"github.com/botforge/chatflow/model"
)

var _ Block = new(delayBlock)

type delayBlock struct {
	baseBlock
	delay time.Duration
}

func NewDelayBlock(delaySeconds int, base baseBlock) *delayBlock {
	return &delayBlock{
		baseBlock: base,
		delay:     time.Duration(delaySeconds) * time.Second,
	}
}

func (b *delayBlock) Validate() error {
	if b.delay <= 0 {
		return fmt.Errorf("blockId=%s, delay value %s wrong", b.id, b.delay)
	}
	if b.next == "" {
		return fmt.Errorf("blockId=%s, delay block must have an outgoing target", b.id)
	}
	return nil
}

// The engine suspends on this result and schedules a continuation; no
// thread waits for the duration.
func (b *delayBlock) Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult {
	return model.StepResult{
		Kind:  model.STEP_DELAY,
		Delay: b.delay,
		Next:  b.next,
	}
}

package block

import (
	"fmt"

	"github.com/botforge/chatflow/model"
)

// Block evaluates one node of a flow graph. Evaluate is pure with
// respect to its inputs: variable mutations and tag operations come
// back in the StepResult for the engine to apply, and the event is nil
// when the engine is continuing rather than delivering a user reply.
type Block interface {
	GetId() string
	GetType() model.BlockType
	// GetNext returns the single/default outgoing target, "" when the
	// block has none (terminal or payload-branched).
	GetNext() string
	Evaluate(flowCtx *model.ExecutionContext, event *model.InboundEvent) model.StepResult
	Validate() error
}

var validBlockTypes = map[model.BlockType]bool{
	model.BLOCK_TYPE_START:               true,
	model.BLOCK_TYPE_MESSAGE:             true,
	model.BLOCK_TYPE_INTERACTIVE_LIST:    true,
	model.BLOCK_TYPE_INTERACTIVE_BUTTONS: true,
	model.BLOCK_TYPE_CONDITION:           true,
	model.BLOCK_TYPE_ACTION:              true,
	model.BLOCK_TYPE_AI_HANDOFF:          true,
	model.BLOCK_TYPE_HUMAN_HANDOFF:       true,
	model.BLOCK_TYPE_DELAY:               true,
	model.BLOCK_TYPE_WEBHOOK:             true,
	model.BLOCK_TYPE_END:                 true,
}

func ValidateBlockType(bt model.BlockType) error {
	if !validBlockTypes[bt] {
		return fmt.Errorf("unknown block type %s", bt)
	}
	return nil
}

type baseBlock struct {
	id        string
	blockType model.BlockType
	next      string
}

func NewBaseBlock(id string, blockType model.BlockType, next string) baseBlock {
	return baseBlock{
		id:        id,
		blockType: blockType,
		next:      next,
	}
}

func (bb *baseBlock) GetId() string {
	return bb.id
}

func (bb *baseBlock) GetType() model.BlockType {
	return bb.blockType
}

func (bb *baseBlock) GetNext() string {
	return bb.next
}

func (bb *baseBlock) Validate() error {
	return nil
}

func errorResult(format string, args ...any) model.StepResult {
	return model.StepResult{
		Kind: model.STEP_ERROR,
		Err:  fmt.Sprintf(format, args...),
	}
}

package flow

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/botforge/chatflow/block"
	"github.com/botforge/chatflow/model"
)

// Flow is the compiled, immutable form of a FlowDef that the engine
// executes. Safe to share across conversations.
type Flow struct {
	Name       string
	Trigger    model.Trigger
	StartBlock string
	Blocks     map[string]block.Block
}

// Convert compiles a definition into evaluator blocks. The resty client
// is handed to webhook blocks; pass nil when only validating.
func Convert(def *model.FlowDef, httpClient *resty.Client) (*Flow, error) {
	blockMap := make(map[string]block.Block)
	for _, blockDef := range def.Blocks {
		base := block.NewBaseBlock(blockDef.Id, blockDef.Type, blockDef.Next)
		var bl block.Block
		switch blockDef.Type {
		case model.BLOCK_TYPE_START:
			bl = block.NewStartBlock(blockDef.Text, base)
		case model.BLOCK_TYPE_MESSAGE:
			bl = block.NewMessageBlock(blockDef.Text, base)
		case model.BLOCK_TYPE_INTERACTIVE_LIST:
			if blockDef.List == nil {
				return nil, fmt.Errorf("blockId=%s, interactive list block has no list payload", blockDef.Id)
			}
			bl = block.NewInteractiveListBlock(*blockDef.List, base)
		case model.BLOCK_TYPE_INTERACTIVE_BUTTONS:
			bl = block.NewInteractiveButtonsBlock(blockDef.Text, blockDef.Buttons, base)
		case model.BLOCK_TYPE_CONDITION:
			bl = block.NewConditionBlock(blockDef.Conditions, blockDef.DefaultNext, base)
		case model.BLOCK_TYPE_ACTION:
			if blockDef.Action == nil {
				return nil, fmt.Errorf("blockId=%s, action block has no action payload", blockDef.Id)
			}
			bl = block.NewActionBlock(*blockDef.Action, base)
		case model.BLOCK_TYPE_AI_HANDOFF:
			bl = block.NewAiHandoffBlock(blockDef.Text, base)
		case model.BLOCK_TYPE_HUMAN_HANDOFF:
			bl = block.NewHumanHandoffBlock(blockDef.Text, base)
		case model.BLOCK_TYPE_DELAY:
			bl = block.NewDelayBlock(blockDef.DelaySeconds, base)
		case model.BLOCK_TYPE_WEBHOOK:
			if blockDef.Webhook == nil {
				return nil, fmt.Errorf("blockId=%s, webhook block has no webhook payload", blockDef.Id)
			}
			bl = block.NewWebhookBlock(*blockDef.Webhook, httpClient, base)
		case model.BLOCK_TYPE_END:
			bl = block.NewEndBlock(blockDef.Text, base)
		default:
			return nil, fmt.Errorf("blockId=%s, unknown block type %s", blockDef.Id, blockDef.Type)
		}
		blockMap[blockDef.Id] = bl
	}
	return &Flow{
		Name:       def.Name,
		Trigger:    def.Trigger,
		StartBlock: def.StartBlock,
		Blocks:     blockMap,
	}, nil
}

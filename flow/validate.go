package flow

import (
	"fmt"

	"github.com/botforge/chatflow/block"
	"github.com/botforge/chatflow/model"
)

// Validate is the publish-time validation pass. The engine still
// degrades to an error step when a bad graph reaches it at runtime, but
// the authoring surface should never let one through.
func Validate(def *model.FlowDef) error {
	if def.Name == "" {
		return fmt.Errorf("flow must have a name")
	}
	if def.StartBlock == "" {
		return fmt.Errorf("flow %s has no start block", def.Name)
	}
	ids := make(map[string]model.BlockType)
	for _, blockDef := range def.Blocks {
		if _, ok := ids[blockDef.Id]; ok {
			return fmt.Errorf("block id %s is duplicate", blockDef.Id)
		}
		if err := block.ValidateBlockType(blockDef.Type); err != nil {
			return err
		}
		ids[blockDef.Id] = blockDef.Type
	}
	if _, ok := ids[def.StartBlock]; !ok {
		return fmt.Errorf("start block %s is not defined in flow %s", def.StartBlock, def.Name)
	}
	for _, blockDef := range def.Blocks {
		for _, target := range blockTargets(&blockDef) {
			if target == "" {
				continue
			}
			if _, ok := ids[target]; !ok {
				return fmt.Errorf("block %s references undefined block %s", blockDef.Id, target)
			}
		}
	}
	if err := checkReachability(def, ids); err != nil {
		return err
	}
	if err := checkAwaitlessCycles(def); err != nil {
		return err
	}

	// block-level payload checks
	fl, err := Convert(def, nil)
	if err != nil {
		return err
	}
	for _, bl := range fl.Blocks {
		if err := bl.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// blockTargets lists every target the block payload can branch to. This
// is the authoritative branching source; edges are advisory.
func blockTargets(blockDef *model.BlockDef) []string {
	var targets []string
	switch blockDef.Type {
	case model.BLOCK_TYPE_INTERACTIVE_LIST:
		if blockDef.List != nil {
			for _, section := range blockDef.List.Sections {
				for _, row := range section.Rows {
					targets = append(targets, row.Target)
				}
			}
		}
	case model.BLOCK_TYPE_INTERACTIVE_BUTTONS:
		for _, btn := range blockDef.Buttons {
			targets = append(targets, btn.Target)
		}
	case model.BLOCK_TYPE_CONDITION:
		for _, cond := range blockDef.Conditions {
			targets = append(targets, cond.Target)
		}
		targets = append(targets, blockDef.DefaultNext)
	case model.BLOCK_TYPE_AI_HANDOFF, model.BLOCK_TYPE_HUMAN_HANDOFF, model.BLOCK_TYPE_END:
		// terminal
	default:
		targets = append(targets, blockDef.Next)
	}
	return targets
}

func checkReachability(def *model.FlowDef, ids map[string]model.BlockType) error {
	byId := make(map[string]*model.BlockDef, len(def.Blocks))
	for i := range def.Blocks {
		byId[def.Blocks[i].Id] = &def.Blocks[i]
	}
	visited := make(map[string]bool)
	stack := []string{def.StartBlock}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, target := range blockTargets(byId[id]) {
			if target != "" && !visited[target] {
				stack = append(stack, target)
			}
		}
	}
	for id := range ids {
		if !visited[id] {
			return fmt.Errorf("block %s is not reachable from start block", id)
		}
	}
	return nil
}

// checkAwaitlessCycles rejects cycles made purely of auto-advancing
// blocks. Interactive and delay blocks suspend the advance call, so
// paths through them cannot exhaust the step bound.
func checkAwaitlessCycles(def *model.FlowDef) error {
	adjacency := make(map[string][]string)
	for i := range def.Blocks {
		blockDef := &def.Blocks[i]
		switch blockDef.Type {
		case model.BLOCK_TYPE_INTERACTIVE_LIST, model.BLOCK_TYPE_INTERACTIVE_BUTTONS,
			model.BLOCK_TYPE_DELAY, model.BLOCK_TYPE_AI_HANDOFF,
			model.BLOCK_TYPE_HUMAN_HANDOFF, model.BLOCK_TYPE_END:
			continue
		}
		for _, target := range blockTargets(blockDef) {
			if target != "" {
				adjacency[blockDef.Id] = append(adjacency[blockDef.Id], target)
			}
		}
	}
	const (
		unvisited  = 0
		inProgress = 1
		done       = 2
	)
	state := make(map[string]int)
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case inProgress:
			return fmt.Errorf("flow %s has a cycle with no reply wait through block %s", def.Name, id)
		case done:
			return nil
		}
		state[id] = inProgress
		for _, next := range adjacency[id] {
			if err := visit(next); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for i := range def.Blocks {
		if err := visit(def.Blocks[i].Id); err != nil {
			return err
		}
	}
	return nil
}

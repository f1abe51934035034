package model

import "time"

type ExecutionStatus string

const STATUS_ACTIVE ExecutionStatus = "active"
const STATUS_PAUSED ExecutionStatus = "paused"
const STATUS_COMPLETED ExecutionStatus = "completed"
const STATUS_TRANSFERRED_AI ExecutionStatus = "transferred_to_ai"
const STATUS_TRANSFERRED_HUMAN ExecutionStatus = "transferred_to_human"

// Terminal statuses take no further steps; a new execution is required.
func (s ExecutionStatus) Terminal() bool {
	return s == STATUS_COMPLETED || s == STATUS_TRANSFERRED_AI || s == STATUS_TRANSFERRED_HUMAN
}

type WaitKind string

const WAIT_NONE WaitKind = ""
const WAIT_REPLY WaitKind = "reply"
const WAIT_DELAY WaitKind = "delay"

type StepRecord struct {
	BlockId      string    `json:"blockId"`
	BlockType    BlockType `json:"blockType"`
	Timestamp    time.Time `json:"timestamp"`
	UserInput    string    `json:"userInput,omitempty"`
	ChosenTarget string    `json:"chosenTarget,omitempty"`
	NextBlock    string    `json:"nextBlock,omitempty"`
	Error        string    `json:"error,omitempty"`
}

const maxProcessedEvents = 200

// ExecutionContext is the persisted state of one run of a flow for one
// conversation. Mutated only by the engine, one step batch at a time,
// under the per-(flow, conversation) lease.
type ExecutionContext struct {
	Id              string           `json:"id"`
	FlowName        string           `json:"flowName"`
	ConversationId  string           `json:"conversationId"`
	CurrentBlock    string           `json:"currentBlock"`
	Variables       map[string]any   `json:"variables"`
	History         []StepRecord     `json:"history"`
	Status          ExecutionStatus  `json:"status"`
	Wait            WaitKind         `json:"wait,omitempty"`
	DelayToken      string           `json:"delayToken,omitempty"`
	ProcessedEvents []string         `json:"processedEvents,omitempty"`
	Version         int64            `json:"version"`
	StartedAt       time.Time        `json:"startedAt"`
	LastStepAt      time.Time        `json:"lastStepAt"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
}

func (c *ExecutionContext) EventProcessed(eventId string) bool {
	for _, id := range c.ProcessedEvents {
		if id == eventId {
			return true
		}
	}
	return false
}

func (c *ExecutionContext) MarkEventProcessed(eventId string) {
	if eventId == "" {
		return
	}
	c.ProcessedEvents = append(c.ProcessedEvents, eventId)
	if len(c.ProcessedEvents) > maxProcessedEvents {
		c.ProcessedEvents = c.ProcessedEvents[len(c.ProcessedEvents)-maxProcessedEvents:]
	}
}

func (c *ExecutionContext) SetVariable(name string, value any) {
	if c.Variables == nil {
		c.Variables = make(map[string]any)
	}
	c.Variables[name] = value
}

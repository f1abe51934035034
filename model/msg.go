package model

import "time"

// OutboundMessage is handed to the transport collaborator. At most one
// of List/Buttons is set; both nil means plain text.
type OutboundMessage struct {
	ConversationId string       `json:"conversationId"`
	Text           string       `json:"text,omitempty"`
	List           *ListPayload `json:"list,omitempty"`
	Buttons        []ButtonDef  `json:"buttons,omitempty"`
}

type TransferTarget string

const TRANSFER_TO_AI TransferTarget = "ai"
const TRANSFER_TO_HUMAN TransferTarget = "human"

type TransferSignal struct {
	To      TransferTarget `json:"to"`
	Message string         `json:"message,omitempty"`
}

// StepKind tags the outcome of evaluating exactly one block.
type StepKind string

const STEP_EMIT StepKind = "emit"
const STEP_AWAIT StepKind = "await_reply"
const STEP_ACTION StepKind = "action"
const STEP_DELAY StepKind = "delay"
const STEP_TRANSFER StepKind = "transfer"
const STEP_END StepKind = "end"
const STEP_ERROR StepKind = "error"

type TagOp struct {
	Add bool
	Tag string
}

// StepResult is the evaluator's verdict for one block. The engine owns
// applying it: emitting messages, mutating variables, following Next.
type StepResult struct {
	Kind     StepKind
	Message  *OutboundMessage
	Next     string
	Vars     map[string]any
	Tags     []TagOp
	Delay    time.Duration
	Transfer TransferTarget
	// UserInput/ChosenTarget feed the history entry for interactive
	// blocks resolved by a reply.
	UserInput    string
	ChosenTarget string
	Err          string
	// Recoverable errors leave the execution on the same block still
	// awaiting the same input (unmatched interactive choice).
	Recoverable bool
}

// AdvanceResult is what one engine invocation produced for the caller.
type AdvanceResult struct {
	ExecutionId string                 `json:"executionId"`
	Status      ExecutionStatus        `json:"status"`
	Messages    []OutboundMessage      `json:"messages,omitempty"`
	Transfer    *TransferSignal        `json:"transfer,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Deduped     bool                   `json:"deduped,omitempty"`
	Queued      bool                   `json:"queued,omitempty"`
	Ignored     bool                   `json:"ignored,omitempty"`
	Variables   map[string]any         `json:"variables,omitempty"`
}

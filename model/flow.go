package model

type BlockType string

const BLOCK_TYPE_START BlockType = "start"
const BLOCK_TYPE_MESSAGE BlockType = "message"
const BLOCK_TYPE_INTERACTIVE_LIST BlockType = "interactive_list"
const BLOCK_TYPE_INTERACTIVE_BUTTONS BlockType = "interactive_buttons"
const BLOCK_TYPE_CONDITION BlockType = "condition"
const BLOCK_TYPE_ACTION BlockType = "action"
const BLOCK_TYPE_AI_HANDOFF BlockType = "ai_handoff"
const BLOCK_TYPE_HUMAN_HANDOFF BlockType = "human_handoff"
const BLOCK_TYPE_DELAY BlockType = "delay"
const BLOCK_TYPE_WEBHOOK BlockType = "webhook"
const BLOCK_TYPE_END BlockType = "end"

type TriggerType string

const TRIGGER_TYPE_KEYWORD TriggerType = "keyword"
const TRIGGER_TYPE_ALWAYS TriggerType = "always"
const TRIGGER_TYPE_MANUAL TriggerType = "manual"
const TRIGGER_TYPE_QR_CODE TriggerType = "qr_code"
const TRIGGER_TYPE_LINK TriggerType = "link"

type Trigger struct {
	Type     TriggerType `json:"type"`
	Keywords []string    `json:"keywords,omitempty"`
	Code     string      `json:"code,omitempty"`
}

// FlowDef is the authored flow graph. The engine treats it as an
// immutable snapshot; only the authoring surface mutates it.
type FlowDef struct {
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	Trigger    Trigger    `json:"trigger"`
	StartBlock string     `json:"startBlock"`
	Blocks     []BlockDef `json:"blocks"`
	Edges      []Edge     `json:"edges,omitempty"`
}

// Edge exists for the editor's rendering. Branching is authoritative in
// the block payloads, not here.
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

// BlockDef carries the type tag plus the payload for that type. A Next
// of "" on a single-exit block means the flow ends there.
type BlockDef struct {
	Id           string         `json:"id"`
	Type         BlockType      `json:"type"`
	Next         string         `json:"next,omitempty"`
	Text         string         `json:"text,omitempty"`
	List         *ListPayload   `json:"list,omitempty"`
	Buttons      []ButtonDef    `json:"buttons,omitempty"`
	Conditions   []ConditionDef `json:"conditions,omitempty"`
	DefaultNext  string         `json:"defaultNext,omitempty"`
	Action       *ActionDef     `json:"action,omitempty"`
	DelaySeconds int            `json:"delaySeconds,omitempty"`
	Webhook      *WebhookDef    `json:"webhook,omitempty"`
}

const MAX_LIST_SECTIONS = 10
const MAX_SECTION_ROWS = 10
const MAX_BUTTONS = 3

type ListPayload struct {
	Header     string        `json:"header,omitempty"`
	Body       string        `json:"body"`
	Footer     string        `json:"footer,omitempty"`
	ButtonText string        `json:"buttonText"`
	Sections   []ListSection `json:"sections"`
}

type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

type ListRow struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Target      string `json:"target"`
}

type ButtonDef struct {
	Id     string `json:"id"`
	Title  string `json:"title"`
	Target string `json:"target"`
}

type CompareOp string

const OP_EQUALS CompareOp = "equals"
const OP_NOT_EQUALS CompareOp = "not_equals"
const OP_GREATER_THAN CompareOp = "greater_than"
const OP_LESS_THAN CompareOp = "less_than"
const OP_CONTAINS CompareOp = "contains"
const OP_NOT_CONTAINS CompareOp = "not_contains"

type ConditionDef struct {
	Variable string    `json:"variable"`
	Operator CompareOp `json:"operator"`
	Value    string    `json:"value"`
	Target   string    `json:"target"`
}

type ActionKind string

const ACTION_SET_VARIABLE ActionKind = "set_variable"
const ACTION_INCREMENT ActionKind = "increment"
const ACTION_ADD_TAG ActionKind = "add_tag"
const ACTION_REMOVE_TAG ActionKind = "remove_tag"

type ActionDef struct {
	Kind     ActionKind `json:"kind"`
	Variable string     `json:"variable,omitempty"`
	Value    any        `json:"value,omitempty"`
	Tag      string     `json:"tag,omitempty"`
}

type WebhookDef struct {
	Method         string            `json:"method"`
	Url            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
	// ResponseMap maps variable names to jsonpath expressions evaluated
	// against the decoded JSON response body.
	ResponseMap map[string]string `json:"responseMap,omitempty"`
	// SaveAs stores the raw response body under this variable when the
	// body is not JSON or no mapping is configured.
	SaveAs string `json:"saveAs,omitempty"`
}

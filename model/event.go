package model

// InboundEvent is the normalized event the engine accepts. Provider
// payload normalization happens upstream.
type InboundEvent struct {
	EventId        string `json:"eventId,omitempty"`
	ConversationId string `json:"conversationId"`
	FlowName       string `json:"flowName,omitempty"`
	Text           string `json:"text,omitempty"`
	ChoiceId       string `json:"choiceId,omitempty"`
	// DelayToken set when the scheduler re-invokes the engine after a
	// delay block's duration elapsed.
	DelayToken string `json:"delayToken,omitempty"`
	// Code carried by qr_code/link triggers.
	Code string `json:"code,omitempty"`
}

// UserReply reports whether the event carries a user response, as
// opposed to a scheduler continuation or bare trigger.
func (e *InboundEvent) UserReply() bool {
	return e != nil && (e.Text != "" || e.ChoiceId != "")
}

type StartFlowRequest struct {
	FlowName       string         `json:"flowName"`
	ConversationId string         `json:"conversationId"`
	Variables      map[string]any `json:"variables,omitempty"`
}

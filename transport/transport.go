package transport

import "github.com/botforge/chatflow/model"

// Transport delivers outbound messages to the messaging provider. The
// provider-specific wire protocol lives behind this boundary.
type Transport interface {
	SendMessage(conversationId string, msg *model.OutboundMessage) error
}

// TagStore is the external side channel for add_tag/remove_tag action
// blocks; the engine does not persist tags itself.
type TagStore interface {
	AddTag(conversationId string, tag string) error
	RemoveTag(conversationId string, tag string) error
}

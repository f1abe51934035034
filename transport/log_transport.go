package transport

import (
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/model"
	"go.uber.org/zap"
)

// LogTransport is the development transport: messages and tag changes
// go to the log instead of a messaging provider.
type LogTransport struct{}

var _ Transport = new(LogTransport)
var _ TagStore = new(LogTransport)

func NewLogTransport() *LogTransport {
	return &LogTransport{}
}

func (t *LogTransport) SendMessage(conversationId string, msg *model.OutboundMessage) error {
	logger.Info("outbound message",
		zap.String("conversation", conversationId),
		zap.String("text", msg.Text),
		zap.Bool("interactive", msg.List != nil || len(msg.Buttons) > 0))
	return nil
}

func (t *LogTransport) AddTag(conversationId string, tag string) error {
	logger.Info("add tag", zap.String("conversation", conversationId), zap.String("tag", tag))
	return nil
}

func (t *LogTransport) RemoveTag(conversationId string, tag string) error {
	logger.Info("remove tag", zap.String("conversation", conversationId), zap.String("tag", tag))
	return nil
}

package scheduler

import (
	"fmt"
	"time"

	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"github.com/botforge/chatflow/util"
)

const continuationQueue = "continuations"
const requeueQueue = "requeue"

// Continuation is the persisted handle for a delay block suspension.
// The token must match the one stored on the execution record.
type Continuation struct {
	FlowName       string `json:"flowName"`
	ConversationId string `json:"conversationId"`
	Token          string `json:"token"`
}

func continuationQueueName(conversationId string, partitions int) string {
	return fmt.Sprintf("%s:p%d", continuationQueue, util.Partition(conversationId, partitions))
}

// QueueScheduler stores continuations on the durable delay queue,
// partitioned over sorted sets by conversation id.
type QueueScheduler struct {
	delayQueue persistence.DelayQueue
	partitions int
	encdec     util.EncoderDecoder[Continuation]
}

func NewQueueScheduler(delayQueue persistence.DelayQueue, partitions int) *QueueScheduler {
	if partitions <= 0 {
		partitions = 1
	}
	return &QueueScheduler{
		delayQueue: delayQueue,
		partitions: partitions,
		encdec:     util.NewJsonEncoderDecoder[Continuation](),
	}
}

func (s *QueueScheduler) ScheduleContinuation(flowName string, conversationId string, token string, after time.Duration) error {
	data, err := s.encdec.Encode(Continuation{
		FlowName:       flowName,
		ConversationId: conversationId,
		Token:          token,
	})
	if err != nil {
		return err
	}
	return s.delayQueue.PushWithDelay(continuationQueueName(conversationId, s.partitions), after, data)
}

// RequeueEvent parks an inbound event that lost the lease race and
// retries it shortly.
func RequeueEvent(delayQueue persistence.DelayQueue, event *model.InboundEvent, after time.Duration) error {
	data, err := util.NewJsonEncoderDecoder[model.InboundEvent]().Encode(*event)
	if err != nil {
		return err
	}
	return delayQueue.PushWithDelay(requeueQueue, after, data)
}

package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"github.com/botforge/chatflow/util"
	"go.uber.org/zap"
)

const dispatchBuffer = 100

// Handler is the engine entry point the poller feeds due events into.
type Handler func(event *model.InboundEvent) error

// Poller drains due continuations and requeued events from the delay
// queue and hands them to a dispatch worker that re-invokes the engine.
// One poller per process; the per-conversation lease keeps concurrent
// pollers safe.
type Poller struct {
	delayQueue persistence.DelayQueue
	partitions int
	handler    Handler
	ticker     *util.TickWorker
	dispatcher *util.Worker
	contEncdec util.EncoderDecoder[Continuation]
	evEncdec   util.EncoderDecoder[model.InboundEvent]
}

func NewPoller(delayQueue persistence.DelayQueue, partitions int, interval time.Duration, handler Handler, wg *sync.WaitGroup) *Poller {
	if partitions <= 0 {
		partitions = 1
	}
	p := &Poller{
		delayQueue: delayQueue,
		partitions: partitions,
		handler:    handler,
		contEncdec: util.NewJsonEncoderDecoder[Continuation](),
		evEncdec:   util.NewJsonEncoderDecoder[model.InboundEvent](),
	}
	p.dispatcher = util.NewWorker("event-dispatcher", wg, p.handleTask, dispatchBuffer)
	p.ticker = util.NewTickWorker("delay-poller", interval, p.poll, wg)
	return p
}

func (p *Poller) Start() {
	p.dispatcher.Start()
	p.ticker.Start()
}

func (p *Poller) Stop() {
	p.ticker.Stop()
	p.dispatcher.Stop()
}

func (p *Poller) handleTask(task util.Task) error {
	event := task.(*model.InboundEvent)
	if err := p.handler(event); err != nil {
		logger.Error("error handling scheduled event",
			zap.String("conversation", event.ConversationId), zap.Error(err))
	}
	return nil
}

func (p *Poller) poll() {
	for partition := 0; partition < p.partitions; partition++ {
		queueName := fmt.Sprintf("%s:p%d", continuationQueue, partition)
		messages, err := p.delayQueue.Pop(queueName)
		if err != nil {
			var empty persistence.EmptyQueueError
			if !errors.As(err, &empty) {
				logger.Error("error polling continuation queue", zap.String("queue", queueName), zap.Error(err))
			}
			continue
		}
		for _, message := range messages {
			cont, err := p.contEncdec.Decode([]byte(message))
			if err != nil {
				logger.Error("error decoding continuation", zap.Error(err))
				continue
			}
			p.dispatcher.Sender() <- &model.InboundEvent{
				ConversationId: cont.ConversationId,
				FlowName:       cont.FlowName,
				DelayToken:     cont.Token,
			}
		}
	}
	p.pollRequeued()
}

func (p *Poller) pollRequeued() {
	messages, err := p.delayQueue.Pop(requeueQueue)
	if err != nil {
		var empty persistence.EmptyQueueError
		if !errors.As(err, &empty) {
			logger.Error("error polling requeue queue", zap.Error(err))
		}
		return
	}
	for _, message := range messages {
		event, err := p.evEncdec.Decode([]byte(message))
		if err != nil {
			logger.Error("error decoding requeued event", zap.Error(err))
			continue
		}
		p.dispatcher.Sender() <- event
	}
}

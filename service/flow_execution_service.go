package service

import (
	"errors"
	"time"

	"github.com/botforge/chatflow/engine"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"github.com/botforge/chatflow/scheduler"
	"go.uber.org/zap"
)

const requeueDelay = 500 * time.Millisecond

// FlowExecutionService fronts the engine for the REST surface and the
// poller. Events that lose the lease race are requeued, never dropped.
type FlowExecutionService struct {
	engine     *engine.Engine
	delayQueue persistence.DelayQueue
}

func NewFlowExecutionService(eng *engine.Engine, delayQueue persistence.DelayQueue) *FlowExecutionService {
	return &FlowExecutionService{
		engine:     eng,
		delayQueue: delayQueue,
	}
}

func (s *FlowExecutionService) HandleInbound(event *model.InboundEvent) (*model.AdvanceResult, error) {
	result, err := s.engine.HandleEvent(event)
	if err != nil {
		if errors.Is(err, engine.ErrLeaseBusy) {
			logger.Info("conversation lease busy, requeueing event",
				zap.String("conversation", event.ConversationId))
			if qerr := scheduler.RequeueEvent(s.delayQueue, event, requeueDelay); qerr != nil {
				return nil, qerr
			}
			return &model.AdvanceResult{Queued: true}, nil
		}
		return nil, err
	}
	return result, nil
}

func (s *FlowExecutionService) StartFlow(req *model.StartFlowRequest) (*model.AdvanceResult, error) {
	return s.engine.StartFlow(req, nil)
}

func (s *FlowExecutionService) Cancel(flowName string, conversationId string) (*model.AdvanceResult, error) {
	return s.engine.Cancel(flowName, conversationId)
}

func (s *FlowExecutionService) GetExecution(flowName string, conversationId string) (*model.ExecutionContext, error) {
	return s.engine.GetExecution(flowName, conversationId)
}

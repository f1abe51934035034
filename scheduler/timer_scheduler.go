package scheduler

import (
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/model"
	"go.uber.org/zap"
)

// TimerScheduler fires continuations from an in-process timing wheel.
// Used with the memory backend; continuations do not survive a restart,
// which is the same durability the backend itself offers.
type TimerScheduler struct {
	wheel   *timingwheel.TimingWheel
	handler Handler
}

func NewTimerScheduler(handler Handler) *TimerScheduler {
	return &TimerScheduler{
		wheel:   timingwheel.NewTimingWheel(time.Millisecond, 1000),
		handler: handler,
	}
}

// SetHandler breaks the construction cycle: the engine needs the
// scheduler and the handler needs the engine.
func (s *TimerScheduler) SetHandler(handler Handler) {
	s.handler = handler
}

func (s *TimerScheduler) Start() {
	s.wheel.Start()
}

func (s *TimerScheduler) Stop() {
	s.wheel.Stop()
}

func (s *TimerScheduler) ScheduleContinuation(flowName string, conversationId string, token string, after time.Duration) error {
	s.wheel.AfterFunc(after, func() {
		err := s.handler(&model.InboundEvent{
			ConversationId: conversationId,
			FlowName:       flowName,
			DelayToken:     token,
		})
		if err != nil {
			logger.Error("error handling delay continuation",
				zap.String("flow", flowName), zap.String("conversation", conversationId), zap.Error(err))
		}
	})
	return nil
}

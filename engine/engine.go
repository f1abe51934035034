package engine

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/botforge/chatflow/flow"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/metadata"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"github.com/botforge/chatflow/transport"
	"go.uber.org/zap"
)

const saveAttempts = 3
const leaseTTL = 30 * time.Second

// ErrLeaseBusy means the per-(flow, conversation) lease could not be
// acquired in time; the caller must requeue the event, not drop it.
var ErrLeaseBusy = errors.New("conversation lease busy")

var ErrExecutionActive = errors.New("an active execution already exists for this conversation")

// Scheduler re-invokes the engine with the token after the duration.
type Scheduler interface {
	ScheduleContinuation(flowName string, conversationId string, token string, after time.Duration) error
}

type Engine struct {
	metadata  metadata.Service
	storage   persistence.Storage
	transport transport.Transport
	tags      transport.TagStore
	scheduler Scheduler
	maxSteps  int
	lockWait  time.Duration
	now       func() time.Time
}

func NewEngine(metadataService metadata.Service, storage persistence.Storage,
	tr transport.Transport, tags transport.TagStore, scheduler Scheduler,
	maxSteps int, lockWait time.Duration) *Engine {
	if maxSteps <= 0 {
		maxSteps = 25
	}
	return &Engine{
		metadata:  metadataService,
		storage:   storage,
		transport: tr,
		tags:      tags,
		scheduler: scheduler,
		maxSteps:  maxSteps,
		lockWait:  lockWait,
		now:       time.Now,
	}
}

// SetClock injects the wall clock used for history timestamps.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// HandleEvent is the engine entry point for a normalized inbound event.
// Events naming a flow go straight to that execution; otherwise the
// event is routed to the conversation's active execution or, failing
// that, through trigger resolution.
func (e *Engine) HandleEvent(event *model.InboundEvent) (*model.AdvanceResult, error) {
	if event.ConversationId == "" {
		return nil, errors.New("event has no conversation id")
	}
	if event.FlowName != "" {
		return e.continueFlow(event.FlowName, event)
	}
	defs, err := e.metadata.ListActiveDefinitions()
	if err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	for _, def := range defs {
		flowCtx, err := e.storage.Executions().Load(def.Name, event.ConversationId)
		if err != nil {
			continue
		}
		if flowCtx.Status == model.STATUS_ACTIVE {
			return e.continueFlow(def.Name, event)
		}
	}
	for _, def := range defs {
		if !flow.MatchTrigger(&def, event) {
			continue
		}
		if def.Trigger.Type == model.TRIGGER_TYPE_ALWAYS {
			// always-on enrolls only conversations with no prior record
			if _, err := e.storage.Executions().Load(def.Name, event.ConversationId); err == nil {
				continue
			}
		}
		return e.StartFlow(&model.StartFlowRequest{
			FlowName:       def.Name,
			ConversationId: event.ConversationId,
		}, event)
	}
	logger.Debug("no active execution or trigger for event",
		zap.String("conversation", event.ConversationId))
	return &model.AdvanceResult{Ignored: true}, nil
}

// StartFlow explicitly starts a flow for a conversation (manual trigger
// or resolved automatic trigger). A terminal or paused prior execution
// is replaced; an active one is a conflict.
func (e *Engine) StartFlow(req *model.StartFlowRequest, event *model.InboundEvent) (*model.AdvanceResult, error) {
	fl, err := e.metadata.GetFlow(req.FlowName)
	if err != nil {
		return nil, err
	}
	key := leaseKey(req.FlowName, req.ConversationId)
	ok, err := e.storage.Locks().Acquire(key, leaseTTL, e.lockWait)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseBusy
	}
	defer e.storage.Locks().Release(key)

	prior, err := e.storage.Executions().Load(req.FlowName, req.ConversationId)
	if err == nil {
		if prior.Status == model.STATUS_ACTIVE {
			return nil, ErrExecutionActive
		}
		if err := e.storage.Executions().Delete(req.FlowName, req.ConversationId); err != nil {
			return nil, err
		}
	}

	now := e.now()
	variables := req.Variables
	if variables == nil {
		variables = make(map[string]any)
	}
	flowCtx := &model.ExecutionContext{
		Id:             uuid.New().String(),
		FlowName:       req.FlowName,
		ConversationId: req.ConversationId,
		CurrentBlock:   fl.StartBlock,
		Variables:      variables,
		Status:         model.STATUS_ACTIVE,
		StartedAt:      now,
		LastStepAt:     now,
	}
	if err := e.storage.Executions().Create(flowCtx); err != nil {
		return nil, err
	}
	logger.Info("starting flow", zap.String("flow", req.FlowName),
		zap.String("conversation", req.ConversationId), zap.String("execution", flowCtx.Id))
	return e.advanceAndSave(fl, flowCtx, event)
}

// continueFlow drives one advance cycle for an existing execution under
// the conversation lease, retrying on save conflicts from a fresh load.
func (e *Engine) continueFlow(flowName string, event *model.InboundEvent) (*model.AdvanceResult, error) {
	fl, err := e.metadata.GetFlow(flowName)
	if err != nil {
		return nil, err
	}
	key := leaseKey(flowName, event.ConversationId)
	ok, err := e.storage.Locks().Acquire(key, leaseTTL, e.lockWait)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseBusy
	}
	defer e.storage.Locks().Release(key)

	var result *model.AdvanceResult
	for attempt := 0; attempt < saveAttempts; attempt++ {
		flowCtx, err := e.storage.Executions().Load(flowName, event.ConversationId)
		if err != nil {
			return nil, err
		}
		if flowCtx.Status != model.STATUS_ACTIVE {
			logger.Debug("execution is not active, dropping event",
				zap.String("flow", flowName), zap.String("conversation", event.ConversationId),
				zap.String("status", string(flowCtx.Status)))
			return &model.AdvanceResult{ExecutionId: flowCtx.Id, Status: flowCtx.Status, Ignored: true}, nil
		}
		result, err = e.advanceAndSave(fl, flowCtx, event)
		if err != nil {
			var conflict persistence.ConflictError
			if errors.As(err, &conflict) {
				logger.Warn("conflict saving execution, retrying advance",
					zap.String("flow", flowName), zap.String("conversation", event.ConversationId))
				continue
			}
			return nil, err
		}
		return result, nil
	}
	return nil, persistence.ConflictError{FlowName: flowName, ConversationId: event.ConversationId}
}

// Cancel force-pauses an execution under the same lease discipline as
// advance. Terminal executions are left untouched.
func (e *Engine) Cancel(flowName string, conversationId string) (*model.AdvanceResult, error) {
	key := leaseKey(flowName, conversationId)
	ok, err := e.storage.Locks().Acquire(key, leaseTTL, e.lockWait)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseBusy
	}
	defer e.storage.Locks().Release(key)

	flowCtx, err := e.storage.Executions().Load(flowName, conversationId)
	if err != nil {
		return nil, err
	}
	if flowCtx.Status.Terminal() {
		return &model.AdvanceResult{ExecutionId: flowCtx.Id, Status: flowCtx.Status, Ignored: true}, nil
	}
	flowCtx.Status = model.STATUS_PAUSED
	flowCtx.Wait = model.WAIT_NONE
	flowCtx.DelayToken = ""
	flowCtx.LastStepAt = e.now()
	if err := e.storage.Executions().Save(flowCtx); err != nil {
		return nil, err
	}
	logger.Info("execution cancelled", zap.String("flow", flowName), zap.String("conversation", conversationId))
	return &model.AdvanceResult{ExecutionId: flowCtx.Id, Status: flowCtx.Status}, nil
}

func (e *Engine) GetExecution(flowName string, conversationId string) (*model.ExecutionContext, error) {
	return e.storage.Executions().Load(flowName, conversationId)
}

func (e *Engine) advanceAndSave(fl *flow.Flow, flowCtx *model.ExecutionContext, event *model.InboundEvent) (*model.AdvanceResult, error) {
	if event != nil && event.EventId != "" && flowCtx.EventProcessed(event.EventId) {
		logger.Debug("event already processed", zap.String("event", event.EventId))
		return &model.AdvanceResult{ExecutionId: flowCtx.Id, Status: flowCtx.Status, Deduped: true}, nil
	}
	result, pendingDelay, err := e.advance(fl, flowCtx, event)
	if err != nil {
		return nil, err
	}
	if result.Ignored {
		// nothing changed, nothing to persist
		return result, nil
	}
	if event != nil {
		flowCtx.MarkEventProcessed(event.EventId)
	}
	if err := e.storage.Executions().Save(flowCtx); err != nil {
		return nil, err
	}
	if pendingDelay != nil {
		if err := e.scheduler.ScheduleContinuation(flowCtx.FlowName, flowCtx.ConversationId,
			pendingDelay.token, pendingDelay.after); err != nil {
			logger.Error("error scheduling delay continuation",
				zap.String("flow", flowCtx.FlowName), zap.String("conversation", flowCtx.ConversationId), zap.Error(err))
			return result, err
		}
	}
	var sendErr error
	for i := range result.Messages {
		if err := e.transport.SendMessage(flowCtx.ConversationId, &result.Messages[i]); err != nil {
			logger.Error("error sending message", zap.String("conversation", flowCtx.ConversationId), zap.Error(err))
			if sendErr == nil {
				sendErr = err
			}
		}
	}
	return result, sendErr
}

type delaySchedule struct {
	token string
	after time.Duration
}

// advance evaluates blocks until the execution blocks on input, delays,
// transfers, ends, or errors. The step bound guards authored cycles.
func (e *Engine) advance(fl *flow.Flow, flowCtx *model.ExecutionContext, event *model.InboundEvent) (*model.AdvanceResult, *delaySchedule, error) {
	result := &model.AdvanceResult{ExecutionId: flowCtx.Id}
	now := e.now()
	var pendingDelay *delaySchedule

	if flowCtx.Wait == model.WAIT_DELAY {
		if event == nil || event.DelayToken == "" || event.DelayToken != flowCtx.DelayToken {
			// not our continuation; a reply mid-delay does not advance
			result.Status = flowCtx.Status
			result.Ignored = true
			return result, nil, nil
		}
		current, ok := fl.Blocks[flowCtx.CurrentBlock]
		if !ok {
			e.failExecution(flowCtx, result, now, "block "+flowCtx.CurrentBlock+" not found in flow")
			return result, nil, nil
		}
		flowCtx.Wait = model.WAIT_NONE
		flowCtx.DelayToken = ""
		flowCtx.CurrentBlock = current.GetNext()
	}

	var stepEvent *model.InboundEvent
	if flowCtx.Wait == model.WAIT_REPLY {
		if !event.UserReply() {
			result.Status = flowCtx.Status
			result.Ignored = true
			return result, nil, nil
		}
		stepEvent = event
		flowCtx.Wait = model.WAIT_NONE
	}

	steps := 0
	for {
		steps++
		if steps > e.maxSteps {
			e.failExecution(flowCtx, result, now, "maximum step count exceeded, flow has a cycle with no reply wait")
			break
		}
		current, ok := fl.Blocks[flowCtx.CurrentBlock]
		if !ok {
			e.failExecution(flowCtx, result, now, "block "+flowCtx.CurrentBlock+" not found in flow")
			break
		}
		if current.GetType() == model.BLOCK_TYPE_WEBHOOK {
			// checkpoint before the non-retryable side effect
			if err := e.storage.Executions().Save(flowCtx); err != nil {
				return nil, nil, err
			}
		}
		res := current.Evaluate(flowCtx, stepEvent)
		stepEvent = nil
		flowCtx.LastStepAt = now
		for name, value := range res.Vars {
			flowCtx.SetVariable(name, value)
		}
		e.applyTags(flowCtx, res.Tags)
		if res.Message != nil {
			result.Messages = append(result.Messages, *res.Message)
		}

		switch res.Kind {
		case model.STEP_EMIT, model.STEP_ACTION:
			e.appendHistory(flowCtx, current, &res, now)
			if res.Next == "" {
				// dead-end single-exit block is an implicit end
				e.complete(flowCtx, now)
				break
			}
			flowCtx.CurrentBlock = res.Next
			continue
		case model.STEP_AWAIT:
			flowCtx.Wait = model.WAIT_REPLY
		case model.STEP_DELAY:
			token := uuid.New().String()
			flowCtx.Wait = model.WAIT_DELAY
			flowCtx.DelayToken = token
			pendingDelay = &delaySchedule{token: token, after: res.Delay}
			e.appendHistory(flowCtx, current, &res, now)
		case model.STEP_TRANSFER:
			e.appendHistory(flowCtx, current, &res, now)
			if res.Transfer == model.TRANSFER_TO_AI {
				flowCtx.Status = model.STATUS_TRANSFERRED_AI
			} else {
				flowCtx.Status = model.STATUS_TRANSFERRED_HUMAN
			}
			completedAt := now
			flowCtx.CompletedAt = &completedAt
			transfer := &model.TransferSignal{To: res.Transfer}
			if res.Message != nil {
				transfer.Message = res.Message.Text
			}
			result.Transfer = transfer
		case model.STEP_END:
			e.appendHistory(flowCtx, current, &res, now)
			e.complete(flowCtx, now)
		case model.STEP_ERROR:
			record := model.StepRecord{
				BlockId:   current.GetId(),
				BlockType: current.GetType(),
				Timestamp: now,
				UserInput: res.UserInput,
				Error:     res.Err,
			}
			flowCtx.History = append(flowCtx.History, record)
			result.Error = res.Err
			if res.Recoverable {
				// stay on the same block, still awaiting the same input
				flowCtx.Wait = model.WAIT_REPLY
			} else {
				flowCtx.Status = model.STATUS_PAUSED
				logger.Error("evaluation error, pausing execution",
					zap.String("flow", flowCtx.FlowName), zap.String("conversation", flowCtx.ConversationId),
					zap.String("block", current.GetId()), zap.String("error", res.Err))
			}
		}
		break
	}
	result.Status = flowCtx.Status
	result.Variables = flowCtx.Variables
	return result, pendingDelay, nil
}

func (e *Engine) applyTags(flowCtx *model.ExecutionContext, ops []model.TagOp) {
	for _, op := range ops {
		var err error
		if op.Add {
			err = e.tags.AddTag(flowCtx.ConversationId, op.Tag)
		} else {
			err = e.tags.RemoveTag(flowCtx.ConversationId, op.Tag)
		}
		if err != nil {
			logger.Error("error applying tag", zap.String("conversation", flowCtx.ConversationId),
				zap.String("tag", op.Tag), zap.Error(err))
		}
	}
}

func (e *Engine) appendHistory(flowCtx *model.ExecutionContext, current flowBlock, res *model.StepResult, now time.Time) {
	flowCtx.History = append(flowCtx.History, model.StepRecord{
		BlockId:      current.GetId(),
		BlockType:    current.GetType(),
		Timestamp:    now,
		UserInput:    res.UserInput,
		ChosenTarget: res.ChosenTarget,
		NextBlock:    res.Next,
	})
}

func (e *Engine) complete(flowCtx *model.ExecutionContext, now time.Time) {
	flowCtx.Status = model.STATUS_COMPLETED
	completedAt := now
	flowCtx.CompletedAt = &completedAt
	flowCtx.Wait = model.WAIT_NONE
	logger.Info("flow completed", zap.String("flow", flowCtx.FlowName),
		zap.String("conversation", flowCtx.ConversationId), zap.String("execution", flowCtx.Id))
}

func (e *Engine) failExecution(flowCtx *model.ExecutionContext, result *model.AdvanceResult, now time.Time, message string) {
	flowCtx.History = append(flowCtx.History, model.StepRecord{
		BlockId:   flowCtx.CurrentBlock,
		Timestamp: now,
		Error:     message,
	})
	flowCtx.Status = model.STATUS_PAUSED
	result.Error = message
	logger.Error("execution failed", zap.String("flow", flowCtx.FlowName),
		zap.String("conversation", flowCtx.ConversationId), zap.String("error", message))
}

func leaseKey(flowName string, conversationId string) string {
	return flowName + ":" + conversationId
}

type flowBlock interface {
	GetId() string
	GetType() model.BlockType
}

package inmem

import (
	"sort"
	"sync"
	"time"

	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"github.com/botforge/chatflow/util"
)

var _ persistence.Storage = new(Storage)

type Storage struct {
	executions *executionStore
	metadata   *metadataStorage
	delayQueue *delayQueue
	locks      *lockManager
}

func NewStorage() *Storage {
	return &Storage{
		executions: &executionStore{
			records: make(map[string][]byte),
			encdec:  util.NewJsonEncoderDecoder[model.ExecutionContext](),
		},
		metadata: &metadataStorage{
			defs:   make(map[string][]byte),
			encdec: util.NewJsonEncoderDecoder[model.FlowDef](),
		},
		delayQueue: &delayQueue{
			queues: make(map[string][]delayedMessage),
		},
		locks: &lockManager{
			held: make(map[string]bool),
		},
	}
}

func (s *Storage) Executions() persistence.ExecutionStore {
	return s.executions
}

func (s *Storage) Metadata() persistence.MetadataStorage {
	return s.metadata
}

func (s *Storage) DelayQueue() persistence.DelayQueue {
	return s.delayQueue
}

func (s *Storage) Locks() persistence.LockManager {
	return s.locks
}

// executionStore keeps records JSON-encoded so loads hand out
// independent copies, same as the redis backend.
type executionStore struct {
	mu      sync.Mutex
	records map[string][]byte
	encdec  util.EncoderDecoder[model.ExecutionContext]
}

func executionKey(flowName string, conversationId string) string {
	return flowName + ":" + conversationId
}

func (es *executionStore) Load(flowName string, conversationId string) (*model.ExecutionContext, error) {
	es.mu.Lock()
	defer es.mu.Unlock()
	data, ok := es.records[executionKey(flowName, conversationId)]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "execution", Key: flowName + "/" + conversationId}
	}
	return es.encdec.Decode(data)
}

func (es *executionStore) Create(flowCtx *model.ExecutionContext) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	key := executionKey(flowCtx.FlowName, flowCtx.ConversationId)
	if _, ok := es.records[key]; ok {
		return persistence.ConflictError{FlowName: flowCtx.FlowName, ConversationId: flowCtx.ConversationId}
	}
	flowCtx.Version = 1
	data, err := es.encdec.Encode(*flowCtx)
	if err != nil {
		return err
	}
	es.records[key] = data
	return nil
}

func (es *executionStore) Save(flowCtx *model.ExecutionContext) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	key := executionKey(flowCtx.FlowName, flowCtx.ConversationId)
	if stored, ok := es.records[key]; ok {
		current, err := es.encdec.Decode(stored)
		if err != nil {
			return err
		}
		if current.Version != flowCtx.Version {
			return persistence.ConflictError{FlowName: flowCtx.FlowName, ConversationId: flowCtx.ConversationId}
		}
	}
	flowCtx.Version++
	data, err := es.encdec.Encode(*flowCtx)
	if err != nil {
		return err
	}
	es.records[key] = data
	return nil
}

func (es *executionStore) Delete(flowName string, conversationId string) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	delete(es.records, executionKey(flowName, conversationId))
	return nil
}

type metadataStorage struct {
	mu     sync.Mutex
	defs   map[string][]byte
	encdec util.EncoderDecoder[model.FlowDef]
}

func (ms *metadataStorage) SaveFlowDefinition(def model.FlowDef) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	data, err := ms.encdec.Encode(def)
	if err != nil {
		return err
	}
	ms.defs[def.Name] = data
	return nil
}

func (ms *metadataStorage) DeleteFlowDefinition(name string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.defs, name)
	return nil
}

func (ms *metadataStorage) GetFlowDefinition(name string) (*model.FlowDef, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	data, ok := ms.defs[name]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "flow", Key: name}
	}
	return ms.encdec.Decode(data)
}

func (ms *metadataStorage) ListFlowDefinitions() ([]model.FlowDef, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	names := make([]string, 0, len(ms.defs))
	for name := range ms.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]model.FlowDef, 0, len(names))
	for _, name := range names {
		def, err := ms.encdec.Decode(ms.defs[name])
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

type delayedMessage struct {
	readyAt time.Time
	message string
}

type delayQueue struct {
	mu     sync.Mutex
	queues map[string][]delayedMessage
}

func (dq *delayQueue) Push(queueName string, message []byte) error {
	return dq.PushWithDelay(queueName, 0, message)
}

func (dq *delayQueue) PushWithDelay(queueName string, delay time.Duration, message []byte) error {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	dq.queues[queueName] = append(dq.queues[queueName], delayedMessage{
		readyAt: time.Now().Add(delay),
		message: string(message),
	})
	return nil
}

func (dq *delayQueue) Pop(queueName string) ([]string, error) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	now := time.Now()
	var ready []string
	var pending []delayedMessage
	for _, m := range dq.queues[queueName] {
		if m.readyAt.After(now) {
			pending = append(pending, m)
		} else {
			ready = append(ready, m.message)
		}
	}
	dq.queues[queueName] = pending
	if len(ready) == 0 {
		return nil, persistence.EmptyQueueError{QueueName: queueName}
	}
	return ready, nil
}

type lockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func (lm *lockManager) Acquire(key string, ttl time.Duration, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		lm.mu.Lock()
		if !lm.held[key] {
			lm.held[key] = true
			lm.mu.Unlock()
			return true, nil
		}
		lm.mu.Unlock()
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (lm *lockManager) Release(key string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.held, key)
	return nil
}

package persistence

import (
	"fmt"
	"time"

	"github.com/botforge/chatflow/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type NotFoundError struct {
	Kind string
	Key  string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// ConflictError means the persisted record changed since it was loaded.
// The whole advance cycle must be retried from a fresh load.
type ConflictError struct {
	FlowName       string
	ConversationId string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict saving execution %s/%s", e.FlowName, e.ConversationId)
}

type EmptyQueueError struct {
	QueueName string
}

func (e EmptyQueueError) Error() string {
	return fmt.Sprintf("queue %s is empty", e.QueueName)
}

// ExecutionStore persists execution records keyed by (flow, conversation).
// Save performs an optimistic version check and returns ConflictError on
// a mismatch.
type ExecutionStore interface {
	Load(flowName string, conversationId string) (*model.ExecutionContext, error)
	Create(flowCtx *model.ExecutionContext) error
	Save(flowCtx *model.ExecutionContext) error
	Delete(flowName string, conversationId string) error
}

type MetadataStorage interface {
	SaveFlowDefinition(def model.FlowDef) error
	DeleteFlowDefinition(name string) error
	GetFlowDefinition(name string) (*model.FlowDef, error)
	ListFlowDefinitions() ([]model.FlowDef, error)
}

type DelayQueue interface {
	Push(queueName string, message []byte) error
	PushWithDelay(queueName string, delay time.Duration, message []byte) error
	Pop(queueName string) ([]string, error)
}

// LockManager hands out the per-(flow, conversation) lease that
// serializes advance calls. Acquire spins until the lease is held or
// wait elapses.
type LockManager interface {
	Acquire(key string, ttl time.Duration, wait time.Duration) (bool, error)
	Release(key string) error
}

// Storage bundles the backend implementations so the agent can swap
// redis for memory with one config switch.
type Storage interface {
	Executions() ExecutionStore
	Metadata() MetadataStorage
	DelayQueue() DelayQueue
	Locks() LockManager
}

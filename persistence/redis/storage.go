package redis

import (
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"github.com/botforge/chatflow/util"
)

var _ persistence.Storage = new(redisStorage)

type redisStorage struct {
	executions *redisExecutionDao
	metadata   *redisMetadataStorage
	delayQueue *redisDelayQueue
	locks      *redisLockManager
}

func NewRedisStorage(conf Config) *redisStorage {
	return &redisStorage{
		executions: NewRedisExecutionDao(conf, util.NewJsonEncoderDecoder[model.ExecutionContext]()),
		metadata:   NewRedisMetadataStorage(conf, util.NewJsonEncoderDecoder[model.FlowDef]()),
		delayQueue: NewRedisDelayQueue(conf),
		locks:      NewRedisLockManager(conf),
	}
}

func (s *redisStorage) Executions() persistence.ExecutionStore {
	return s.executions
}

func (s *redisStorage) Metadata() persistence.MetadataStorage {
	return s.metadata
}

func (s *redisStorage) DelayQueue() persistence.DelayQueue {
	return s.delayQueue
}

func (s *redisStorage) Locks() persistence.LockManager {
	return s.locks
}

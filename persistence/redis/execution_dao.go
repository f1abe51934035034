package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/botforge/chatflow/logger"
	"github.com/botforge/chatflow/model"
	"github.com/botforge/chatflow/persistence"
	"github.com/botforge/chatflow/util"
	"go.uber.org/zap"
)

const EXECUTION_KEY string = "EXEC"

var _ persistence.ExecutionStore = new(redisExecutionDao)

type redisExecutionDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.ExecutionContext]
}

func NewRedisExecutionDao(conf Config, encoderDecoder util.EncoderDecoder[model.ExecutionContext]) *redisExecutionDao {
	return &redisExecutionDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: encoderDecoder,
	}
}

func (re *redisExecutionDao) executionKey(flowName string, conversationId string) string {
	return re.getNamespaceKey(EXECUTION_KEY, flowName, conversationId)
}

func (re *redisExecutionDao) Load(flowName string, conversationId string) (*model.ExecutionContext, error) {
	ctx := context.Background()
	data, err := re.redisClient.Get(ctx, re.executionKey(flowName, conversationId)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "execution", Key: flowName + "/" + conversationId}
		}
		logger.Error("error in getting execution", zap.String("flow", flowName), zap.String("conversation", conversationId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return re.encoderDecoder.Decode([]byte(data))
}

func (re *redisExecutionDao) Create(flowCtx *model.ExecutionContext) error {
	ctx := context.Background()
	flowCtx.Version = 1
	data, err := re.encoderDecoder.Encode(*flowCtx)
	if err != nil {
		return err
	}
	ok, err := re.redisClient.SetNX(ctx, re.executionKey(flowCtx.FlowName, flowCtx.ConversationId), string(data), 0).Result()
	if err != nil {
		logger.Error("error in creating execution", zap.String("flow", flowCtx.FlowName), zap.String("conversation", flowCtx.ConversationId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !ok {
		return persistence.ConflictError{FlowName: flowCtx.FlowName, ConversationId: flowCtx.ConversationId}
	}
	return nil
}

// Save watches the execution key and only writes when the stored version
// still matches the loaded one, bumping the version on success.
func (re *redisExecutionDao) Save(flowCtx *model.ExecutionContext) error {
	ctx := context.Background()
	key := re.executionKey(flowCtx.FlowName, flowCtx.ConversationId)
	txf := func(tx *rd.Tx) error {
		stored, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return err
		}
		if err == nil {
			current, derr := re.encoderDecoder.Decode([]byte(stored))
			if derr != nil {
				return derr
			}
			if current.Version != flowCtx.Version {
				return persistence.ConflictError{FlowName: flowCtx.FlowName, ConversationId: flowCtx.ConversationId}
			}
		}
		next := *flowCtx
		next.Version = flowCtx.Version + 1
		data, err := re.encoderDecoder.Encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, string(data), 0)
			return nil
		})
		if err == nil {
			flowCtx.Version = next.Version
		}
		return err
	}
	err := re.redisClient.Watch(ctx, txf, key)
	if err != nil {
		var conflict persistence.ConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		if errors.Is(err, rd.TxFailedErr) {
			return persistence.ConflictError{FlowName: flowCtx.FlowName, ConversationId: flowCtx.ConversationId}
		}
		logger.Error("error in saving execution", zap.String("flow", flowCtx.FlowName), zap.String("conversation", flowCtx.ConversationId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (re *redisExecutionDao) Delete(flowName string, conversationId string) error {
	ctx := context.Background()
	if err := re.redisClient.Del(ctx, re.executionKey(flowName, conversationId)).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

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

const METADATA_KEY string = "FLOWDEF"

var _ persistence.MetadataStorage = new(redisMetadataStorage)

type redisMetadataStorage struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.FlowDef]
}

func NewRedisMetadataStorage(conf Config, encoderDecoder util.EncoderDecoder[model.FlowDef]) *redisMetadataStorage {
	return &redisMetadataStorage{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: encoderDecoder,
	}
}

func (rm *redisMetadataStorage) SaveFlowDefinition(def model.FlowDef) error {
	key := rm.getNamespaceKey(METADATA_KEY)
	ctx := context.Background()
	data, err := rm.encoderDecoder.Encode(def)
	if err != nil {
		return err
	}
	if err := rm.redisClient.HSet(ctx, key, def.Name, string(data)).Err(); err != nil {
		logger.Error("error in saving flow definition", zap.String("flow", def.Name), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rm *redisMetadataStorage) DeleteFlowDefinition(name string) error {
	key := rm.getNamespaceKey(METADATA_KEY)
	ctx := context.Background()
	if err := rm.redisClient.HDel(ctx, key, name).Err(); err != nil {
		logger.Error("error in deleting flow definition", zap.String("flow", name), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rm *redisMetadataStorage) GetFlowDefinition(name string) (*model.FlowDef, error) {
	key := rm.getNamespaceKey(METADATA_KEY)
	ctx := context.Background()
	data, err := rm.redisClient.HGet(ctx, key, name).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "flow", Key: name}
		}
		logger.Error("error in getting flow definition", zap.String("flow", name), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rm.encoderDecoder.Decode([]byte(data))
}

func (rm *redisMetadataStorage) ListFlowDefinitions() ([]model.FlowDef, error) {
	key := rm.getNamespaceKey(METADATA_KEY)
	ctx := context.Background()
	entries, err := rm.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("error in listing flow definitions", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defs := make([]model.FlowDef, 0, len(entries))
	for _, data := range entries {
		def, err := rm.encoderDecoder.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

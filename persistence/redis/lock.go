package redis

import (
	"context"
	"sync"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"github.com/botforge/chatflow/persistence"
)

const LOCK_KEY string = "LEASE"

// releaseScript deletes the lease only when the caller still owns it.
var releaseScript = rd.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

var _ persistence.LockManager = new(redisLockManager)

type redisLockManager struct {
	baseDao
	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLockManager(conf Config) *redisLockManager {
	return &redisLockManager{
		baseDao: *newBaseDao(conf),
		tokens:  make(map[string]string),
	}
}

func (rl *redisLockManager) Acquire(key string, ttl time.Duration, wait time.Duration) (bool, error) {
	ctx := context.Background()
	leaseKey := rl.getNamespaceKey(LOCK_KEY, key)
	token := uuid.New().String()
	deadline := time.Now().Add(wait)
	for {
		ok, err := rl.redisClient.SetNX(ctx, leaseKey, token, ttl).Result()
		if err != nil {
			return false, persistence.StorageLayerError{Message: err.Error()}
		}
		if ok {
			rl.mu.Lock()
			rl.tokens[key] = token
			rl.mu.Unlock()
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (rl *redisLockManager) Release(key string) error {
	ctx := context.Background()
	rl.mu.Lock()
	token := rl.tokens[key]
	delete(rl.tokens, key)
	rl.mu.Unlock()
	if token == "" {
		return nil
	}
	leaseKey := rl.getNamespaceKey(LOCK_KEY, key)
	if err := releaseScript.Run(ctx, rl.redisClient, []string{leaseKey}, token).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

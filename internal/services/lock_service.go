package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// releaseLockScript deletes the lock only if it is still held by the
// releasing actor, so a late release never clobbers another holder's lock.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockManager provides short-lived mutual exclusion keyed by resource.
// Locks self-expire via TTL, which is the only recovery path for a
// crashed holder.
type LockManager struct {
	redis *redis.Client
}

func NewLockManager(redisClient *redis.Client) *LockManager {
	return &LockManager{redis: redisClient}
}

func lockKey(resourceType, resourceID string) string {
	return fmt.Sprintf("lock:%s:%s", resourceType, resourceID)
}

// Acquire atomically creates the lock for the resource. It fails with
// LockError when a live lock already exists.
func (lm *LockManager) Acquire(ctx context.Context, resourceType, resourceID, actorID string, ttl time.Duration) error {
	key := lockKey(resourceType, resourceID)

	acquired, err := lm.redis.SetNX(ctx, key, actorID, ttl).Result()
	if err != nil {
		return &StorageError{Op: "acquire lock", Err: err}
	}
	if !acquired {
		log.Printf("[LOCK] Contention on %s (actor %s)", key, actorID)
		return &LockError{Resource: resourceType + ":" + resourceID}
	}
	return nil
}

// Release deletes the lock if held by the actor. Releasing a lock that has
// already expired or was never held is a no-op, so release is always safe
// to call from failure-handling paths.
func (lm *LockManager) Release(ctx context.Context, resourceType, resourceID, actorID string) error {
	key := lockKey(resourceType, resourceID)

	if err := releaseLockScript.Run(ctx, lm.redis, []string{key}, actorID).Err(); err != nil && err != redis.Nil {
		log.Printf("[LOCK] Failed to release %s: %v", key, err)
		return &StorageError{Op: "release lock", Err: err}
	}
	return nil
}

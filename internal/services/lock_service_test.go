package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestLockManager_Acquire(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	lm := NewLockManager(redisClient)
	ctx := context.Background()

	t.Run("acquires free lock", func(t *testing.T) {
		redisMock.ExpectSetNX("lock:withdrawal:WD-1", "user_1", 30*time.Second).SetVal(true)

		err := lm.Acquire(ctx, "withdrawal", "WD-1", "user_1", 30*time.Second)
		assert.NoError(t, err)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("held lock is contended", func(t *testing.T) {
		redisMock.ExpectSetNX("lock:withdrawal:WD-1", "user_2", 30*time.Second).SetVal(false)

		err := lm.Acquire(ctx, "withdrawal", "WD-1", "user_2", 30*time.Second)

		var lockErr *LockError
		assert.ErrorAs(t, err, &lockErr)
		assert.Equal(t, "withdrawal:WD-1", lockErr.Resource)
	})

	t.Run("redis failure", func(t *testing.T) {
		redisMock.ExpectSetNX("lock:withdrawal:WD-1", "user_1", 30*time.Second).
			SetErr(errors.New("connection refused"))

		err := lm.Acquire(ctx, "withdrawal", "WD-1", "user_1", 30*time.Second)

		var storageErr *StorageError
		assert.ErrorAs(t, err, &storageErr)
	})
}

func TestLockManager_Release(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	lm := NewLockManager(redisClient)
	ctx := context.Background()

	t.Run("releases held lock", func(t *testing.T) {
		redisMock.ExpectEvalSha(releaseLockScript.Hash(),
			[]string{"lock:withdrawal:WD-1"}, "user_1").SetVal(int64(1))

		err := lm.Release(ctx, "withdrawal", "WD-1", "user_1")
		assert.NoError(t, err)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("releasing expired lock is a no-op", func(t *testing.T) {
		redisMock.ExpectEvalSha(releaseLockScript.Hash(),
			[]string{"lock:withdrawal:WD-1"}, "user_1").SetVal(int64(0))

		err := lm.Release(ctx, "withdrawal", "WD-1", "user_1")
		assert.NoError(t, err)
	})

	t.Run("another holder's lock survives", func(t *testing.T) {
		// The check-and-delete script returns 0 when the value no longer
		// matches the releasing actor.
		redisMock.ExpectEvalSha(releaseLockScript.Hash(),
			[]string{"lock:withdrawal:WD-1"}, "user_stale").SetVal(int64(0))

		err := lm.Release(ctx, "withdrawal", "WD-1", "user_stale")
		assert.NoError(t, err)
	})
}

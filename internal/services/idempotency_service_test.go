package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestIdempotencyGuard(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	guard := NewIdempotencyGuard(redisClient)
	ctx := context.Background()

	key := "idem:key-1:user_1:st_1:POST:/withdrawals"

	t.Run("miss returns nil", func(t *testing.T) {
		redisMock.ExpectGet(key).RedisNil()

		cached, err := guard.Check(ctx, "key-1", "user_1", "st_1", "POST:/withdrawals")
		assert.NoError(t, err)
		assert.Nil(t, cached)
	})

	t.Run("hit returns the stored response", func(t *testing.T) {
		body := []byte(`{"success":true,"data":{"reference":"WD-1"}}`)
		record, _ := json.Marshal(CachedResponse{Status: http.StatusCreated, Body: body})
		redisMock.ExpectGet(key).SetVal(string(record))

		cached, err := guard.Check(ctx, "key-1", "user_1", "st_1", "POST:/withdrawals")
		assert.NoError(t, err)
		assert.NotNil(t, cached)
		assert.Equal(t, http.StatusCreated, cached.Status)
		assert.Equal(t, body, []byte(cached.Body))
	})

	t.Run("corrupt record is treated as a miss", func(t *testing.T) {
		redisMock.ExpectGet(key).SetVal("not-json")

		cached, err := guard.Check(ctx, "key-1", "user_1", "st_1", "POST:/withdrawals")
		assert.NoError(t, err)
		assert.Nil(t, cached)
	})

	t.Run("same key different user is a different record", func(t *testing.T) {
		redisMock.ExpectGet("idem:key-1:user_2:st_1:POST:/withdrawals").RedisNil()

		cached, err := guard.Check(ctx, "key-1", "user_2", "st_1", "POST:/withdrawals")
		assert.NoError(t, err)
		assert.Nil(t, cached)
	})

	t.Run("store persists with ttl", func(t *testing.T) {
		body := []byte(`{"success":true}`)
		record, _ := json.Marshal(CachedResponse{Status: http.StatusOK, Body: body})
		redisMock.ExpectSet(key, record, 24*time.Hour).SetVal("OK")

		err := guard.Store(ctx, "key-1", "user_1", "st_1", "POST:/withdrawals",
			http.StatusOK, body, 24*time.Hour)
		assert.NoError(t, err)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

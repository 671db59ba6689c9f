package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// CachedResponse is the previously computed result of a mutating request,
// replayed byte-for-byte on an idempotent retry.
type CachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyGuard deduplicates retried mutating requests using a
// client-supplied key scoped to user, store and route. Records expire via
// the TTL supplied at store time.
type IdempotencyGuard struct {
	redis *redis.Client
}

func NewIdempotencyGuard(redisClient *redis.Client) *IdempotencyGuard {
	return &IdempotencyGuard{redis: redisClient}
}

func idempotencyKey(key, userID, storeID, route string) string {
	return fmt.Sprintf("idem:%s:%s:%s:%s", key, userID, storeID, route)
}

// Check returns the cached response for the tuple, or nil on a miss.
func (g *IdempotencyGuard) Check(ctx context.Context, key, userID, storeID, route string) (*CachedResponse, error) {
	data, err := g.redis.Get(ctx, idempotencyKey(key, userID, storeID, route)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "idempotency check", Err: err}
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		// A corrupt record is treated as a miss; the underlying mutation
		// is still protected by the lock manager.
		log.Printf("[IDEMPOTENCY] Discarding corrupt record for key %s: %v", key, err)
		return nil, nil
	}
	return &cached, nil
}

// Store persists the response for the tuple with a TTL. Last write wins on
// the rare concurrent double-miss; the lock manager protects the mutation.
func (g *IdempotencyGuard) Store(ctx context.Context, key, userID, storeID, route string, status int, body []byte, ttl time.Duration) error {
	data, err := json.Marshal(CachedResponse{Status: status, Body: body})
	if err != nil {
		return &StorageError{Op: "encode idempotency record", Err: err}
	}

	if err := g.redis.Set(ctx, idempotencyKey(key, userID, storeID, route), data, ttl).Err(); err != nil {
		return &StorageError{Op: "store idempotency record", Err: err}
	}
	return nil
}

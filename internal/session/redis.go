package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a redis hash so the cart map and the
// linked order id expire together with the rest of the session.
type RedisStore struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		baseTTL: 24 * time.Hour,
	}
}

func (r *RedisStore) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	data, err := r.client.HGet(ctx, sessionKey(sessionID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget failed: %w", err)
	}
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	sk := sessionKey(sessionID)
	if err := r.client.HSet(ctx, sk, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}

	// Refresh the session lifetime on every write, with jitter so a burst of
	// sessions does not expire at once.
	jitter := time.Duration(rand.Intn(30)) * time.Minute
	if err := r.client.Expire(ctx, sk, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis expire failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, sessionID, key string) error {
	if err := r.client.HDel(ctx, sessionKey(sessionID), key).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nemanja-m/inferq/internal/broker/core"
)

// RedisResultStore keeps results as JSON strings and relies on Redis key
// expiry for the TTL.
type RedisResultStore struct {
	client *redis.Client
	prefix string
}

func NewRedisResultStore(client *redis.Client, prefix string) *RedisResultStore {
	if prefix == "" {
		prefix = "inferq:results"
	}
	return &RedisResultStore{client: client, prefix: prefix}
}

func (s *RedisResultStore) key(jobID string) string {
	return s.prefix + ":" + jobID
}

// reservationKey keeps job ID reservations apart from result keys.
func (s *RedisResultStore) reservationKey(jobID string) string {
	return s.prefix + ".ids:" + jobID
}

func (s *RedisResultStore) Reserve(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.reservationKey(jobID), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (s *RedisResultStore) Release(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, s.reservationKey(jobID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisResultStore) Publish(ctx context.Context, result core.Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", result.JobID, err)
	}
	if err := s.client.Set(ctx, s.key(result.JobID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisResultStore) Fetch(ctx context.Context, jobID string) (core.Result, error) {
	data, err := s.client.Get(ctx, s.key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Result{}, core.ErrResultNotFound
	}
	if err != nil {
		return core.Result{}, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}

	var result core.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return core.Result{}, fmt.Errorf("failed to decode result %s: %w", jobID, err)
	}
	return result, nil
}

func (s *RedisResultStore) Delete(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, s.key(jobID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisResultStore) Close() error {
	return s.client.Close()
}

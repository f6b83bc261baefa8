package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

// newTestRedisQueue connects to the Redis named by INFERQ_TEST_REDIS_ADDR and
// uses a unique key so parallel runs do not interfere.
func newTestRedisQueue(t *testing.T, cfg RedisQueueConfig) *RedisQueue {
	t.Helper()
	addr := os.Getenv("INFERQ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INFERQ_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	cfg.Key = "inferq:test:" + uuid.NewString()
	q := NewRedisQueue(client, cfg, logging.Discard())
	t.Cleanup(func() {
		ctx := context.Background()
		client.Del(ctx, q.pendingKey(), q.processingKey(), q.deadlinesKey())
		_ = q.Close()
	})
	return q
}

func TestRedisQueue_FIFO(t *testing.T) {
	q := newTestRedisQueue(t, RedisQueueConfig{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, newJob(id)))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, want := range []string{"a", "b", "c"} {
		d, ok, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, d.Job.ID)
	}

	_, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisQueue_Capacity(t *testing.T) {
	q := newTestRedisQueue(t, RedisQueueConfig{Capacity: 1})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newJob("a")))
	assert.ErrorIs(t, q.Enqueue(ctx, newJob("b")), core.ErrQueueFull)
}

func TestRedisQueue_RedeliveryAndAck(t *testing.T) {
	q := newTestRedisQueue(t, RedisQueueConfig{VisibilityTimeout: time.Second})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newJob("a")))
	require.NoError(t, q.Enqueue(ctx, newJob("b")))

	first, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", first.Job.ID)
	assert.NotEmpty(t, first.Receipt)

	moved, err := q.RequeueExpired(ctx, time.Now().Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	again, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", again.Job.ID)
	assert.Equal(t, 2, again.Attempt)

	require.NoError(t, q.Ack(ctx, again))
	moved, err = q.RequeueExpired(ctx, time.Now().Add(5*time.Second))
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestRedisQueue_Cancel(t *testing.T) {
	q := newTestRedisQueue(t, RedisQueueConfig{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newJob("a")))
	removed, err := q.Cancel(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisQueue_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	q := NewRedisQueue(client, RedisQueueConfig{}, logging.Discard())
	defer q.Close()

	err := q.Enqueue(context.Background(), newJob("a"))
	assert.ErrorIs(t, err, core.ErrQueueUnavailable)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/broker/queue"
	"github.com/nemanja-m/inferq/internal/broker/storage"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

type janitorTestLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *janitorTestLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *janitorTestLogger) Debug(msg string, args ...any) { l.record(msg) }
func (l *janitorTestLogger) Info(msg string, args ...any)  { l.record(msg) }
func (l *janitorTestLogger) Warn(msg string, args ...any)  { l.record(msg) }
func (l *janitorTestLogger) Error(msg string, args ...any) { l.record(msg) }
func (l *janitorTestLogger) Fatal(msg string, args ...any) { l.record(msg) }
func (l *janitorTestLogger) With(args ...any) logging.Logger {
	return l
}

func (l *janitorTestLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m == msg {
			return true
		}
	}
	return false
}

type failingPurgeStore struct {
	core.ResultStore
}

func (failingPurgeStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, errors.New("database is down")
}

func TestJanitor_SweepRequeuesAndPurges(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(queue.MemoryQueueConfig{VisibilityTimeout: time.Minute})
	s := storage.NewInMemoryResultStore()

	require.NoError(t, q.Enqueue(ctx, core.Job{ID: "a", PayloadRef: "img"}))
	_, ok, err := q.Dequeue(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	result, _ := core.NewResult("old", "cat", 0.9)
	require.NoError(t, s.Publish(ctx, result, time.Second))

	logger := &janitorTestLogger{}
	j := NewJanitor(time.Second, q, s, logger)
	require.True(t, j.Enabled())

	j.Sweep(ctx, time.Now().Add(2*time.Minute))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, logger.has("Requeued expired deliveries"))
	assert.True(t, logger.has("Purged expired results"))
}

func TestJanitor_LogsErrors(t *testing.T) {
	logger := &janitorTestLogger{}
	j := NewJanitor(time.Second, queue.NewMemoryQueue(queue.MemoryQueueConfig{}), failingPurgeStore{}, logger)

	j.Sweep(context.Background(), time.Now())
	assert.True(t, logger.has("Failed to purge expired results"))
}

type plainQueue struct{ core.JobQueue }
type plainStore struct{ core.ResultStore }

func TestJanitor_DisabledWithoutCapabilities(t *testing.T) {
	j := NewJanitor(time.Second, plainQueue{}, plainStore{}, logging.Discard())
	assert.False(t, j.Enabled())

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately when disabled")
	}
}

func TestJanitor_StopsOnContextCancel(t *testing.T) {
	j := NewJanitor(10*time.Millisecond, queue.NewMemoryQueue(queue.MemoryQueueConfig{}), storage.NewInMemoryResultStore(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

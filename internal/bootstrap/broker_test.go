package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemanja-m/inferq/internal/broker/client"
	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/broker/queue"
	"github.com/nemanja-m/inferq/internal/broker/storage"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

func TestNewBroker_Memory(t *testing.T) {
	cfg := config.BrokerConfig{
		Queue:         config.QueueConfig{Backend: "memory", Capacity: 3},
		Store:         config.StoreConfig{Backend: "memory"},
		ResultTTL:     time.Minute,
		PollInterval:  5 * time.Millisecond,
		SubmitTimeout: time.Second,
	}
	b, err := NewBroker(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &queue.MemoryQueue{}, b.Queue)
	assert.IsType(t, &storage.InMemoryResultStore{}, b.Store)

	c := b.Client(cfg, logging.Discard())
	job, err := c.Submit(context.Background(), client.SubmitRequest{PayloadRef: "img.png"})
	require.NoError(t, err)
	n, err := b.Queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotEmpty(t, job.ID)
}

func TestNewQueue_RedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewQueue(ctx, config.QueueConfig{Backend: "redis", Redis: config.RedisConfig{Addr: "127.0.0.1:1"}}, logging.Discard())
	assert.ErrorIs(t, err, core.ErrQueueUnavailable)
}

func TestNewQueue_SQS(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	q, err := NewQueue(context.Background(), config.QueueConfig{
		Backend: "sqs",
		SQS:     config.SQSConfig{QueueURL: "http://localhost:4566/000000000000/jobs", Region: "us-east-1", Endpoint: "http://localhost:4566"},
	}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &queue.SQSQueue{}, q)
}

func TestUnknownBackends(t *testing.T) {
	_, err := NewQueue(context.Background(), config.QueueConfig{Backend: "kafka"}, logging.Discard())
	assert.Error(t, err)

	_, err = NewResultStore(context.Background(), config.StoreConfig{Backend: "mongo"})
	assert.Error(t, err)
}

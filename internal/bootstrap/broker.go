// Package bootstrap builds broker backends from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/nemanja-m/inferq/internal/broker/client"
	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/broker/queue"
	"github.com/nemanja-m/inferq/internal/broker/storage"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

// NewQueue connects to the configured job queue backend.
func NewQueue(ctx context.Context, cfg config.QueueConfig, logger logging.Logger) (core.JobQueue, error) {
	switch cfg.Backend {
	case "memory":
		return queue.NewMemoryQueue(queue.MemoryQueueConfig{
			Capacity:          cfg.Capacity,
			VisibilityTimeout: cfg.VisibilityTimeout,
		}), nil
	case "redis":
		rdb, err := newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrQueueUnavailable, err)
		}
		return queue.NewRedisQueue(rdb, queue.RedisQueueConfig{
			Key:               cfg.Redis.Key,
			Capacity:          cfg.Capacity,
			VisibilityTimeout: cfg.VisibilityTimeout,
		}, logger), nil
	case "sqs":
		sqsClient, err := newSQSClient(ctx, cfg.SQS)
		if err != nil {
			return nil, err
		}
		return queue.NewSQSQueue(sqsClient, queue.SQSQueueConfig{
			QueueURL:          cfg.SQS.QueueURL,
			Capacity:          cfg.Capacity,
			VisibilityTimeout: cfg.VisibilityTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// NewResultStore connects to the configured result store backend.
func NewResultStore(ctx context.Context, cfg config.StoreConfig) (core.ResultStore, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewInMemoryResultStore(), nil
	case "redis":
		rdb, err := newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
		}
		return storage.NewRedisResultStore(rdb, cfg.Redis.Key), nil
	case "postgres":
		return storage.OpenPostgresResultStore(ctx, storage.PostgresConfig{
			URL:          cfg.Postgres.URL,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			Migrate:      cfg.Postgres.Migrate,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Broker bundles the queue and store a process talks to.
type Broker struct {
	Queue core.JobQueue
	Store core.ResultStore
}

func NewBroker(ctx context.Context, cfg config.BrokerConfig, logger logging.Logger) (*Broker, error) {
	q, err := NewQueue(ctx, cfg.Queue, logger)
	if err != nil {
		return nil, err
	}
	s, err := NewResultStore(ctx, cfg.Store)
	if err != nil {
		q.Close()
		return nil, err
	}
	return &Broker{Queue: q, Store: s}, nil
}

// Client returns a broker client configured from cfg.
func (b *Broker) Client(cfg config.BrokerConfig, logger logging.Logger) *client.Client {
	return client.New(b.Queue, b.Store, client.Config{
		PollInterval:   cfg.PollInterval,
		DefaultTimeout: cfg.SubmitTimeout,
		JobIDTTL:       cfg.JobIDTTL,
		ClaimResults:   cfg.ClaimResults,
	}, logger)
}

func (b *Broker) Close() error {
	qErr := b.Queue.Close()
	sErr := b.Store.Close()
	if qErr != nil {
		return qErr
	}
	return sErr
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func newSQSClient(ctx context.Context, cfg config.SQSConfig) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

// enqueueScript pushes onto the pending list unless it already holds
// ARGV[2] entries. A non-positive ARGV[2] means unbounded.
var enqueueScript = redis.NewScript(`
local limit = tonumber(ARGV[2])
if limit > 0 and redis.call('LLEN', KEYS[1]) >= limit then
	return -1
end
return redis.call('LPUSH', KEYS[1], ARGV[1])
`)

type RedisQueueConfig struct {
	Key               string
	Capacity          int
	VisibilityTimeout time.Duration
}

// RedisQueue is a job queue on a Redis list. Producers LPUSH and consumers
// pop from the right, so a single producer's jobs come out in order. Redis
// hands each popped element to exactly one client.
//
// With a visibility timeout, consumers BLMOVE jobs into a processing list and
// record a deadline in a sorted set; the raw element doubles as the receipt.
type RedisQueue struct {
	client *redis.Client
	cfg    RedisQueueConfig
	logger logging.Logger
}

func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig, logger logging.Logger) *RedisQueue {
	if cfg.Key == "" {
		cfg.Key = "inferq:jobs"
	}
	return &RedisQueue{client: client, cfg: cfg, logger: logger}
}

func (q *RedisQueue) pendingKey() string    { return q.cfg.Key + ":pending" }
func (q *RedisQueue) processingKey() string { return q.cfg.Key + ":processing" }
func (q *RedisQueue) deadlinesKey() string  { return q.cfg.Key + ":deadlines" }

func (q *RedisQueue) Enqueue(ctx context.Context, job core.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	raw, err := encodeEnvelope(job, 1)
	if err != nil {
		return err
	}
	n, err := enqueueScript.Run(ctx, q.client, []string{q.pendingKey()}, raw, q.cfg.Capacity).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n < 0 {
		return fmt.Errorf("%w: capacity %d reached", core.ErrQueueFull, q.cfg.Capacity)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (core.Delivery, bool, error) {
	timeout = blockingTimeout(timeout)

	if q.cfg.VisibilityTimeout <= 0 {
		res, err := q.client.BRPop(ctx, timeout, q.pendingKey()).Result()
		if errors.Is(err, redis.Nil) {
			return core.Delivery{}, false, nil
		}
		if err != nil {
			return core.Delivery{}, false, q.dequeueErr(ctx, err)
		}
		// BRPOP returns [key, value].
		return q.delivery(res[1], "")
	}

	raw, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return core.Delivery{}, false, nil
	}
	if err != nil {
		return core.Delivery{}, false, q.dequeueErr(ctx, err)
	}
	deadline := time.Now().Add(q.cfg.VisibilityTimeout)
	if err := q.client.ZAdd(ctx, q.deadlinesKey(), redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: raw,
	}).Err(); err != nil {
		return core.Delivery{}, false, unavailable(err)
	}
	return q.delivery(raw, raw)
}

func (q *RedisQueue) Ack(ctx context.Context, d core.Delivery) error {
	if d.Receipt == "" {
		return nil
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(), 1, d.Receipt)
		pipe.ZRem(ctx, q.deadlinesKey(), d.Receipt)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// RequeueExpired moves in-flight jobs whose deadline passed back to the head
// of the pending list. Only the caller that removes the deadline entry
// requeues the job, so concurrent sweeps never duplicate it.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time) (int, error) {
	if q.cfg.VisibilityTimeout <= 0 {
		return 0, nil
	}
	expired, err := q.client.ZRangeByScore(ctx, q.deadlinesKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	moved := 0
	for _, raw := range expired {
		removed, err := q.client.ZRem(ctx, q.deadlinesKey(), raw).Result()
		if err != nil {
			return moved, unavailable(err)
		}
		if removed == 0 {
			continue
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			q.logger.Error("Dropping undecodable in-flight job", "error", err)
			q.client.LRem(ctx, q.processingKey(), 1, raw)
			continue
		}
		next, err := encodeEnvelope(env.Job, env.Attempt+1)
		if err != nil {
			return moved, err
		}
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processingKey(), 1, raw)
			pipe.RPush(ctx, q.pendingKey(), next)
			return nil
		})
		if err != nil {
			return moved, unavailable(err)
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQueue) Cancel(ctx context.Context, jobID string) (bool, error) {
	items, err := q.client.LRange(ctx, q.pendingKey(), 0, -1).Result()
	if err != nil {
		return false, unavailable(err)
	}
	for _, raw := range items {
		env, err := decodeEnvelope(raw)
		if err != nil || env.Job.ID != jobID {
			continue
		}
		removed, err := q.client.LRem(ctx, q.pendingKey(), 1, raw).Result()
		if err != nil {
			return false, unavailable(err)
		}
		return removed > 0, nil
	}
	return false, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) delivery(raw, receipt string) (core.Delivery, bool, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return core.Delivery{}, false, err
	}
	return core.Delivery{Job: env.Job, Receipt: receipt, Attempt: env.Attempt}, true, nil
}

func (q *RedisQueue) dequeueErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return unavailable(err)
}

// blockingTimeout rounds up to whole seconds, the resolution Redis
// blocking commands accept from the client.
func blockingTimeout(timeout time.Duration) time.Duration {
	if timeout < time.Second {
		return time.Second
	}
	return timeout.Round(time.Second)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", core.ErrQueueUnavailable, err)
}

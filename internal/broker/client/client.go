package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/logging"
	"github.com/nemanja-m/inferq/internal/shared/observability"
)

var ErrCancelNotSupported = errors.New("job queue does not support cancellation")

type Config struct {
	PollInterval   time.Duration
	DefaultTimeout time.Duration
	// JobIDTTL is how long a submitted job ID stays reserved against reuse.
	JobIDTTL time.Duration
	// ClaimResults deletes a result from the store once it is returned to the caller.
	ClaimResults bool
}

type SubmitRequest struct {
	// JobID is optional. A supplied ID that is still reserved by an earlier
	// job is rejected with ErrJobExists.
	JobID      string
	PayloadRef string
}

// Client submits jobs to the queue and waits for their results in the store.
// It holds no per-job state, so one Client serves any number of concurrent calls.
type Client struct {
	queue  core.JobQueue
	store  core.ResultStore
	cfg    Config
	logger logging.Logger
}

func New(queue core.JobQueue, store core.ResultStore, cfg Config, logger logging.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.JobIDTTL <= 0 {
		cfg.JobIDTTL = 24 * time.Hour
	}
	return &Client{queue: queue, store: store, cfg: cfg, logger: logger}
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (core.Job, error) {
	ctx, span := observability.StartSpan(ctx, "broker.Submit", attribute.String("payload_ref", req.PayloadRef))
	defer span.End()

	job := core.Job{
		ID:         req.JobID,
		PayloadRef: req.PayloadRef,
		EnqueuedAt: time.Now().UTC(),
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("job_id", job.ID))

	reserved, err := c.store.Reserve(ctx, job.ID, c.cfg.JobIDTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return core.Job{}, fmt.Errorf("failed to reserve job %s: %w", job.ID, err)
	}
	if !reserved {
		span.SetStatus(codes.Error, "job exists")
		return core.Job{}, fmt.Errorf("job %s: %w", job.ID, core.ErrJobExists)
	}

	if err := c.queue.Enqueue(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		if relErr := c.store.Release(context.WithoutCancel(ctx), job.ID); relErr != nil {
			c.logger.Warn("Failed to release job ID", "job_id", job.ID, "error", relErr)
		}
		return core.Job{}, fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	c.logger.Debug("Job submitted", "job_id", job.ID, "payload_ref", job.PayloadRef)
	return job, nil
}

// Await polls the result store until a result for jobID appears or timeout
// elapses. The store is checked immediately and once more at the deadline.
// A zero timeout means the configured default.
func (c *Client) Await(ctx context.Context, jobID string, timeout time.Duration) (core.Result, error) {
	ctx, span := observability.StartSpan(ctx, "broker.Await", attribute.String("job_id", jobID))
	defer span.End()

	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	start := time.Now()
	deadline := start.Add(timeout)

	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()

	for {
		result, found := c.poll(ctx, jobID)
		if found {
			span.SetAttributes(attribute.Int64("waited_ms", time.Since(start).Milliseconds()))
			return c.claim(ctx, result)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			err := &core.TimeoutError{JobID: jobID, Waited: time.Since(start)}
			span.SetStatus(codes.Error, err.Error())
			return core.Result{}, err
		}

		timer.Reset(min(c.cfg.PollInterval, remaining))
		select {
		case <-ctx.Done():
			return core.Result{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// SubmitAndAwait enqueues a job for payloadRef and waits for its result.
// A TimeoutError leaves the job running; its result can still be read with
// Peek or Await using the job ID carried in the error.
func (c *Client) SubmitAndAwait(ctx context.Context, payloadRef string, timeout time.Duration) (core.Result, error) {
	job, err := c.Submit(ctx, SubmitRequest{PayloadRef: payloadRef})
	if err != nil {
		return core.Result{}, err
	}
	return c.Await(ctx, job.ID, timeout)
}

// Peek reads the result for jobID without waiting and without claiming it.
func (c *Client) Peek(ctx context.Context, jobID string) (core.Result, bool, error) {
	result, err := c.store.Fetch(ctx, jobID)
	if errors.Is(err, core.ErrResultNotFound) {
		return core.Result{}, false, nil
	}
	if err != nil {
		return core.Result{}, false, err
	}
	return result, true, nil
}

// Cancel drops a job that no worker has picked up yet.
func (c *Client) Cancel(ctx context.Context, jobID string) (bool, error) {
	canceller, ok := c.queue.(core.Canceller)
	if !ok {
		return false, ErrCancelNotSupported
	}
	removed, err := canceller.Cancel(ctx, jobID)
	if err != nil {
		return false, err
	}
	if removed {
		c.logger.Info("Job cancelled", "job_id", jobID)
	}
	return removed, nil
}

func (c *Client) poll(ctx context.Context, jobID string) (core.Result, bool) {
	result, err := c.store.Fetch(ctx, jobID)
	if err == nil {
		return result, true
	}
	if !errors.Is(err, core.ErrResultNotFound) {
		c.logger.Warn("Failed to fetch result, retrying", "job_id", jobID, "error", err)
	}
	return core.Result{}, false
}

func (c *Client) claim(ctx context.Context, result core.Result) (core.Result, error) {
	if c.cfg.ClaimResults {
		if err := c.store.Delete(ctx, result.JobID); err != nil {
			c.logger.Warn("Failed to delete claimed result", "job_id", result.JobID, "error", err)
		}
	}
	if result.Failed() {
		return result, &core.InferenceError{JobID: result.JobID, Kind: result.ErrorKind}
	}
	return result, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/logging"
	"github.com/nemanja-m/inferq/internal/shared/observability"
	"github.com/nemanja-m/inferq/internal/worker/core"
)

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second

	// finishTimeout bounds the publish and ack of a job that was already
	// processed when shutdown began.
	finishTimeout = 5 * time.Second
)

type Config struct {
	ID               string
	DequeueTimeout   time.Duration
	InferenceTimeout time.Duration
	ResultTTL        time.Duration
}

type workerService struct {
	queue      broker.JobQueue
	store      broker.ResultStore
	inferencer broker.Inferencer
	cfg        Config
	state      atomic.Int32
	logger     logging.Logger
}

func NewWorkerService(
	queue broker.JobQueue,
	store broker.ResultStore,
	inferencer broker.Inferencer,
	cfg Config,
	logger logging.Logger,
) core.WorkerService {
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = time.Second
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 10 * time.Minute
	}
	return &workerService{
		queue:      queue,
		store:      store,
		inferencer: inferencer,
		cfg:        cfg,
		logger:     logger.With("worker_id", cfg.ID),
	}
}

func (w *workerService) State() core.State {
	return core.State(w.state.Load())
}

func (w *workerService) setState(s core.State) {
	w.state.Store(int32(s))
}

func (w *workerService) Run(ctx context.Context) error {
	defer w.setState(core.StateIdle)
	backoff := minBackoff

	for ctx.Err() == nil {
		stop, failed := w.iterate(ctx)
		if stop {
			return nil
		}
		if !failed {
			backoff = minBackoff
			continue
		}
		w.setState(core.StateIdle)
		if !sleep(ctx, backoff) {
			return nil
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil
}

// iterate dequeues and processes at most one job. A panic in any step is
// recovered here and reported as a failed iteration so Run backs off.
func (w *workerService) iterate(ctx context.Context) (stop, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Recovered from panic in worker loop", "panic", r)
			stop, failed = false, true
		}
	}()

	w.setState(core.StateDequeuing)
	d, ok, err := w.queue.Dequeue(ctx, w.cfg.DequeueTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return true, false
		}
		if errors.Is(err, broker.ErrQueueClosed) {
			w.logger.Info("Job queue closed, stopping worker")
			return true, false
		}
		w.logger.Error("Failed to dequeue job", "error", err)
		return false, true
	}

	if ok {
		w.process(ctx, d)
	}
	w.setState(core.StateIdle)
	return false, false
}

// process runs one job through inference, publish and ack. A panic before the
// result is published is turned into an internal error result for the job.
func (w *workerService) process(ctx context.Context, d broker.Delivery) {
	job := d.Job
	ctx, span := observability.StartSpan(ctx, "worker.Process",
		attribute.String("job_id", job.ID),
		attribute.Int("attempt", d.Attempt),
	)
	defer span.End()

	published := false
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Recovered from panic while processing job", "job_id", job.ID, "panic", r)
			span.SetStatus(codes.Error, "panic")
			if !published {
				w.publishInternalError(ctx, d)
			}
		}
	}()

	w.logger.Info("Received job", "job_id", job.ID, "payload_ref", job.PayloadRef, "attempt", d.Attempt)

	w.setState(core.StateProcessing)
	start := time.Now()
	result := w.infer(ctx, job)
	if result.Failed() {
		span.SetStatus(codes.Error, string(result.ErrorKind))
		w.logger.Warn("Job failed", "job_id", job.ID, "error_kind", result.ErrorKind, "duration", time.Since(start))
	} else {
		w.logger.Info("Job completed", "job_id", job.ID, "label", result.Label, "score", result.Score, "duration", time.Since(start))
	}

	if !w.publish(ctx, d, result) {
		return
	}
	published = true
	w.ack(ctx, d)
}

// publishInternalError is the last resort for a job whose processing panicked.
// Its own panics are swallowed so the worker keeps running.
func (w *workerService) publishInternalError(ctx context.Context, d broker.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Recovered from panic while publishing error result", "job_id", d.Job.ID, "panic", r)
		}
	}()
	if w.publish(ctx, d, broker.NewErrorResult(d.Job.ID, broker.ErrorKindInternal)) {
		w.ack(ctx, d)
	}
}

func (w *workerService) infer(ctx context.Context, job broker.Job) broker.Result {
	inferCtx := ctx
	if w.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, w.cfg.InferenceTimeout)
		defer cancel()
	}

	prediction, err := w.inferencer.Infer(inferCtx, job.PayloadRef)
	if err != nil {
		w.logger.Debug("Inference error", "job_id", job.ID, "error", err)
		return broker.NewErrorResult(job.ID, errorKind(ctx, err))
	}

	result, err := broker.NewResult(job.ID, prediction.Label, prediction.Score)
	if err != nil {
		w.logger.Error("Model returned an invalid prediction", "job_id", job.ID, "error", err)
		return broker.NewErrorResult(job.ID, broker.ErrorKindModel)
	}
	return result
}

// publish stores the result. A job whose result could not be published is not
// acknowledged so a queue with redelivery retries it.
func (w *workerService) publish(ctx context.Context, d broker.Delivery, result broker.Result) bool {
	w.setState(core.StatePublishing)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := w.store.Publish(ctx, result, w.cfg.ResultTTL); err != nil {
		err = fmt.Errorf("%w: %w", broker.ErrPublishFailed, err)
		w.logger.Error("Failed to publish result", "job_id", d.Job.ID, "error", err)
		return false
	}
	return true
}

func (w *workerService) ack(ctx context.Context, d broker.Delivery) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := w.queue.Ack(ctx, d); err != nil {
		w.logger.Error("Failed to acknowledge job", "job_id", d.Job.ID, "error", err)
	}
}

func errorKind(parent context.Context, err error) broker.ErrorKind {
	switch {
	case errors.Is(err, broker.ErrPayloadNotFound):
		return broker.ErrorKindPayloadNotFound
	case errors.Is(err, broker.ErrInvalidPayload):
		return broker.ErrorKindInvalidPayload
	case errors.Is(err, broker.ErrModelUnavailable):
		return broker.ErrorKindUnavailable
	case parent.Err() != nil:
		// Shutdown interrupted the job rather than the model failing on it.
		return broker.ErrorKindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return broker.ErrorKindTimeout
	default:
		return broker.ErrorKindModel
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

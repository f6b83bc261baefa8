package core

import (
	"context"
	"time"
)

// JobQueue is an ordered channel of pending jobs shared by producers and workers.
// Implementations must be safe for concurrent use and must hand each job to
// exactly one active consumer.
type JobQueue interface {
	// Enqueue appends the job to the tail of the queue. It fails with
	// ErrQueueFull when a capacity bound is reached and ErrQueueUnavailable
	// when the backend cannot be reached.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue removes the head of the queue, blocking for up to timeout.
	// It returns ok=false without touching the queue when nothing arrives in time.
	Dequeue(ctx context.Context, timeout time.Duration) (d Delivery, ok bool, err error)

	// Ack confirms that a delivery was handled. Without a visibility timeout
	// this is a no-op; with one, unacknowledged deliveries are redelivered.
	Ack(ctx context.Context, d Delivery) error

	Len(ctx context.Context) (int, error)
	Close() error
}

// Canceller is implemented by queues that can drop a job that was not dequeued yet.
type Canceller interface {
	Cancel(ctx context.Context, jobID string) (bool, error)
}

// Redeliverer is implemented by queues that track in-flight deliveries
// and need an external sweep to return expired ones to the queue.
type Redeliverer interface {
	RequeueExpired(ctx context.Context, now time.Time) (int, error)
}

package core

import (
	"context"
	"time"
)

// ResultStore is a key-value store of job results with per-key expiry.
type ResultStore interface {
	// Reserve claims jobID for ttl. It returns false when the ID is already
	// reserved, so two jobs never share a result key.
	Reserve(ctx context.Context, jobID string, ttl time.Duration) (bool, error)

	// Release drops a reservation for a job that never reached the queue.
	Release(ctx context.Context, jobID string) error

	// Publish stores the result under its job ID for ttl. Publishing over an
	// expired or missing key creates a fresh entry.
	Publish(ctx context.Context, result Result, ttl time.Duration) error

	// Fetch returns ErrResultNotFound when there is no live result for jobID.
	Fetch(ctx context.Context, jobID string) (Result, error)

	Delete(ctx context.Context, jobID string) error
	Close() error
}

// Purger is implemented by stores without native expiry.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

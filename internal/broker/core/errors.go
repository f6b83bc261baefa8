package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQueueUnavailable = errors.New("job queue unavailable")
	ErrQueueFull        = errors.New("job queue is full")
	ErrQueueClosed      = errors.New("job queue is closed")
	ErrStoreUnavailable = errors.New("result store unavailable")
	ErrResultNotFound   = errors.New("result not found")
	ErrPublishFailed    = errors.New("result publish failed")
	ErrInferenceFailed  = errors.New("inference failed")
	ErrTimeout          = errors.New("timed out waiting for result")
	ErrInvalidJob       = errors.New("invalid job")
	ErrJobExists        = errors.New("job ID already in use")

	// Inference backends return these so the worker can pick an error kind.
	ErrPayloadNotFound  = errors.New("payload not found")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrModelUnavailable = errors.New("model backend unavailable")
)

// InferenceError is returned to a caller whose job produced an error result.
type InferenceError struct {
	JobID string
	Kind  ErrorKind
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("job %s: %s: %s", e.JobID, ErrInferenceFailed, e.Kind)
}

func (e *InferenceError) Is(target error) bool {
	return target == ErrInferenceFailed
}

// TimeoutError means the outcome is unknown: the job may still complete and
// its result can be fetched later under JobID until it expires.
type TimeoutError struct {
	JobID  string
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s: %s after %s", e.JobID, ErrTimeout, e.Waited)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

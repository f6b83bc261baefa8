package core

import (
	"fmt"
	"time"
)

type ErrorKind string

const (
	ErrorKindPayloadNotFound ErrorKind = "payload_not_found"
	ErrorKindInvalidPayload  ErrorKind = "invalid_payload"
	ErrorKindModel           ErrorKind = "model_error"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindUnavailable     ErrorKind = "unavailable"
	ErrorKindInternal        ErrorKind = "internal"
)

// Job is a unit of inference work. It is immutable once enqueued.
type Job struct {
	ID         string    `json:"id"`
	PayloadRef string    `json:"payload_ref"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (j Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: job ID is required", ErrInvalidJob)
	}
	if j.PayloadRef == "" {
		return fmt.Errorf("%w: payload reference is required", ErrInvalidJob)
	}
	return nil
}

// Delivery is a dequeued job together with the receipt needed to acknowledge it.
// Receipt is empty when the queue runs without a visibility timeout.
type Delivery struct {
	Job     Job
	Receipt string
	Attempt int
}

// Result is the outcome of a job. ErrorKind is empty on success.
type Result struct {
	JobID      string    `json:"job_id"`
	Label      string    `json:"label,omitempty"`
	Score      float64   `json:"score"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	ProducedAt time.Time `json:"produced_at"`
}

func NewResult(jobID, label string, score float64) (Result, error) {
	if score < 0 || score > 1 {
		return Result{}, fmt.Errorf("score %v out of range [0,1]", score)
	}
	return Result{
		JobID:      jobID,
		Label:      label,
		Score:      score,
		ProducedAt: time.Now().UTC(),
	}, nil
}

func NewErrorResult(jobID string, kind ErrorKind) Result {
	return Result{
		JobID:      jobID,
		ErrorKind:  kind,
		ProducedAt: time.Now().UTC(),
	}
}

func (r Result) Failed() bool {
	return r.ErrorKind != ""
}

// Prediction is what an inference backend returns for a single payload.
type Prediction struct {
	Label string
	Score float64
}

package rest

import (
	"time"
)

type PredictRequest struct {
	PayloadRef string `json:"payload_ref" validate:"required"`
	TimeoutMS  int    `json:"timeout_ms,omitempty" validate:"omitempty,gt=0,lte=600000"`
}

type PredictResponse struct {
	Success    bool    `json:"success"`
	JobID      string  `json:"job_id"`
	Prediction string  `json:"prediction"`
	Score      float64 `json:"score"`
}

type SubmitJobRequest struct {
	PayloadRef string `json:"payload_ref" validate:"required"`
	JobID      string `json:"job_id,omitempty" validate:"omitempty,max=128,printascii"`
}

type SubmitJobResponse struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	Links       Links     `json:"links"`
}

type Links struct {
	Self   string `json:"self"`
	Result string `json:"result,omitempty"`
}

type ResultResponse struct {
	JobID      string     `json:"job_id"`
	Status     string     `json:"status"` // "pending", "completed" or "failed"
	Label      string     `json:"label,omitempty"`
	Score      *float64   `json:"score,omitempty"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	ProducedAt *time.Time `json:"produced_at,omitempty"`
}

type UploadResponse struct {
	PayloadRef string `json:"payload_ref"`
}

type FeedbackRequest struct {
	PayloadRef string  `json:"payload_ref" validate:"required"`
	Prediction string  `json:"prediction" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0,lte=1"`
	Correct    *bool   `json:"correct,omitempty"`
	Label      string  `json:"label,omitempty"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	QueueLength *int   `json:"queue_length,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code"`
	JobID     string `json:"job_id,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

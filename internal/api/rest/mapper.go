package rest

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nemanja-m/inferq/internal/broker/client"
	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/feedback"
)

const (
	StatusPending   = "pending"
	StatusQueued    = "queued"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

func (req *SubmitJobRequest) ToSubmitRequest() client.SubmitRequest {
	return client.SubmitRequest{
		JobID:      req.JobID,
		PayloadRef: req.PayloadRef,
	}
}

func (req *PredictRequest) Timeout() time.Duration {
	return time.Duration(req.TimeoutMS) * time.Millisecond
}

func (req *FeedbackRequest) ToEntry() feedback.Entry {
	return feedback.Entry{
		PayloadRef: req.PayloadRef,
		Prediction: req.Prediction,
		Score:      req.Score,
		Correct:    req.Correct,
		Label:      req.Label,
	}
}

func ToResultResponse(result core.Result) ResultResponse {
	produced := result.ProducedAt
	resp := ResultResponse{
		JobID:      result.JobID,
		Status:     StatusCompleted,
		Label:      result.Label,
		ProducedAt: &produced,
	}
	if result.Failed() {
		resp.Status = StatusFailed
		resp.ErrorKind = string(result.ErrorKind)
		return resp
	}
	score := result.Score
	resp.Score = &score
	return resp
}

func PendingResultResponse(jobID string) ResultResponse {
	return ResultResponse{JobID: jobID, Status: StatusPending}
}

func ToPredictResponse(result core.Result) PredictResponse {
	return PredictResponse{
		Success:    true,
		JobID:      result.JobID,
		Prediction: result.Label,
		Score:      result.Score,
	}
}

// ToErrorResponse maps broker errors to an HTTP status and body.
func ToErrorResponse(err error) ErrorResponse {
	var (
		timeoutErr   *core.TimeoutError
		inferenceErr *core.InferenceError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return ErrorResponse{
			Error:     "timeout",
			Message:   fmt.Sprintf("no result within %s, poll /api/jobs/%s/result", timeoutErr.Waited.Round(time.Millisecond), timeoutErr.JobID),
			Code:      http.StatusGatewayTimeout,
			JobID:     timeoutErr.JobID,
			Retryable: true,
		}
	case errors.As(err, &inferenceErr):
		return ErrorResponse{
			Error:     "inference failed",
			Code:      http.StatusUnprocessableEntity,
			JobID:     inferenceErr.JobID,
			ErrorKind: string(inferenceErr.Kind),
		}
	case errors.Is(err, core.ErrQueueFull):
		return ErrorResponse{Error: "queue full", Message: err.Error(), Code: http.StatusTooManyRequests, Retryable: true}
	case errors.Is(err, core.ErrQueueUnavailable), errors.Is(err, core.ErrStoreUnavailable):
		return ErrorResponse{Error: "service unavailable", Message: err.Error(), Code: http.StatusServiceUnavailable, Retryable: true}
	case errors.Is(err, core.ErrInvalidJob):
		return ErrorResponse{Error: "invalid job", Message: err.Error(), Code: http.StatusBadRequest}
	case errors.Is(err, core.ErrJobExists):
		return ErrorResponse{Error: "job exists", Message: err.Error(), Code: http.StatusConflict}
	case errors.Is(err, client.ErrCancelNotSupported):
		return ErrorResponse{Error: "not supported", Message: err.Error(), Code: http.StatusNotImplemented}
	default:
		return ErrorResponse{Error: "internal error", Message: err.Error(), Code: http.StatusInternalServerError}
	}
}

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemanja-m/inferq/internal/broker/client"
	"github.com/nemanja-m/inferq/internal/broker/core"
)

func TestToErrorResponse(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      int
		wantRetryable bool
		wantJobID     string
		wantKind      string
	}{
		{
			name:          "timeout",
			err:           &core.TimeoutError{JobID: "job-1", Waited: 2 * time.Second},
			wantCode:      http.StatusGatewayTimeout,
			wantRetryable: true,
			wantJobID:     "job-1",
		},
		{
			name:      "inference failed",
			err:       &core.InferenceError{JobID: "job-2", Kind: core.ErrorKindPayloadNotFound},
			wantCode:  http.StatusUnprocessableEntity,
			wantJobID: "job-2",
			wantKind:  "payload_not_found",
		},
		{
			name:          "queue full",
			err:           fmt.Errorf("enqueue: %w", core.ErrQueueFull),
			wantCode:      http.StatusTooManyRequests,
			wantRetryable: true,
		},
		{
			name:          "queue unavailable",
			err:           fmt.Errorf("enqueue: %w", core.ErrQueueUnavailable),
			wantCode:      http.StatusServiceUnavailable,
			wantRetryable: true,
		},
		{
			name:          "store unavailable",
			err:           fmt.Errorf("fetch: %w", core.ErrStoreUnavailable),
			wantCode:      http.StatusServiceUnavailable,
			wantRetryable: true,
		},
		{
			name:     "invalid job",
			err:      fmt.Errorf("%w: job ID is required", core.ErrInvalidJob),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "job exists",
			err:      fmt.Errorf("submit: %w", core.ErrJobExists),
			wantCode: http.StatusConflict,
		},
		{
			name:     "cancel not supported",
			err:      client.ErrCancelNotSupported,
			wantCode: http.StatusNotImplemented,
		},
		{
			name:     "unknown",
			err:      errors.New("something else"),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ToErrorResponse(tt.err)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantRetryable, resp.Retryable)
			assert.Equal(t, tt.wantJobID, resp.JobID)
			assert.Equal(t, tt.wantKind, resp.ErrorKind)
		})
	}
}

func TestToResultResponse(t *testing.T) {
	ok, err := core.NewResult("job-1", "cat", 0.92)
	assert.NoError(t, err)

	resp := ToResultResponse(ok)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, "cat", resp.Label)
	require.NotNil(t, resp.Score)
	assert.InDelta(t, 0.92, *resp.Score, 1e-9)
	assert.Empty(t, resp.ErrorKind)
	assert.NotNil(t, resp.ProducedAt)

	failed := ToResultResponse(core.NewErrorResult("job-2", core.ErrorKindModel))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "model_error", failed.ErrorKind)
	assert.Nil(t, failed.Score)
}

func TestToResultResponse_KeepsZeroScore(t *testing.T) {
	zero, err := core.NewResult("job-1", "background", 0)
	require.NoError(t, err)

	body, err := json.Marshal(ToResultResponse(zero))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"score":0`)

	body, err = json.Marshal(ToPredictResponse(zero))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"score":0`)
}

func TestPredictRequestTimeout(t *testing.T) {
	req := PredictRequest{PayloadRef: "a.png", TimeoutMS: 1500}
	assert.Equal(t, 1500*time.Millisecond, req.Timeout())
	assert.Zero(t, (&PredictRequest{}).Timeout())
}

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/nemanja-m/inferq/internal/broker/client"
	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/feedback"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

const maxUploadBytes = 32 << 20

// Broker is the part of the broker client the HTTP API calls.
type Broker interface {
	Submit(ctx context.Context, req client.SubmitRequest) (core.Job, error)
	SubmitAndAwait(ctx context.Context, payloadRef string, timeout time.Duration) (core.Result, error)
	Peek(ctx context.Context, jobID string) (core.Result, bool, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
}

type FeedbackRecorder interface {
	Record(ctx context.Context, e feedback.Entry) error
}

// PayloadUploader stores uploaded bytes and returns a payload reference.
type PayloadUploader interface {
	Put(ctx context.Context, data []byte, ext string) (string, error)
}

type QueueLengther interface {
	Len(ctx context.Context) (int, error)
}

type API struct {
	broker   Broker
	feedback FeedbackRecorder
	payloads PayloadUploader
	queue    QueueLengther
	maxWait  time.Duration
	validate *validator.Validate
	logger   logging.Logger
}

// Option configures optional API dependencies.
type Option func(*API)

// WithPayloadUploader enables POST /api/payloads.
func WithPayloadUploader(u PayloadUploader) Option {
	return func(a *API) { a.payloads = u }
}

// WithQueueLength reports the queue length in /health.
func WithQueueLength(q QueueLengther) Option {
	return func(a *API) { a.queue = q }
}

// WithMaxWait caps the timeout a predict request may ask for.
func WithMaxWait(d time.Duration) Option {
	return func(a *API) { a.maxWait = d }
}

func NewAPI(broker Broker, recorder FeedbackRecorder, logger logging.Logger, opts ...Option) *API {
	a := &API{
		broker:   broker,
		feedback: recorder,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/health", a.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/predict", a.predict)
		r.Post("/jobs", a.submitJob)
		r.Get("/jobs/{id}/result", a.getResult)
		r.Delete("/jobs/{id}", a.cancelJob)
		r.Post("/feedback", a.recordFeedback)
		if a.payloads != nil {
			r.Post("/payloads", a.uploadPayload)
		}
	})
}

// Handler returns the routed API with request id, logging and recovery middleware.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(a.logger))
	r.Use(RecoveryMiddleware(a.logger))
	a.RegisterRoutes(r)
	return r
}

// predict handles POST /api/predict
func (a *API) predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !a.decode(w, r, &req) {
		return
	}

	timeout := req.Timeout()
	if a.maxWait > 0 && timeout > a.maxWait {
		timeout = a.maxWait
	}

	result, err := a.broker.SubmitAndAwait(r.Context(), req.PayloadRef, timeout)
	if err != nil {
		a.respondBrokerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ToPredictResponse(result))
}

// submitJob handles POST /api/jobs
func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if !a.decode(w, r, &req) {
		return
	}

	job, err := a.broker.Submit(r.Context(), req.ToSubmitRequest())
	if err != nil {
		a.respondBrokerError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, SubmitJobResponse{
		JobID:       job.ID,
		Status:      StatusQueued,
		SubmittedAt: job.EnqueuedAt,
		Links: Links{
			Self:   fmt.Sprintf("/api/jobs/%s", job.ID),
			Result: fmt.Sprintf("/api/jobs/%s/result", job.ID),
		},
	})
}

// getResult handles GET /api/jobs/{id}/result
func (a *API) getResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	result, found, err := a.broker.Peek(r.Context(), jobID)
	if err != nil {
		a.respondBrokerError(w, r, err)
		return
	}
	if !found {
		respondJSON(w, http.StatusAccepted, PendingResultResponse(jobID))
		return
	}
	respondJSON(w, http.StatusOK, ToResultResponse(result))
}

// cancelJob handles DELETE /api/jobs/{id}
func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	removed, err := a.broker.Cancel(r.Context(), jobID)
	if err != nil {
		a.respondBrokerError(w, r, err)
		return
	}
	if !removed {
		respondError(w, http.StatusConflict, "job not cancellable", "job is not queued")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recordFeedback handles POST /api/feedback
func (a *API) recordFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.feedback.Record(r.Context(), req.ToEntry()); err != nil {
		a.logger.Error("Failed to record feedback", "payload_ref", req.PayloadRef, "error", err)
		respondError(w, http.StatusInternalServerError, "feedback not recorded", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// uploadPayload handles POST /api/payloads with a multipart "file" field.
func (a *API) uploadPayload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid upload", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid upload", err.Error())
		return
	}

	ref, err := a.payloads.Put(r.Context(), data, filepath.Ext(header.Filename))
	if err != nil {
		a.logger.Error("Failed to store payload", "filename", header.Filename, "error", err)
		respondError(w, http.StatusInternalServerError, "payload not stored", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, UploadResponse{PayloadRef: ref})
}

// health handles GET /health
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if a.queue != nil {
		n, err := a.queue.Len(r.Context())
		if err != nil {
			a.logger.Warn("Health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
			return
		}
		resp.QueueLength = &n
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return false
	}
	return true
}

func (a *API) respondBrokerError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ToErrorResponse(err)
	if resp.Code >= http.StatusInternalServerError && !errors.Is(err, core.ErrTimeout) {
		a.logger.Error("Broker request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	respondJSON(w, resp.Code, resp)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, error string, message string) {
	resp := ErrorResponse{
		Error:   error,
		Message: message,
		Code:    statusCode,
	}
	respondJSON(w, statusCode, resp)
}

func NewServer(cfg config.RESTConfig, api *API) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

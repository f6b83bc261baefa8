package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

const prompt = `Classify the main subject of this image with a single lowercase label.
Respond with JSON only: {"label": "<label>", "score": <confidence between 0 and 1>}.`

var errInvalidResponse = errors.New("invalid model response")

// generator is the part of the genai client the classifier calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey     string
	Model      string
	MaxRetries int
}

// Classifier labels images with a Gemini multimodal model.
type Classifier struct {
	models     generator
	model      string
	maxRetries int
	baseDelay  time.Duration
	logger     logging.Logger
}

func NewClassifier(ctx context.Context, cfg Config, logger logging.Logger) (*Classifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newClassifier(client.Models, cfg, logger), nil
}

func newClassifier(models generator, cfg Config, logger logging.Logger) *Classifier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Classifier{
		models:     models,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		baseDelay:  500 * time.Millisecond,
		logger:     logger,
	}
}

type response struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *Classifier) Classify(ctx context.Context, data []byte, mimeType string) (broker.Prediction, error) {
	if len(data) == 0 {
		return broker.Prediction{}, fmt.Errorf("%w: empty payload", broker.ErrInvalidPayload)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return broker.Prediction{}, fmt.Errorf("%w: unsupported media type %q", broker.ErrInvalidPayload, mimeType)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
		},
	}}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	delay := c.baseDelay
	for attempt := 0; ; attempt++ {
		resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
		if err == nil {
			return parseResponse(resp)
		}
		if !transient(err) || attempt >= c.maxRetries {
			return broker.Prediction{}, classifyErr(err)
		}

		c.logger.Warn("Gemini call failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return broker.Prediction{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func parseResponse(resp *genai.GenerateContentResponse) (broker.Prediction, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return broker.Prediction{}, fmt.Errorf("%w: no content generated", errInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return broker.Prediction{}, fmt.Errorf("%w: blocked by safety filters", broker.ErrInvalidPayload)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	var r response
	if err := json.Unmarshal([]byte(strings.TrimSpace(text.String())), &r); err != nil {
		return broker.Prediction{}, fmt.Errorf("%w: %w", errInvalidResponse, err)
	}
	if r.Label == "" {
		return broker.Prediction{}, fmt.Errorf("%w: missing label", errInvalidResponse)
	}
	if r.Score < 0 || r.Score > 1 {
		return broker.Prediction{}, fmt.Errorf("%w: score %v out of range", errInvalidResponse, r.Score)
	}
	return broker.Prediction{Label: strings.ToLower(r.Label), Score: r.Score}, nil
}

func transient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusBadRequest:
			return fmt.Errorf("%w: %s", broker.ErrInvalidPayload, apiErr.Message)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", broker.ErrModelUnavailable, err)
		}
	}
	return err
}

package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

type mockGenerator struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	lastParts []*genai.Part
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	m.lastParts = contents[0].Parts
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return m.responses[len(m.responses)-1], nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestClassifier(m *mockGenerator, retries int) *Classifier {
	c := newClassifier(m, Config{Model: "test-model", MaxRetries: retries}, logging.Discard())
	c.baseDelay = time.Millisecond
	return c
}

func TestClassify_Success(t *testing.T) {
	m := &mockGenerator{responses: []*genai.GenerateContentResponse{textResponse(`{"label": "Cat", "score": 0.92}`)}}
	c := newTestClassifier(m, 0)

	p, err := c.Classify(context.Background(), []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "cat", p.Label)
	assert.InDelta(t, 0.92, p.Score, 1e-9)

	require.Len(t, m.lastParts, 2)
	require.NotNil(t, m.lastParts[1].InlineData)
	assert.Equal(t, "image/png", m.lastParts[1].InlineData.MIMEType)
}

func TestClassify_RejectsBadInput(t *testing.T) {
	c := newTestClassifier(&mockGenerator{}, 0)

	_, err := c.Classify(context.Background(), nil, "image/png")
	assert.ErrorIs(t, err, broker.ErrInvalidPayload)

	_, err = c.Classify(context.Background(), []byte("text"), "text/plain")
	assert.ErrorIs(t, err, broker.ErrInvalidPayload)
}

func TestClassify_InvalidResponses(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{"no candidates", &genai.GenerateContentResponse{}, errInvalidResponse},
		{"not json", textResponse("a cat, probably"), errInvalidResponse},
		{"missing label", textResponse(`{"score": 0.5}`), errInvalidResponse},
		{"score out of range", textResponse(`{"label": "cat", "score": 7}`), errInvalidResponse},
		{"safety block", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content:      &genai.Content{},
			FinishReason: genai.FinishReasonSafety,
		}}}, broker.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockGenerator{responses: []*genai.GenerateContentResponse{tt.resp}}
			_, err := newTestClassifier(m, 0).Classify(context.Background(), []byte("png"), "image/png")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClassify_RetriesTransientErrors(t *testing.T) {
	m := &mockGenerator{
		errs:      []error{genai.APIError{Code: 503, Message: "overloaded"}, nil},
		responses: []*genai.GenerateContentResponse{nil, textResponse(`{"label": "dog", "score": 0.8}`)},
	}
	p, err := newTestClassifier(m, 2).Classify(context.Background(), []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "dog", p.Label)
	assert.Equal(t, 2, m.calls)
}

func TestClassify_GivesUpAsUnavailable(t *testing.T) {
	m := &mockGenerator{
		errs:      []error{genai.APIError{Code: 429}, genai.APIError{Code: 429}},
		responses: []*genai.GenerateContentResponse{nil},
	}
	_, err := newTestClassifier(m, 1).Classify(context.Background(), []byte("png"), "image/png")
	assert.ErrorIs(t, err, broker.ErrModelUnavailable)
	assert.Equal(t, 2, m.calls)
}

func TestClassify_PermanentErrorsAreNotRetried(t *testing.T) {
	m := &mockGenerator{
		errs:      []error{genai.APIError{Code: 400, Message: "bad image"}},
		responses: []*genai.GenerateContentResponse{nil},
	}
	_, err := newTestClassifier(m, 3).Classify(context.Background(), []byte("png"), "image/png")
	assert.ErrorIs(t, err, broker.ErrInvalidPayload)
	assert.Equal(t, 1, m.calls)

	other := errors.New("dial tcp: refused")
	m = &mockGenerator{errs: []error{other}, responses: []*genai.GenerateContentResponse{nil}}
	_, err = newTestClassifier(m, 3).Classify(context.Background(), []byte("png"), "image/png")
	assert.ErrorIs(t, err, other)
}

// Package feedback records user corrections of predictions for later review.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one piece of feedback on a prediction.
type Entry struct {
	PayloadRef string    `json:"payload_ref"`
	Prediction string    `json:"prediction"`
	Score      float64   `json:"score"`
	Correct    *bool     `json:"correct,omitempty"`
	Label      string    `json:"label,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FileSink appends entries to a JSON lines file. It never rewrites or
// truncates earlier entries.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create feedback directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback log: %w", err)
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Record(_ context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to write feedback: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

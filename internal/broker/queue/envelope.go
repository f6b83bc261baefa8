package queue

import (
	"encoding/json"
	"fmt"

	"github.com/nemanja-m/inferq/internal/broker/core"
)

// envelope is the wire form of a queued job for the shared backends.
type envelope struct {
	Job     core.Job `json:"job"`
	Attempt int      `json:"attempt"`
}

func encodeEnvelope(job core.Job, attempt int) (string, error) {
	data, err := json.Marshal(envelope{Job: job, Attempt: attempt})
	if err != nil {
		return "", fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return string(data), nil
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, fmt.Errorf("failed to decode queued job: %w", err)
	}
	if env.Attempt <= 0 {
		env.Attempt = 1
	}
	return env, nil
}

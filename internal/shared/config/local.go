package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var errMissingGeminiKey = errors.New("invalid config: gemini.api_key is required")

// LocalConfig runs the API, the worker pool and the model in one process
// with in-memory queue and store.
type LocalConfig struct {
	REST     RESTConfig       `mapstructure:"rest"`
	Broker   BrokerConfig     `mapstructure:"broker"`
	Worker   WorkerLoopConfig `mapstructure:"worker"`
	Payloads PayloadConfig    `mapstructure:"payloads"`
	Gemini   GeminiConfig     `mapstructure:"gemini"`
	Feedback FeedbackConfig   `mapstructure:"feedback"`
	Logging  LoggingConfig    `mapstructure:"logging"`
	Tracing  TracingConfig    `mapstructure:"tracing"`
}

// LoadLocal loads the single-process configuration.
// Environment variables with INFERQ_LOCAL_ prefix override config file values.
func LoadLocal(configPath string) (*LocalConfig, error) {
	v := viper.New()

	v.SetDefault("rest.addr", ":8080")
	v.SetDefault("rest.read_timeout", 15*time.Second)
	v.SetDefault("rest.write_timeout", 60*time.Second)
	v.SetDefault("rest.idle_timeout", 60*time.Second)
	v.SetDefault("worker.id", "local")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.dequeue_timeout", time.Second)
	v.SetDefault("worker.inference_timeout", 30*time.Second)
	v.SetDefault("rest.enable_uploads", true)
	setPayloadDefaults(v, "payloads")
	v.SetDefault("feedback.path", "feedback/feedback.jsonl")
	setBrokerDefaults(v)
	setGeminiDefaults(v)
	setLoggingDefaults(v)
	v.SetDefault("broker.queue.backend", "memory")
	v.SetDefault("broker.store.backend", "memory")

	var cfg LocalConfig
	if err := load(v, configPath, "local", "INFERQ_LOCAL", &cfg); err != nil {
		return nil, err
	}
	if cfg.Gemini.APIKey == "" {
		return nil, errMissingGeminiKey
	}
	if err := cfg.Payloads.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

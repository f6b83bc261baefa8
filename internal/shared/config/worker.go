package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// WorkerConfig contains all configuration for the worker service.
type WorkerConfig struct {
	Worker    WorkerLoopConfig      `mapstructure:"worker"`
	Broker    BrokerConfig          `mapstructure:"broker"`
	Inference WorkerInferenceConfig `mapstructure:"inference"`
	Logging   LoggingConfig         `mapstructure:"logging"`
	Tracing   TracingConfig         `mapstructure:"tracing"`
}

// WorkerLoopConfig contains the settings of the dequeue loop.
type WorkerLoopConfig struct {
	ID               string        `mapstructure:"id"`
	Concurrency      int           `mapstructure:"concurrency" validate:"gt=0"`
	DequeueTimeout   time.Duration `mapstructure:"dequeue_timeout" validate:"gt=0"`
	InferenceTimeout time.Duration `mapstructure:"inference_timeout" validate:"gt=0"`
}

// WorkerInferenceConfig selects where the worker runs inference: on a remote
// model server over gRPC, or in process against a local payload directory.
type WorkerInferenceConfig struct {
	Mode     string        `mapstructure:"mode" validate:"oneof=remote local"`
	Remote   RemoteConfig  `mapstructure:"remote"`
	Payloads PayloadConfig `mapstructure:"payloads"`
	Gemini   GeminiConfig  `mapstructure:"gemini"`
}

// RemoteConfig contains the model server connection configuration.
type RemoteConfig struct {
	Addr             string        `mapstructure:"addr"`
	KeepaliveTime    time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`
}

// LoadWorker loads the worker configuration from the given path.
// If configPath is empty, it looks for worker.yaml in the config/ directory.
// Environment variables with INFERQ_WORKER_ prefix override config file values.
func LoadWorker(configPath string) (*WorkerConfig, error) {
	v := viper.New()

	v.SetDefault("worker.id", "")
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.dequeue_timeout", time.Second)
	v.SetDefault("worker.inference_timeout", 30*time.Second)
	v.SetDefault("inference.mode", "remote")
	v.SetDefault("inference.remote.addr", "localhost:9090")
	v.SetDefault("inference.remote.keepalive_time", 30*time.Second)
	v.SetDefault("inference.remote.keepalive_timeout", 5*time.Second)
	setPayloadDefaults(v, "inference.payloads")
	v.SetDefault("inference.gemini.api_key", "")
	v.SetDefault("inference.gemini.model", "gemini-2.0-flash")
	v.SetDefault("inference.gemini.max_retries", 2)
	setBrokerDefaults(v)
	setLoggingDefaults(v)

	var cfg WorkerConfig
	if err := load(v, configPath, "worker", "INFERQ_WORKER", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Broker.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Inference.Mode == "remote" && cfg.Inference.Remote.Addr == "" {
		return nil, fmt.Errorf("invalid config: inference.remote.addr is required in remote mode")
	}
	if cfg.Inference.Mode == "local" {
		if cfg.Inference.Gemini.APIKey == "" {
			return nil, fmt.Errorf("invalid config: inference.gemini.api_key is required in local mode")
		}
		if err := cfg.Inference.Payloads.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: inference.%w", err)
		}
	}
	return &cfg, nil
}

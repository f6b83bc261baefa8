package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// APIConfig contains all configuration for the serving tier.
type APIConfig struct {
	REST     RESTConfig     `mapstructure:"rest"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Payloads PayloadConfig  `mapstructure:"payloads"`
}

// FeedbackConfig points at the append-only feedback log.
type FeedbackConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LoadAPI loads the API configuration from the given path.
// Environment variables with INFERQ_API_ prefix override config file values.
func LoadAPI(configPath string) (*APIConfig, error) {
	v := viper.New()

	v.SetDefault("rest.addr", ":8080")
	v.SetDefault("rest.read_timeout", 15*time.Second)
	v.SetDefault("rest.write_timeout", 60*time.Second)
	v.SetDefault("rest.idle_timeout", 60*time.Second)
	v.SetDefault("feedback.path", "feedback/feedback.jsonl")
	v.SetDefault("rest.enable_uploads", false)
	setPayloadDefaults(v, "payloads")
	setBrokerDefaults(v)
	setLoggingDefaults(v)

	var cfg APIConfig
	if err := load(v, configPath, "api", "INFERQ_API", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Broker.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Payloads.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.REST.WriteTimeout <= cfg.Broker.SubmitTimeout {
		return nil, fmt.Errorf("invalid config: rest.write_timeout (%s) must exceed broker.submit_timeout (%s)",
			cfg.REST.WriteTimeout, cfg.Broker.SubmitTimeout)
	}
	return &cfg, nil
}

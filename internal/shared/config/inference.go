package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// InferenceConfig contains all configuration for the model server.
type InferenceConfig struct {
	GRPC     GRPCConfig    `mapstructure:"grpc"`
	Payloads PayloadConfig `mapstructure:"payloads"`
	Gemini   GeminiConfig  `mapstructure:"gemini"`
	Logging  LoggingConfig `mapstructure:"logging"`
	Tracing  TracingConfig `mapstructure:"tracing"`
}

// GRPCConfig contains gRPC server configuration.
type GRPCConfig struct {
	Addr             string        `mapstructure:"addr" validate:"required"`
	KeepaliveMinTime time.Duration `mapstructure:"keepalive_min_time"`
	EnableReflection bool          `mapstructure:"enable_reflection"`
}

// LoadInference loads the model server configuration from the given path.
// Environment variables with INFERQ_INFERENCE_ prefix override config file values.
func LoadInference(configPath string) (*InferenceConfig, error) {
	v := viper.New()

	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("grpc.keepalive_min_time", 10*time.Second)
	v.SetDefault("grpc.enable_reflection", false)
	setPayloadDefaults(v, "payloads")
	setGeminiDefaults(v)
	setLoggingDefaults(v)

	var cfg InferenceConfig
	if err := load(v, configPath, "inference", "INFERQ_INFERENCE", &cfg); err != nil {
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

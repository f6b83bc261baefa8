package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoggingConfig contains logging-related configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TracingConfig selects the OpenTelemetry span exporter.
type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// BrokerConfig contains the job queue, result store and polling settings
// shared by every process that talks to the broker.
type BrokerConfig struct {
	Queue           QueueConfig   `mapstructure:"queue"`
	Store           StoreConfig   `mapstructure:"store"`
	ResultTTL       time.Duration `mapstructure:"result_ttl" validate:"gt=0"`
	JobIDTTL        time.Duration `mapstructure:"job_id_ttl" validate:"gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout" validate:"gt=0"`
	ClaimResults    bool          `mapstructure:"claim_results"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" validate:"gte=0"`
}

// QueueConfig contains job queue backend configuration.
type QueueConfig struct {
	Backend           string        `mapstructure:"backend" validate:"oneof=memory redis sqs"`
	Capacity          int           `mapstructure:"capacity" validate:"gte=0"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" validate:"gte=0"`
	Redis             RedisConfig   `mapstructure:"redis"`
	SQS               SQSConfig     `mapstructure:"sqs"`
}

// StoreConfig contains result store backend configuration.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend" validate:"oneof=memory redis postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Key      string `mapstructure:"key"`
}

type SQSConfig struct {
	QueueURL string `mapstructure:"queue_url"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type PostgresConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	Migrate      bool   `mapstructure:"migrate"`
}

// PayloadConfig selects where payloads live. Every process that reads or
// writes payloads must point at the same directory or bucket.
type PayloadConfig struct {
	Backend string      `mapstructure:"backend" validate:"oneof=local minio"`
	Dir     string      `mapstructure:"dir"`
	MinIO   MinIOConfig `mapstructure:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

func (c PayloadConfig) Validate() error {
	switch c.Backend {
	case "local":
		if c.Dir == "" {
			return errors.New("payloads.dir is required for the local payload backend")
		}
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return errors.New("payloads.minio.endpoint and payloads.minio.bucket are required for the minio payload backend")
		}
	}
	return nil
}

// GeminiConfig contains the model settings for the Gemini classifier.
type GeminiConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max_retries" validate:"gte=0"`
}

// RESTConfig contains REST API server configuration.
type RESTConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`

	// EnableUploads exposes POST /api/payloads.
	EnableUploads bool `mapstructure:"enable_uploads"`
}

// Validate checks the backend-specific fields the struct tags cannot express.
func (c BrokerConfig) Validate() error {
	switch c.Queue.Backend {
	case "redis":
		if c.Queue.Redis.Addr == "" {
			return errors.New("queue.redis.addr is required for the redis queue backend")
		}
	case "sqs":
		if c.Queue.SQS.QueueURL == "" {
			return errors.New("queue.sqs.queue_url is required for the sqs queue backend")
		}
	}
	switch c.Store.Backend {
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis store backend")
		}
	case "postgres":
		if c.Store.Postgres.URL == "" {
			return errors.New("store.postgres.url is required for the postgres store backend")
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func setLoggingDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

func setBrokerDefaults(v *viper.Viper) {
	v.SetDefault("broker.queue.backend", "redis")
	v.SetDefault("broker.queue.capacity", 0)
	v.SetDefault("broker.queue.visibility_timeout", 0)
	v.SetDefault("broker.queue.redis.addr", "localhost:6379")
	v.SetDefault("broker.queue.redis.password", "")
	v.SetDefault("broker.queue.redis.db", 0)
	v.SetDefault("broker.queue.redis.key", "inferq:jobs")
	v.SetDefault("broker.queue.sqs.queue_url", "")
	v.SetDefault("broker.queue.sqs.region", "")
	v.SetDefault("broker.queue.sqs.endpoint", "")
	v.SetDefault("broker.store.backend", "redis")
	v.SetDefault("broker.store.redis.addr", "localhost:6379")
	v.SetDefault("broker.store.redis.password", "")
	v.SetDefault("broker.store.redis.db", 0)
	v.SetDefault("broker.store.redis.key", "inferq:results")
	v.SetDefault("broker.store.postgres.url", "")
	v.SetDefault("broker.store.postgres.max_open_conns", 10)
	v.SetDefault("broker.store.postgres.migrate", true)
	v.SetDefault("broker.result_ttl", 10*time.Minute)
	v.SetDefault("broker.job_id_ttl", 24*time.Hour)
	v.SetDefault("broker.poll_interval", 50*time.Millisecond)
	v.SetDefault("broker.submit_timeout", 30*time.Second)
	v.SetDefault("broker.claim_results", true)
	v.SetDefault("broker.janitor_interval", 5*time.Second)
}

func setPayloadDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".backend", "local")
	v.SetDefault(prefix+".dir", "uploads")
	v.SetDefault(prefix+".minio.endpoint", "")
	v.SetDefault(prefix+".minio.access_key", "")
	v.SetDefault(prefix+".minio.secret_key", "")
	v.SetDefault(prefix+".minio.bucket", "inferq-payloads")
	v.SetDefault(prefix+".minio.use_ssl", false)
}

func setGeminiDefaults(v *viper.Viper) {
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.max_retries", 2)
}

// load reads the optional yaml file and the environment into out.
// If configPath is empty, it looks for <name>.yaml in the config/ directory.
// Environment variables with <envPrefix>_ prefix override config file values.
func load(v *viper.Viper, configPath, name, envPrefix string, out any) error {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

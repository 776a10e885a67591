// Package config loads process configuration from defaults, an optional
// config file and command line overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"

	QueueMemory = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Port        int    `mapstructure:"port"         validate:"min=1,max=65535"`
	DatabaseURL string `mapstructure:"database_url" validate:"required"`
	// QueueURL is "memory" or a redis:// url.
	QueueURL    string `mapstructure:"queue_url"    validate:"required"`
	QueuePrefix string `mapstructure:"queue_prefix"`

	EventBus           string   `mapstructure:"event_bus"            validate:"oneof=gochannel kafka"`
	KafkaBrokers       []string `mapstructure:"kafka_brokers"        validate:"required_if=EventBus kafka"`
	KafkaConsumerGroup string   `mapstructure:"kafka_consumer_group"`

	WorkflowConcurrency int `mapstructure:"workflow_concurrency" validate:"min=1"`
	NodeConcurrency     int `mapstructure:"node_concurrency"     validate:"min=1"`

	LogLevel  string `mapstructure:"log_level"  validate:"oneof=debug info warn warning error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=auto json text"`

	OTELEnabled bool `mapstructure:"otel_enabled"`
	// RequestLog enables the per-request access log of the API.
	RequestLog bool `mapstructure:"request_log"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Port:                9091,
		DatabaseURL:         "memory",
		QueueURL:            QueueMemory,
		QueuePrefix:         "flowrun",
		EventBus:            EventBusGoChannel,
		KafkaConsumerGroup:  "flowrun",
		WorkflowConcurrency: 3,
		NodeConcurrency:     5,
		LogLevel:            "info",
		LogFormat:           "auto",
	}
}

// Load layers path (when not empty) and then overrides on top of Default.
// Zero values in overrides leave the lower layer untouched.
func Load(path string, overrides Config) (*Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return nil, err
		}

		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config file %s: %w", path, err)
		}
	}

	if err := mergo.Merge(&cfg, overrides, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}

			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}

		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// UsesRedisQueue reports whether QueueURL points at redis.
func (c *Config) UsesRedisQueue() bool {
	return strings.HasPrefix(c.QueueURL, "redis://") || strings.HasPrefix(c.QueueURL, "rediss://")
}

func readFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

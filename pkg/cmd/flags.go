package cmd

import (
	"context"

	"github.com/dukex/flowrun/pkg/config"
	"github.com/urfave/cli/v3"
)

// ConfigFlags are the settings shared by every flowrun binary. Values left
// unset fall back to the config file and then to config.Default.
func ConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML, JSON or TOML config file",
			Sources: cli.EnvVars("FLOWRUN_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL for persistence (memory, file://dir or postgres://...)",
			Sources: cli.EnvVars("FLOWRUN_DATABASE_URL", "DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "queue-url",
			Usage:   "Job queue (memory or redis://...)",
			Sources: cli.EnvVars("FLOWRUN_QUEUE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Sources: cli.EnvVars("FLOWRUN_EVENT_BUS"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers used by the kafka event bus",
			Sources: cli.EnvVars("FLOWRUN_KAFKA_BROKERS", "KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "kafka-consumer-group",
			Usage:   "Kafka consumer group of the event bus subscriber",
			Sources: cli.EnvVars("FLOWRUN_KAFKA_CONSUMER_GROUP"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.EnvVars("FLOWRUN_LOG_LEVEL", "LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (auto, json, text)",
			Sources: cli.EnvVars("FLOWRUN_LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces with the OTLP HTTP exporter",
			Sources: cli.EnvVars("FLOWRUN_OTEL_ENABLED"),
		},
	}
}

// APIFlags configure the HTTP server.
func APIFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Sources: cli.EnvVars("FLOWRUN_PORT", "PORT"),
		},
		&cli.BoolFlag{
			Name:    "request-log",
			Usage:   "Log every HTTP request",
			Sources: cli.EnvVars("FLOWRUN_REQUEST_LOG"),
		},
	}
}

// WorkerFlags configure the worker pools.
func WorkerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("FLOWRUN_WORKER_ID", "WORKER_ID"),
		},
		&cli.IntFlag{
			Name:    "workflow-concurrency",
			Usage:   "Workflow jobs processed in parallel",
			Sources: cli.EnvVars("FLOWRUN_WORKFLOW_CONCURRENCY"),
		},
		&cli.IntFlag{
			Name:    "node-concurrency",
			Usage:   "Node jobs processed in parallel",
			Sources: cli.EnvVars("FLOWRUN_NODE_CONCURRENCY"),
		},
	}
}

// LoadConfig reads the config file named by --config and applies the flags
// the command defines on top of it.
func LoadConfig(_ context.Context, command *cli.Command) (*config.Config, error) {
	overrides := config.Config{
		DatabaseURL:         command.String("database-url"),
		QueueURL:            command.String("queue-url"),
		EventBus:            command.String("event-bus"),
		KafkaBrokers:        command.StringSlice("kafka-brokers"),
		KafkaConsumerGroup:  command.String("kafka-consumer-group"),
		LogLevel:            command.String("log-level"),
		LogFormat:           command.String("log-format"),
		OTELEnabled:         command.Bool("otel"),
		Port:                command.Int("port"),
		RequestLog:          command.Bool("request-log"),
		WorkflowConcurrency: command.Int("workflow-concurrency"),
		NodeConcurrency:     command.Int("node-concurrency"),
	}

	return config.Load(command.String("config"), overrides)
}

// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowrun/pkg/channels/kafka"
	"github.com/dukex/flowrun/pkg/config"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/persistence/memory"
	"github.com/dukex/flowrun/pkg/persistence/postgresql"
	"github.com/dukex/flowrun/pkg/queue"
	memoryqueue "github.com/dukex/flowrun/pkg/queue/memory"
	"github.com/dukex/flowrun/pkg/queue/redisqueue"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/redis/go-redis/v9"
)

var supportedPersistenceProviders = []string{"memory", "file", "postgres", "postgresql"}

// NewPersistence picks the store from the scheme of databaseURL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "memory":
		return memory.NewPersistence(), nil
	case "file":
		p, err := file.NewPersistence(databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return nil, fmt.Errorf("unsupported database url %q, expected one of %v", databaseURL, supportedPersistenceProviders)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, _ := strings.Cut(databaseURL, "://")

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return ""
}

// NewQueue returns the queue selected by cfg.QueueURL. The returned close
// function releases the queue and any client it owns.
func NewQueue(ctx context.Context, logger *slog.Logger, cfg *config.Config) (queue.Queue, func() error, error) {
	if !cfg.UsesRedisQueue() {
		q := memoryqueue.New(logger, queue.DefaultRetryPolicy)

		return q, q.Close, nil
	}

	opts, err := redis.ParseURL(cfg.QueueURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse queue url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	q := redisqueue.New(client, logger, redisqueue.Options{Prefix: cfg.QueuePrefix})

	closeFn := func() error {
		qerr := q.Close()
		if cerr := client.Close(); cerr != nil && qerr == nil {
			return cerr
		}

		return qerr
	}

	return q, closeFn, nil
}

// NewEventBus returns the bus selected by cfg.EventBus.
func NewEventBus(logger *slog.Logger, cfg *config.Config) (eventbus.EventBus, error) {
	switch cfg.EventBus {
	case config.EventBusKafka:
		return eventbus.NewKafka(logger, kafka.Config{
			Brokers:       cfg.KafkaBrokers,
			ConsumerGroup: cfg.KafkaConsumerGroup,
			OTELEnabled:   cfg.OTELEnabled,
		})
	case config.EventBusGoChannel, "":
		return eventbus.NewGoChannel(logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", cfg.EventBus)
	}
}

// NewRegistry returns a registry holding the built-in node types.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	return reg
}

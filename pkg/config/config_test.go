package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", Config{})
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.False(t, cfg.UsesRedisQueue())
}

func TestLoad_FileThenOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flowrun.yaml")
	content := `
port: 8000
queue_url: redis://localhost:6379/0
event_bus: kafka
kafka_brokers:
  - localhost:9092
node_concurrency: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path, Config{Port: 9000, LogLevel: "debug"})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, EventBusKafka, cfg.EventBus)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10, cfg.NodeConcurrency)
	assert.Equal(t, 3, cfg.WorkflowConcurrency)
	assert.True(t, cfg.UsesRedisQueue())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Config{})
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		overrides Config
	}{
		{name: "unknown event bus", overrides: Config{EventBus: "nats"}},
		{name: "kafka without brokers", overrides: Config{EventBus: EventBusKafka}},
		{name: "bad log format", overrides: Config{LogFormat: "xml"}},
		{name: "port out of range", overrides: Config{Port: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load("", tt.overrides)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

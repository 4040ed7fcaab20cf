package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  max_retries: 64
  sweep_interval: 20ms
  sync_queue: 512
grpc:
  addr: ":6000"
logging:
  level: debug
kafka:
  brokers: ["a:9092"]
  broadcast_interval: 1s
outbox:
  enabled: true
`), 0o644))

	t.Setenv("APEX_GRPC_ADDR", ":7000")
	t.Setenv("APEX_KAFKA_BROKERS", "b:9092,c:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Engine.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.Engine.SweepInterval)
	assert.Equal(t, 512, cfg.Engine.SyncQueue)
	assert.Equal(t, ":7000", cfg.GRPC.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"b:9092", "c:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Second, cfg.Kafka.BroadcastInterval)
	assert.True(t, cfg.Outbox.Enabled)
	// untouched keys keep their defaults
	assert.Equal(t, "apex.events", cfg.Kafka.EventsTopic)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no retries", func(c *Config) { c.Engine.MaxRetries = 0 }},
		{"negative sync queue", func(c *Config) { c.Engine.SyncQueue = -1 }},
		{"no grpc addr", func(c *Config) { c.GRPC.Addr = "" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"journal without dir", func(c *Config) { c.Journal.Dir = "" }},
		{"outbox without brokers", func(c *Config) { c.Outbox.Enabled = true }},
		{"snapshots without dir", func(c *Config) { c.Snapshot.Dir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestBadEnv(t *testing.T) {
	t.Setenv("APEX_OUTBOX_ENABLED", "maybe")
	_, err := Load("")
	require.Error(t, err)
}

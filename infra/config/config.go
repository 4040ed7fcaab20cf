package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the server. Load reads a YAML file, then
// applies APEX_* environment overrides, then validates.
type Config struct {
	Engine struct {
		MaxRetries int `yaml:"max_retries"`
		// SweepInterval is how often resting orders are uncrossed. Zero disables it.
		SweepInterval time.Duration `yaml:"sweep_interval"`
		// SyncQueue buffers events for the journal and the outbox so their
		// writes leave the matching path. Zero writes them inline.
		SyncQueue int `yaml:"sync_queue"`
	} `yaml:"engine"`

	GRPC struct {
		Addr string `yaml:"addr"`
	} `yaml:"grpc"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	Journal struct {
		Enabled     bool   `yaml:"enabled"`
		Dir         string `yaml:"dir"`
		SegmentSize int64  `yaml:"segment_size"`
		Sync        bool   `yaml:"sync"`
	} `yaml:"journal"`

	Outbox struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
		Sync    bool   `yaml:"sync"`
	} `yaml:"outbox"`

	Kafka struct {
		Brokers           []string      `yaml:"brokers"`
		EventsTopic       string        `yaml:"events_topic"`
		TradesTopic       string        `yaml:"trades_topic"`
		BroadcastInterval time.Duration `yaml:"broadcast_interval"`
		MaxRetries        uint32        `yaml:"max_retries"`
	} `yaml:"kafka"`

	Snapshot struct {
		Dir      string        `yaml:"dir"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"snapshot"`
}

// Default returns a configuration that runs a standalone engine with a
// local journal and no Kafka.
func Default() *Config {
	var c Config
	c.Engine.MaxRetries = 1024
	c.Engine.SweepInterval = 100 * time.Millisecond
	c.Engine.SyncQueue = 8192
	c.GRPC.Addr = ":50051"
	c.Metrics.Addr = ":9090"
	c.Logging.Level = "info"
	c.Journal.Enabled = true
	c.Journal.Dir = "data/journal"
	c.Journal.SegmentSize = 64 << 20
	c.Outbox.Dir = "data/outbox"
	c.Kafka.EventsTopic = "apex.events"
	c.Kafka.TradesTopic = "apex.trades"
	c.Kafka.BroadcastInterval = 250 * time.Millisecond
	c.Kafka.MaxRetries = 10
	c.Snapshot.Dir = "data/snapshots"
	c.Snapshot.Interval = time.Minute
	return &c
}

// Load reads path over the defaults. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Engine.MaxRetries <= 0 {
		return errors.Newf("engine.max_retries must be positive, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.SweepInterval < 0 {
		return errors.New("engine.sweep_interval must not be negative")
	}
	if c.Engine.SyncQueue < 0 {
		return errors.New("engine.sync_queue must not be negative")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf("unknown logging.level %q", c.Logging.Level)
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return errors.New("journal.dir is required when the journal is enabled")
	}
	if c.Journal.SegmentSize < 0 {
		return errors.New("journal.segment_size must not be negative")
	}
	if c.Outbox.Enabled {
		if c.Outbox.Dir == "" {
			return errors.New("outbox.dir is required when the outbox is enabled")
		}
		if len(c.Kafka.Brokers) == 0 || c.Kafka.EventsTopic == "" {
			return errors.New("the outbox needs kafka.brokers and kafka.events_topic")
		}
	}
	if c.Snapshot.Interval > 0 && c.Snapshot.Dir == "" {
		return errors.New("snapshot.dir is required when snapshots are enabled")
	}
	return nil
}

// overrideWithEnv applies APEX_* variables when set.
func overrideWithEnv(c *Config) error {
	if v := os.Getenv("APEX_GRPC_ADDR"); v != "" {
		c.GRPC.Addr = v
	}
	if v := os.Getenv("APEX_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("APEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("APEX_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("APEX_JOURNAL_DIR"); v != "" {
		c.Journal.Dir = v
	}
	if v := os.Getenv("APEX_SNAPSHOT_DIR"); v != "" {
		c.Snapshot.Dir = v
	}
	if v := os.Getenv("APEX_OUTBOX_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "APEX_OUTBOX_ENABLED")
		}
		c.Outbox.Enabled = b
	}
	return nil
}

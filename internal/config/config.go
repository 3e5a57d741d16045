package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the monitoring service.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Profile  ProfileConfig  `yaml:"profile"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Log      LogConfig      `yaml:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	MaxBodySize  int64         `yaml:"max_body_size"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ProfileConfig points at the monitoring profile and controls how fresh the
// cached copy is kept.
type ProfileConfig struct {
	// Path to a JSON or YAML profile file
	Path string `yaml:"path"`
	// RefreshInterval is the cache lifetime of a loaded profile
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// Watch reloads the profile as soon as the file changes
	Watch bool `yaml:"watch"`
}

// PipelineConfig sizes the evaluation queue and worker pool.
type PipelineConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
	// SinkTimeout bounds a single alert append
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

// AlertsConfig selects the alert sinks. Every enabled sink receives every
// alert record.
type AlertsConfig struct {
	File     FileSinkConfig  `yaml:"file"`
	Kafka    KafkaConfig     `yaml:"kafka"`
	SQLite   SQLiteConfig    `yaml:"sqlite"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// FileSinkConfig writes one JSONL file per UTC day into Dir.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// KafkaConfig configures the alert topic producer.
type KafkaConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Brokers  []string       `yaml:"brokers"`
	Topic    string         `yaml:"topic"`
	Producer ProducerConfig `yaml:"producer"`
}

// ProducerConfig holds kafka writer tuning.
type ProducerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// SQLiteConfig configures the queryable alert store.
type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Prefix  string `yaml:"prefix"`
}

// WebhookConfig is one HTTP endpoint that receives alert records.
type WebhookConfig struct {
	// URLEnv names the environment variable holding the target URL
	URLEnv  string        `yaml:"url_env"`
	Timeout time.Duration `yaml:"timeout"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// File enables rotating file output in addition to stdout
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         ":8000",
			MaxBodySize:  1 << 20,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Profile: ProfileConfig{
			Path:            "monitoring_profile.json",
			RefreshInterval: 60 * time.Second,
		},
		Pipeline: PipelineConfig{
			QueueSize:   1000,
			Workers:     4,
			SinkTimeout: 5 * time.Second,
		},
		Alerts: AlertsConfig{
			File: FileSinkConfig{
				Enabled: true,
				Dir:     "alerts",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "reqmon.alerts",
				Producer: ProducerConfig{
					PoolSize:     2,
					BatchSize:    100,
					BatchTimeout: 10 * time.Millisecond,
					WriteTimeout: 10 * time.Second,
					RequiredAcks: 1,
					Compression:  "snappy",
					MaxRetries:   3,
					RetryBackoff: 100 * time.Millisecond,
				},
			},
			SQLite: SQLiteConfig{
				DSN:    "reqmon.sqlite3",
				Prefix: "reqmon_",
			},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides selected fields from REQMON_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("REQMON_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("REQMON_PROFILE_PATH"); v != "" {
		c.Profile.Path = v
	}
	if v := os.Getenv("REQMON_PROFILE_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQMON_PROFILE_REFRESH_INTERVAL: %w", err)
		}
		c.Profile.RefreshInterval = d
	}
	if v := os.Getenv("REQMON_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REQMON_WORKERS: %w", err)
		}
		c.Pipeline.Workers = n
	}
	if v := os.Getenv("REQMON_ALERTS_DIR"); v != "" {
		c.Alerts.File.Dir = v
	}
	if v := os.Getenv("REQMON_KAFKA_BROKERS"); v != "" {
		c.Alerts.Kafka.Brokers = strings.Split(v, ",")
		c.Alerts.Kafka.Enabled = true
	}
	if v := os.Getenv("REQMON_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.HTTP.MaxBodySize <= 0 {
		return fmt.Errorf("http.max_body_size must be positive, got %d", c.HTTP.MaxBodySize)
	}
	if c.Profile.RefreshInterval <= 0 {
		return fmt.Errorf("profile.refresh_interval must be positive, got %s", c.Profile.RefreshInterval)
	}
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline.queue_size must be positive, got %d", c.Pipeline.QueueSize)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Alerts.File.Enabled && c.Alerts.File.Dir == "" {
		return errors.New("alerts.file.dir is required when the file sink is enabled")
	}
	if c.Alerts.Kafka.Enabled {
		if len(c.Alerts.Kafka.Brokers) == 0 {
			return errors.New("alerts.kafka.brokers is required when kafka is enabled")
		}
		if c.Alerts.Kafka.Topic == "" {
			return errors.New("alerts.kafka.topic is required when kafka is enabled")
		}
	}
	if c.Alerts.SQLite.Enabled && c.Alerts.SQLite.DSN == "" {
		return errors.New("alerts.sqlite.dsn is required when sqlite is enabled")
	}
	for i, wh := range c.Alerts.Webhooks {
		if wh.URLEnv == "" {
			return fmt.Errorf("alerts.webhooks[%d].url_env is required", i)
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rtmonitor/internal/bus"
)

// Config is built once at startup and passed to each component. It is not
// modified afterwards.
type Config struct {
	ModuleName string `yaml:"module_name" env:"MODULE_NAME" validate:"required"`
	ModuleID   string `yaml:"module_id" env:"MODULE_ID" validate:"required"`

	NATSURL         string `yaml:"nats_url" env:"NATS_URL" validate:"required"`
	BusAddress      string `yaml:"bus_address" env:"BUS_ADDRESS"`
	StatusAddress   string `yaml:"status_address" env:"STATUS_ADDRESS" validate:"required"`
	LogBusAddresses bool   `yaml:"log_bus_addresses" env:"LOG_BUS_ADDRESSES"`

	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL" validate:"gt=0"`
	StatusAmberSeconds int           `yaml:"status_amber_seconds" env:"STATUS_AMBER_SECONDS" validate:"gt=0"`
	StatusRedSeconds   int           `yaml:"status_red_seconds" env:"STATUS_RED_SECONDS" validate:"gtefield=StatusAmberSeconds"`

	// HTTP feed listener; empty disables it.
	ListenAddr   string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	MaxFeedBytes int64  `yaml:"max_feed_bytes" env:"MAX_FEED_BYTES" validate:"gt=0"`

	// Optional upstream feed polled over HTTP.
	FeedURL      string        `yaml:"feed_url" env:"FEED_URL" validate:"omitempty,url"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL" validate:"gt=0"`

	ArchiveRoot   string `yaml:"archive_root" env:"ARCHIVE_ROOT" validate:"required"`
	SecondaryRoot string `yaml:"secondary_root" env:"SECONDARY_ROOT"`
	MonitorRoot   string `yaml:"monitor_root" env:"MONITOR_ROOT"`
	FileSuffix    string `yaml:"file_suffix" env:"FILE_SUFFIX" validate:"required,startswith=."`

	// TZ names the zone whose calendar lays out the archive directories.
	TZ       string         `yaml:"tz" env:"TZ"`
	Location *time.Location `yaml:"-" env:"-" validate:"-"`

	CatalogDSN  string `yaml:"catalog_dsn" env:"CATALOG_DSN"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`

	// Replay window, UTC epoch seconds, inclusive.
	ReplayStart  int64 `yaml:"replay_start" env:"REPLAY_START"`
	ReplayFinish int64 `yaml:"replay_finish" env:"REPLAY_FINISH"`
	ReplayRateMS int   `yaml:"replay_rate_ms" env:"REPLAY_RATE_MS" validate:"gte=0"`
}

func defaults() *Config {
	return &Config{
		NATSURL:            "nats://127.0.0.1:4222",
		StatusAddress:      "system.status",
		HeartbeatInterval:  10 * time.Second,
		StatusAmberSeconds: 15,
		StatusRedSeconds:   25,
		MaxFeedBytes:       8 << 20,
		PollInterval:       30 * time.Second,
		FileSuffix:         ".bin",
		ReplayRateMS:       1000,
	}
}

// Load reads configuration from .env, an optional YAML file named by
// CONFIG_FILE, and the environment, in increasing precedence. Missing
// required settings are an error.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.TZ == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.TZ)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.BusAddress == "" {
		cfg.BusAddress = bus.Address(cfg.ModuleName, cfg.ModuleID)
	}

	return cfg, nil
}

// ReplayRate returns the minimum delay between replayed publishes.
func (c *Config) ReplayRate() time.Duration {
	return time.Duration(c.ReplayRateMS) * time.Millisecond
}

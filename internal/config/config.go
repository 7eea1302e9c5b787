// Package config loads rtcaps settings from the environment and heap layouts
// from TOML files.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"rtcaps/heapcaps"
)

// Prefix is prepended to every environment variable name.
const Prefix = "RTCAPS"

// Config holds all application configuration.
type Config struct {
	KernelConfig
	HeapConfig
	MetricsConfig
	LogConfig
}

// KernelConfig holds scheduler settings.
type KernelConfig struct {
	Cores  int `envconfig:"CORES" default:"2"`
	TickHz int `envconfig:"TICK_HZ" default:"100"`
}

// HeapConfig holds memory settings. Caps are names separated by "," or "|".
type HeapConfig struct {
	HeapLayout      string `envconfig:"HEAP_LAYOUT"`
	WorkerStackCaps string `envconfig:"WORKER_STACK_CAPS" default:"spiram"`
	ObjectCaps      string `envconfig:"OBJECT_CAPS" default:"internal,8bit"`
}

// MetricsConfig holds the metrics endpoint. An empty address disables it.
type MetricsConfig struct {
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from RTCAPS_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns the
// default configuration.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		KernelConfig: KernelConfig{
			Cores:  2,
			TickHz: 100,
		},
		HeapConfig: HeapConfig{
			WorkerStackCaps: "spiram",
			ObjectCaps:      "internal,8bit",
		},
		LogConfig: LogConfig{
			LogLevel: "info",
		},
	}
}

// Validate checks value ranges and capability names.
func (c *Config) Validate() error {
	if c.Cores < 1 {
		return fmt.Errorf("config: %s_CORES must be at least 1, got %d", Prefix, c.Cores)
	}
	if c.TickHz < 1 {
		return fmt.Errorf("config: %s_TICK_HZ must be at least 1, got %d", Prefix, c.TickHz)
	}
	if _, err := c.StackCaps(); err != nil {
		return err
	}
	if _, err := c.ObjCaps(); err != nil {
		return err
	}
	return nil
}

// TickPeriod returns the duration of one kernel tick.
func (c *Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}

// StackCaps returns the capabilities for worker task stacks.
func (c *Config) StackCaps() (heapcaps.Caps, error) {
	caps, err := heapcaps.ParseCaps(c.WorkerStackCaps)
	if err != nil {
		return 0, fmt.Errorf("config: %s_WORKER_STACK_CAPS: %w", Prefix, err)
	}
	return caps, nil
}

// ObjCaps returns the capabilities for queues, semaphores, buffers and event
// groups.
func (c *Config) ObjCaps() (heapcaps.Caps, error) {
	caps, err := heapcaps.ParseCaps(c.ObjectCaps)
	if err != nil {
		return 0, fmt.Errorf("config: %s_OBJECT_CAPS: %w", Prefix, err)
	}
	return caps, nil
}

// Layout loads the configured heap layout.
func (c *Config) Layout() ([]heapcaps.RegionSpec, error) {
	return LoadLayout(c.HeapLayout)
}

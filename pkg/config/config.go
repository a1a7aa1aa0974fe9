// Package config loads and validates the YAML configuration consumed by
// the shulou commands.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// RemoteConfig configures the distributed trial transport.
type RemoteConfig struct {
	// TaskAddr is the address the coordinator's task socket listens on
	// and workers dial, e.g. "tcp://127.0.0.1:7750".
	TaskAddr string `yaml:"task_addr" validate:"omitempty,uri"`

	// ResultAddr is the address the coordinator's result socket listens
	// on and workers dial.
	ResultAddr string `yaml:"result_addr" validate:"omitempty,uri"`

	// Timeout bounds how long the coordinator waits for any single
	// result frame before declaring the worker fleet dead.
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the full configuration for a search run.
type Config struct {
	// Trials is the number of randomized restarts beyond the canonical run.
	Trials int `yaml:"trials" validate:"gte=0"`

	// Workers is the local pool size; 0 selects the CPU-based default.
	Workers int `yaml:"workers" validate:"gte=0"`

	// Seed drives permutation randomness; 0 means time-seeded.
	Seed int64 `yaml:"seed"`

	// Parallel enables the worker pool.
	Parallel bool `yaml:"parallel"`

	// Engine selects the detection engine.
	Engine string `yaml:"engine" validate:"oneof=propagation components"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// MetricsAddr serves prometheus metrics when non-empty, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`

	Remote RemoteConfig `yaml:"remote"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Trials:   100,
		Parallel: true,
		Engine:   "propagation",
		LogLevel: "info",
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads a YAML config file, fills unset fields with defaults and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the cross-field rules tags can't express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Remote mode needs both socket addresses and a positive timeout
	remoteEnabled := c.Remote.TaskAddr != "" || c.Remote.ResultAddr != ""
	if remoteEnabled {
		if c.Remote.TaskAddr == "" || c.Remote.ResultAddr == "" {
			return fmt.Errorf("config validation failed: remote mode needs both task_addr and result_addr")
		}
		if c.Remote.Timeout <= 0 {
			return fmt.Errorf("config validation failed: remote.timeout must be positive")
		}
	}

	return nil
}

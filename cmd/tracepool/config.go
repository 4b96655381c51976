package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends and modes accepted by the demo command.
const (
	BackendLocal = "local"
	BackendOtel  = "otel"

	ModeExecute   = "execute"
	ModeSubmit    = "submit"
	ModeInvokeAll = "invoke-all"
	ModeInvokeAny = "invoke-any"
	ModeSchedule  = "schedule"
	ModePeriodic  = "periodic"
)

// DemoConfig is the demo workload. Fields map to the YAML config file; flags
// given on the command line override them.
type DemoConfig struct {
	Workers     int           `yaml:"workers"`
	Tasks       int           `yaml:"tasks"`
	Backend     string        `yaml:"backend"`
	Mode        string        `yaml:"mode"`
	AlwaysTrace bool          `yaml:"always_trace"`
	NoParent    bool          `yaml:"no_parent"`
	RefCounting bool          `yaml:"ref_counting"`
	Period      time.Duration `yaml:"period"`
	Firings     int           `yaml:"firings"`
	Metrics     bool          `yaml:"metrics"`
	LogLevel    string        `yaml:"log_level"`
}

// DefaultDemoConfig returns the configuration used when no file is given.
func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		Workers:  4,
		Tasks:    3,
		Backend:  BackendLocal,
		Mode:     ModeInvokeAll,
		Period:   10 * time.Millisecond,
		Firings:  3,
		LogLevel: "warn",
	}
}

// LoadDemoConfig reads path over the defaults.
func LoadDemoConfig(path string) (DemoConfig, error) {
	cfg := DefaultDemoConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration is runnable.
func (c DemoConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Tasks <= 0 {
		return fmt.Errorf("tasks must be positive, got %d", c.Tasks)
	}
	switch c.Backend {
	case BackendLocal, BackendOtel:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendLocal, BackendOtel)
	}
	switch c.Mode {
	case ModeExecute, ModeSubmit, ModeInvokeAll, ModeInvokeAny, ModeSchedule, ModePeriodic:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Mode == ModePeriodic && (c.Period <= 0 || c.Firings <= 0) {
		return fmt.Errorf("periodic mode needs a positive period and firings")
	}
	if c.RefCounting && c.Backend != BackendLocal {
		return fmt.Errorf("ref_counting requires the %s backend", BackendLocal)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

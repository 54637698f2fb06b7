package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all run configuration.
type Config struct {
	Run       RunConfig       `yaml:"run" toml:"run"`
	Group     GroupConfig     `yaml:"group" toml:"group"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// RunConfig holds kernel settings.
type RunConfig struct {
	Density       int `envconfig:"PACKET_DENSITY" yaml:"density" toml:"density"`
	KernelThreads int `envconfig:"KERNEL_THREADS" yaml:"kernel_threads" toml:"kernel_threads"`
}

// GroupConfig identifies this process within the group.
type GroupConfig struct {
	Rank int `envconfig:"RANK" yaml:"rank" toml:"rank"`
	Size int `envconfig:"WORLD_SIZE" yaml:"size" toml:"size"`
}

// TransportConfig holds gRPC transport settings.
type TransportConfig struct {
	ListenAddr      string   `envconfig:"LISTEN_ADDR" yaml:"listen_addr" toml:"listen_addr"`
	CoordinatorAddr string   `envconfig:"COORDINATOR_ADDR" yaml:"coordinator_addr" toml:"coordinator_addr"`
	ReplyTimeout    Duration `envconfig:"REPLY_TIMEOUT" yaml:"reply_timeout" toml:"reply_timeout"`
	ConnectTimeout  Duration `envconfig:"CONNECT_TIMEOUT" yaml:"connect_timeout" toml:"connect_timeout"`
	ConnectAttempts int      `envconfig:"CONNECT_ATTEMPTS" yaml:"connect_attempts" toml:"connect_attempts"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// MetricsConfig holds the status server address. Empty disables it.
type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR" yaml:"addr" toml:"addr"`
}

// Duration is a time.Duration read from strings such as "30s".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Density:       40 * 1024000,
			KernelThreads: 1,
		},
		Group: GroupConfig{
			Size: 4,
		},
		Transport: TransportConfig{
			ListenAddr:      ":7070",
			CoordinatorAddr: "localhost:7070",
			ConnectTimeout:  Duration(5 * time.Second),
			ConnectAttempts: 30,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from environment variables over the defaults.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom layers the defaults, the file at path (if not empty) and the
// environment, in that order, and validates the result.
func LoadFrom(path string) (*Config, error) {
	cfg, err := Layer(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Layer is LoadFrom without validation, for callers that apply further
// overrides and validate afterwards.
func Layer(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadFile loads the file at path over the defaults, ignoring the
// environment. The format follows the extension: .yaml, .yml or .toml.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.Density < 1 {
		errs = append(errs, fmt.Errorf("density must be positive, got %d", c.Run.Density))
	}
	if c.Run.KernelThreads < 1 {
		errs = append(errs, fmt.Errorf("kernel threads must be positive, got %d", c.Run.KernelThreads))
	}
	if c.Group.Rank < 0 {
		errs = append(errs, fmt.Errorf("rank must not be negative, got %d", c.Group.Rank))
	}
	if c.Transport.ReplyTimeout < 0 {
		errs = append(errs, errors.New("reply timeout must not be negative"))
	}
	if c.Transport.ConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("connect attempts must be positive, got %d", c.Transport.ConnectAttempts))
	}
	return errors.Join(errs...)
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/trackbind/internal/scene"
	"github.com/banshee-data/trackbind/internal/serialmux"
	"github.com/caarlos0/env/v11"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/trackbind.defaults.json"

// Config is the runtime configuration for trackbind. Every scalar is a
// pointer so that a partial file leaves the rest at their defaults; the
// Get* methods resolve them.
type Config struct {
	// Templates is the fixed set of entities bound to trackable labels.
	Templates []scene.Template `json:"templates,omitempty"`

	// Sensor link
	SerialPort    *string                `json:"serial_port,omitempty"`
	SerialOptions *serialmux.PortOptions `json:"serial_options,omitempty"`

	// Dev-mode replay
	FixturesPath   *string `json:"fixtures_path,omitempty"`
	ReplayInterval *string `json:"replay_interval,omitempty"` // duration string like "100ms"

	// Journal and debug server
	JournalPath    *string `json:"journal_path,omitempty"`
	Listen         *string `json:"listen,omitempty"`
	StatusInterval *string `json:"status_interval,omitempty"` // duration string like "30s"
}

// EnvOverrides are the environment variables that take precedence over
// the file.
type EnvOverrides struct {
	SerialPort   *string `env:"TRACKBIND_SERIAL_PORT"`
	FixturesPath *string `env:"TRACKBIND_FIXTURES"`
	JournalPath  *string `env:"TRACKBIND_JOURNAL_PATH"`
	Listen       *string `env:"TRACKBIND_LISTEN"`
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under 1MB. Fields omitted from the file keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays any TRACKBIND_* variables that are set.
func (c *Config) ApplyEnv() error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.SerialPort != nil {
		c.SerialPort = o.SerialPort
	}
	if o.FixturesPath != nil {
		c.FixturesPath = o.FixturesPath
	}
	if o.JournalPath != nil {
		c.JournalPath = o.JournalPath
	}
	if o.Listen != nil {
		c.Listen = o.Listen
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Templates))
	for i, t := range c.Templates {
		label := strings.TrimSpace(t.Label)
		if label == "" {
			return fmt.Errorf("templates[%d]: label is required", i)
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("templates[%d]: duplicate label %q", i, label)
		}
		seen[label] = struct{}{}
	}

	if c.SerialOptions != nil {
		if _, err := c.SerialOptions.Normalize(); err != nil {
			return fmt.Errorf("serial_options: %w", err)
		}
	}

	for name, v := range map[string]*string{
		"replay_interval": c.ReplayInterval,
		"status_interval": c.StatusInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetSerialPort returns the sensor serial device or the default.
func (c *Config) GetSerialPort() string { return stringOr(c.SerialPort, "/dev/ttyUSB0") }

// GetSerialOptions returns the normalised serial options. The sensor link
// defaults to 115200 8N1.
func (c *Config) GetSerialOptions() serialmux.PortOptions {
	opts := serialmux.PortOptions{BaudRate: 115200}
	if c.SerialOptions != nil {
		opts = *c.SerialOptions
		if opts.BaudRate == 0 {
			opts.BaudRate = 115200
		}
	}
	normalized, err := opts.Normalize()
	if err != nil {
		return serialmux.PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	}
	return normalized
}

// GetFixturesPath returns the dev-mode fixtures file or the default.
func (c *Config) GetFixturesPath() string { return stringOr(c.FixturesPath, "fixtures.jsonl") }

// GetReplayInterval returns the dev-mode line interval or the default.
func (c *Config) GetReplayInterval() time.Duration {
	return durationOr(c.ReplayInterval, 100*time.Millisecond)
}

// GetJournalPath returns the sqlite journal path or the default.
func (c *Config) GetJournalPath() string { return stringOr(c.JournalPath, "trackbind.db") }

// GetListen returns the debug server address or the default.
func (c *Config) GetListen() string { return stringOr(c.Listen, ":8080") }

// GetStatusInterval returns the host loop status period or the default.
func (c *Config) GetStatusInterval() time.Duration {
	return durationOr(c.StatusInterval, 30*time.Second)
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoProject is returned when no gavi.json exists in the search path.
var ErrNoProject = errors.New("config: no gavi.json found")

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "gavi.json"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8000"
)

// Config represents the complete gavi.json configuration.
type Config struct {
	// Address is the listen address for the main server.
	Address string `json:"address,omitempty"`

	// MetricsAddress, when non-empty, serves /metrics on a separate listener.
	MetricsAddress string `json:"metricsAddress,omitempty"`

	// Static contains static file serving configuration.
	Static StaticConfig `json:"static,omitempty"`

	// Server contains protocol engine tuning.
	Server ServerConfig `json:"server,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty"`

	// Tracing enables OpenTelemetry spans per connection.
	Tracing bool `json:"tracing,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// StaticConfig contains static file serving configuration.
type StaticConfig struct {
	// Dir is the directory containing static files. Empty disables
	// static serving.
	Dir string `json:"dir,omitempty"`

	// Prefix is the URL prefix for static files (default: "/static/").
	Prefix string `json:"prefix,omitempty"`

	// CacheControl is sent with every successful static response.
	CacheControl string `json:"cacheControl,omitempty"`
}

// ServerConfig contains protocol engine tuning.
type ServerConfig struct {
	// EventQueueSize bounds the per-connection inbound event buffer.
	EventQueueSize int `json:"eventQueueSize,omitempty"`

	// ReadChunkSize is the request body chunk size in bytes.
	ReadChunkSize int `json:"readChunkSize,omitempty"`

	// StartupTimeout bounds the lifespan startup exchange, e.g. "30s".
	StartupTimeout string `json:"startupTimeout,omitempty"`

	// ShutdownTimeout is the graceful shutdown window, e.g. "30s".
	ShutdownTimeout string `json:"shutdownTimeout,omitempty"`

	// DisableLifespan skips the startup/shutdown exchange.
	DisableLifespan bool `json:"disableLifespan,omitempty"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `json:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Address: DefaultAddress,
		Static: StaticConfig{
			Prefix: "/static/",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// gavi.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return fmt.Errorf("config: no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// StaticDirPath returns the absolute path to the static directory, or ""
// when static serving is disabled.
func (c *Config) StaticDirPath() string {
	if c.Static.Dir == "" {
		return ""
	}
	if filepath.IsAbs(c.Static.Dir) {
		return c.Static.Dir
	}
	return filepath.Join(c.Dir(), c.Static.Dir)
}

// StartupTimeout parses the configured startup window, zero when unset.
func (c *Config) StartupTimeout() (time.Duration, error) {
	return parseWindow("startupTimeout", c.Server.StartupTimeout)
}

// ShutdownTimeout parses the configured shutdown window, zero when unset.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	return parseWindow("shutdownTimeout", c.Server.ShutdownTimeout)
}

func parseWindow(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return d, nil
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Static.Prefix == "" {
		c.Static.Prefix = "/static/"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Server.EventQueueSize < 0 {
		return fmt.Errorf("config: eventQueueSize must not be negative")
	}
	if c.Server.ReadChunkSize < 0 {
		return fmt.Errorf("config: readChunkSize must not be negative")
	}
	if _, err := c.StartupTimeout(); err != nil {
		return err
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		return err
	}
	return nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the one containing
// gavi.json, or an error if none exists.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w in %s or any parent directory", ErrNoProject, startDir)
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the nearest project root
// above the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}
	return Load(root)
}

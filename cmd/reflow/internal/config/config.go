package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the project directory.
const FileName = "reflow.yaml"

// Config represents the reflow.yaml configuration
type Config struct {
	// Markup is the template file mounted by render, watch, serve and play.
	Markup string `yaml:"markup,omitempty"`

	// State is an optional YAML mapping seeding the root scope.
	State string `yaml:"state,omitempty"`

	// Script is an optional YAML list of actions applied after mounting.
	Script string `yaml:"script,omitempty"`

	// Retain is how many consecutive absent updates an :each item
	// survives; 0 keeps the default and a negative value keeps items forever.
	Retain int `yaml:"retain,omitempty"`

	Cache  *CacheConfig  `yaml:"cache,omitempty"`
	Server *ServerConfig `yaml:"server,omitempty"`
	Watch  *WatchConfig  `yaml:"watch,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty"`
}

// CacheConfig controls the compiled program cache
type CacheConfig struct {
	// Whether compiled programs are persisted between runs
	Enabled bool `yaml:"enabled"`

	// Cache directory; empty means the user cache directory
	Dir string `yaml:"dir,omitempty"`

	// Size limit in megabytes
	MaxSizeMB int `yaml:"maxSizeMB,omitempty"`
}

// ServerConfig contains live server configuration
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// Sessions without connections are closed after this long
	IdleTimeout time.Duration `yaml:"idleTimeout,omitempty"`
}

// WatchConfig contains file watcher configuration
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// One of debug, info, warn, error
	Level string `yaml:"level,omitempty"`

	// Optional file receiving JSON logs in addition to stderr
	File string `yaml:"file,omitempty"`
}

// Load loads configuration from path. A missing file yields the defaults;
// relative file paths inside the configuration resolve against its
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	applyDefaults(&config)
	config.resolve(filepath.Dir(path))
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &config, nil
}

// Save writes configuration to path.
func Save(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Markup: "index.html",
		Cache: &CacheConfig{
			Enabled:   false,
			MaxSizeMB: 64,
		},
		Server: &ServerConfig{
			Host:        "localhost",
			Port:        8080,
			IdleTimeout: 10 * time.Minute,
		},
		Watch: &WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// applyDefaults applies default values to missing configuration
func applyDefaults(config *Config) {
	defaults := DefaultConfig()

	if config.Markup == "" {
		config.Markup = defaults.Markup
	}

	if config.Cache == nil {
		config.Cache = defaults.Cache
	} else if config.Cache.MaxSizeMB == 0 {
		config.Cache.MaxSizeMB = defaults.Cache.MaxSizeMB
	}

	if config.Server == nil {
		config.Server = defaults.Server
	} else {
		if config.Server.Host == "" {
			config.Server.Host = defaults.Server.Host
		}
		if config.Server.Port == 0 {
			config.Server.Port = defaults.Server.Port
		}
		if config.Server.IdleTimeout == 0 {
			config.Server.IdleTimeout = defaults.Server.IdleTimeout
		}
	}

	if config.Watch == nil {
		config.Watch = defaults.Watch
	} else if config.Watch.Debounce == 0 {
		config.Watch.Debounce = defaults.Watch.Debounce
	}

	if config.Log == nil {
		config.Log = defaults.Log
	} else if config.Log.Level == "" {
		config.Log.Level = defaults.Log.Level
	}
}

func (c *Config) resolve(dir string) {
	for _, p := range []*string{&c.Markup, &c.State, &c.Script, &c.Cache.Dir, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server != nil {
		if c.Server.Port < 0 || c.Server.Port > 65535 {
			return fmt.Errorf("server port %d out of range", c.Server.Port)
		}
		if c.Server.IdleTimeout < 0 {
			return errors.New("server idle timeout must not be negative")
		}
		if c.Server.IdleTimeout > 0 && c.Server.IdleTimeout < time.Second {
			return fmt.Errorf("server idle timeout %s is under 1s", c.Server.IdleTimeout)
		}
	}
	if c.Log != nil {
		switch c.Log.Level {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("unknown log level %q", c.Log.Level)
		}
	}
	if c.Watch != nil && c.Watch.Debounce < 0 {
		return errors.New("watch debounce must not be negative")
	}
	return nil
}

// Addr returns the live server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

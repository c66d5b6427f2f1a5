// Package config handles configuration loading for twinbridge.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigPathEnv overrides the configuration file location.
	ConfigPathEnv = "TWINRC"
	// BaseURLEnv overrides server.base_url.
	BaseURLEnv = "TWIN_BASE_URL"
	// UserIDEnv overrides user.id.
	UserIDEnv = "TWIN_USER_ID"

	// ConfigFileName is the name of the configuration file.
	ConfigFileName = ".twinrc"
)

// RateLimitConfig configures client-side pacing of REST calls.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst is the number of requests allowed at once.
	Burst int `yaml:"burst"`
}

// ServerConfig describes the remote service.
type ServerConfig struct {
	BaseURL   string          `yaml:"base_url"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// UserConfig holds the caller identity.
type UserConfig struct {
	// ID is sent as user_id. Empty means anonymous.
	ID string `yaml:"id"`
}

// ChatConfig holds defaults for the interactive chat.
type ChatConfig struct {
	// Mode is "orchestrator" or "direct".
	Mode string `yaml:"mode"`
	// Agent is the target agent in direct mode and for real-time frames.
	Agent string `yaml:"agent"`
}

// LogConfig holds logging defaults. Command-line flags take precedence.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// Config represents the complete twinbridge configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	User   UserConfig   `yaml:"user"`
	Chat   ChatConfig   `yaml:"chat"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:   "http://localhost:8080",
			Timeout:   30 * time.Second,
			RateLimit: RateLimitConfig{Burst: 1},
		},
		Chat: ChatConfig{
			Mode:  "orchestrator",
			Agent: "team_coordinator",
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultConfigPath returns the default configuration file path for the current platform.
func DefaultConfigPath() string {
	if envPath := os.Getenv(ConfigPathEnv); envPath != "" {
		return envPath
	}

	var configDir string
	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		configDir, _ = os.UserHomeDir()
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = xdgConfig
		} else {
			configDir, _ = os.UserHomeDir()
		}
	}

	return filepath.Join(configDir, ConfigFileName)
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist. Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML configuration data. Keys that are absent keep their
// default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv applies TWIN_BASE_URL and TWIN_USER_ID.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(BaseURLEnv); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv(UserIDEnv); v != "" {
		c.User.ID = v
	}
}

// Validate checks the configuration for values the client cannot use.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server.base_url %q: %w", c.Server.BaseURL, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid server.base_url %q: scheme must be http or https", c.Server.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server.base_url %q: missing host", c.Server.BaseURL)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("invalid server.timeout %s: must not be negative", c.Server.Timeout)
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid server.rate_limit.requests_per_second: must not be negative")
	}
	switch strings.ToLower(c.Chat.Mode) {
	case "", "orchestrator", "direct":
	default:
		return fmt.Errorf("invalid chat.mode %q: must be orchestrator or direct", c.Chat.Mode)
	}
	return nil
}

// Package config loads the relay and client settings with the precedence
// file > environment > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Database  *DatabaseConfig  `json:"database"`
	Reconnect *ReconnectConfig `json:"reconnect"`
	Backend   *BackendConfig   `json:"backend"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// Addr returns the host:port listen address.
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
	// Enabled controls whether relayed envelopes are logged at all.
	Enabled    bool          `json:"enabled"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// ReconnectConfig drives the client-side reconnection schedule.
type ReconnectConfig struct {
	InitialBackoff time.Duration `json:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff"`
	MaxAttempts    int           `json:"max_attempts"`
	Watchdog       time.Duration `json:"watchdog"`
}

// BackendConfig points at the external submission and history API.
type BackendConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
		Database: &DatabaseConfig{
			Path:       "./classboard.db",
			Enabled:    true,
			RetryDelay: 5 * time.Second,
		},
		Reconnect: &ReconnectConfig{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			MaxAttempts:    10,
			Watchdog:       30 * time.Second,
		},
		Backend: &BackendConfig{
			BaseURL: "http://localhost:9000",
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("websocket intervals must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed the ping interval")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty when logging is enabled")
	}

	if c.Reconnect == nil {
		return fmt.Errorf("reconnect configuration is required")
	}
	if c.Reconnect.InitialBackoff <= 0 || c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		return fmt.Errorf("reconnect backoff bounds are invalid")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect max attempts must be positive")
	}

	if c.Backend == nil {
		return fmt.Errorf("backend configuration is required")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base URL cannot be empty")
	}

	return nil
}

// LoadFromEnv applies CLASSBOARD_* environment overrides on top of the
// defaults. Unparsable values are ignored in favor of the default.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("CLASSBOARD_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("CLASSBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	envDuration("CLASSBOARD_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	envDuration("CLASSBOARD_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)

	envDuration("CLASSBOARD_WEBSOCKET_PING_INTERVAL", &cfg.WebSocket.PingInterval)
	envDuration("CLASSBOARD_WEBSOCKET_READ_TIMEOUT", &cfg.WebSocket.ReadTimeout)

	if path := os.Getenv("CLASSBOARD_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if enabled := os.Getenv("CLASSBOARD_DATABASE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Database.Enabled = b
		}
	}

	envDuration("CLASSBOARD_RECONNECT_INITIAL_BACKOFF", &cfg.Reconnect.InitialBackoff)
	envDuration("CLASSBOARD_RECONNECT_MAX_BACKOFF", &cfg.Reconnect.MaxBackoff)
	if attempts := os.Getenv("CLASSBOARD_RECONNECT_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.Reconnect.MaxAttempts = n
		}
	}
	envDuration("CLASSBOARD_RECONNECT_WATCHDOG", &cfg.Reconnect.Watchdog)

	if url := os.Getenv("CLASSBOARD_BACKEND_URL"); url != "" {
		cfg.Backend.BaseURL = url
	}
	envDuration("CLASSBOARD_BACKEND_TIMEOUT", &cfg.Backend.Timeout)

	return cfg
}

func envDuration(key string, dst *time.Duration) {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			*dst = d
		}
	}
}

// fileConfig mirrors Config with string durations for JSON parsing.
type fileConfig struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
	} `json:"websocket"`
	Database *struct {
		Path       string `json:"path"`
		Enabled    *bool  `json:"enabled"`
		RetryDelay string `json:"retry_delay"`
	} `json:"database"`
	Reconnect *struct {
		InitialBackoff string `json:"initial_backoff"`
		MaxBackoff     string `json:"max_backoff"`
		MaxAttempts    int    `json:"max_attempts"`
		Watchdog       string `json:"watchdog"`
	} `json:"reconnect"`
	Backend *struct {
		BaseURL string `json:"base_url"`
		Timeout string `json:"timeout"`
	} `json:"backend"`
}

// LoadFromFile reads a JSON config file on top of the defaults. Durations
// are written as strings ("30s", "1m").
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if fc.HTTP != nil {
		if fc.HTTP.Host != "" {
			cfg.HTTP.Host = fc.HTTP.Host
		}
		if fc.HTTP.Port > 0 {
			cfg.HTTP.Port = fc.HTTP.Port
		}
		parseDuration(fc.HTTP.ReadTimeout, &cfg.HTTP.ReadTimeout)
		parseDuration(fc.HTTP.WriteTimeout, &cfg.HTTP.WriteTimeout)
	}
	if fc.WebSocket != nil {
		parseDuration(fc.WebSocket.PingInterval, &cfg.WebSocket.PingInterval)
		parseDuration(fc.WebSocket.ReadTimeout, &cfg.WebSocket.ReadTimeout)
	}
	if fc.Database != nil {
		if fc.Database.Path != "" {
			cfg.Database.Path = fc.Database.Path
		}
		if fc.Database.Enabled != nil {
			cfg.Database.Enabled = *fc.Database.Enabled
		}
		parseDuration(fc.Database.RetryDelay, &cfg.Database.RetryDelay)
	}
	if fc.Reconnect != nil {
		parseDuration(fc.Reconnect.InitialBackoff, &cfg.Reconnect.InitialBackoff)
		parseDuration(fc.Reconnect.MaxBackoff, &cfg.Reconnect.MaxBackoff)
		if fc.Reconnect.MaxAttempts > 0 {
			cfg.Reconnect.MaxAttempts = fc.Reconnect.MaxAttempts
		}
		parseDuration(fc.Reconnect.Watchdog, &cfg.Reconnect.Watchdog)
	}
	if fc.Backend != nil {
		if fc.Backend.BaseURL != "" {
			cfg.Backend.BaseURL = fc.Backend.BaseURL
		}
		parseDuration(fc.Backend.Timeout, &cfg.Backend.Timeout)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func parseDuration(raw string, dst *time.Duration) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// LoadWithPrecedence resolves the effective configuration: a valid file
// wins, otherwise environment overrides, otherwise defaults.
func LoadWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()
	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}
	return cfg
}

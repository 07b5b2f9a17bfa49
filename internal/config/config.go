package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen         = ":5000"
	defaultTimezone           = "UTC"
	defaultTokenExpiresHours  = 24
	defaultWorkers            = 10
	defaultQueueSize          = 1024
	defaultCacheTTLSeconds    = 15
	defaultStopTimeoutSeconds = 20
	defaultBroadcastURL       = "nats://127.0.0.1:4222"
	defaultBroadcastSubject   = "alerthub.alerts"
	defaultTelegramAPIBase    = "https://api.telegram.org"
)

// Config is the full service configuration.
// Params: TOML sections for HTTP, auth, storage, logging, notify channels,
// pipeline pool, and broadcast mirror.
// Returns: validated runtime settings.
type Config struct {
	HTTP      HTTPConfig      `toml:"http"`
	Auth      AuthConfig      `toml:"auth"`
	Database  DatabaseConfig  `toml:"database"`
	Timezone  string          `toml:"timezone"`
	Log       LogConfig       `toml:"log"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Notify    NotifyConfig    `toml:"notify"`
	Broadcast BroadcastConfig `toml:"broadcast"`
}

// HTTPConfig holds listener and external URL settings.
type HTTPConfig struct {
	Listen  string `toml:"listen"`
	BaseURL string `toml:"base_url"`
}

// AuthConfig holds JWT session settings.
type AuthConfig struct {
	SecretKey         string `toml:"secret_key"`
	TokenExpiresHours int    `toml:"token_expires_hours"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

// LogConfig holds console/file sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig is one log sink.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// PipelineConfig holds dispatch pool settings.
type PipelineConfig struct {
	Workers            int `toml:"workers"`
	QueueSize          int `toml:"queue_size"`
	CacheTTLSeconds    int `toml:"cache_ttl_seconds"`
	StopTimeoutSeconds int `toml:"stop_timeout_seconds"`
}

// StopTimeout returns the worker join timeout.
// Params: none.
// Returns: duration form of stop_timeout_seconds.
func (p PipelineConfig) StopTimeout() time.Duration {
	return time.Duration(p.StopTimeoutSeconds) * time.Second
}

// CacheTTL returns the matcher cache time-to-live.
// Params: none.
// Returns: duration form of cache_ttl_seconds.
func (p PipelineConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

// NotifyConfig holds per-channel transport settings.
type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
	Ntfy     NtfyConfig     `toml:"ntfy"`
	Apprise  AppriseConfig  `toml:"apprise"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	APIBase  string `toml:"api_base"`
}

// NtfyConfig holds ntfy server settings.
type NtfyConfig struct {
	Server      string `toml:"server"`
	AccessToken string `toml:"access_token"`
}

// AppriseConfig holds Apprise API server settings.
type AppriseConfig struct {
	Server string `toml:"server"`
}

// BroadcastConfig holds the NATS alert mirror settings.
type BroadcastConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// Load reads, defaults, and validates one TOML config file.
// Params: config file path.
// Returns: validated config or read/parse/validation error.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := Defaults()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults builds a config with all default values applied.
// Params: none.
// Returns: default config before file overrides.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{Listen: defaultHTTPListen},
		Auth: AuthConfig{TokenExpiresHours: defaultTokenExpiresHours},
		Log: LogConfig{
			Console: LogSinkConfig{Enabled: true, Level: "info", Format: "line"},
			File:    LogSinkConfig{Level: "info", Format: "json"},
		},
		Timezone: defaultTimezone,
		Pipeline: PipelineConfig{
			Workers:            defaultWorkers,
			QueueSize:          defaultQueueSize,
			CacheTTLSeconds:    defaultCacheTTLSeconds,
			StopTimeoutSeconds: defaultStopTimeoutSeconds,
		},
		Notify: NotifyConfig{
			Telegram: TelegramConfig{APIBase: defaultTelegramAPIBase},
		},
		Broadcast: BroadcastConfig{
			URL:     defaultBroadcastURL,
			Subject: defaultBroadcastSubject,
		},
	}
}

// Validate checks cross-field constraints.
// Params: none.
// Returns: first violated constraint as error.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Listen) == "" {
		return errors.New("http.listen is required")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if strings.TrimSpace(c.Auth.SecretKey) == "" {
		return errors.New("auth.secret_key is required")
	}
	if c.Auth.TokenExpiresHours <= 0 {
		return errors.New("auth.token_expires_hours must be positive")
	}
	if c.Pipeline.Workers <= 0 {
		return errors.New("pipeline.workers must be positive")
	}
	if c.Pipeline.QueueSize <= 0 {
		return errors.New("pipeline.queue_size must be positive")
	}
	if c.Pipeline.CacheTTLSeconds < 0 {
		return errors.New("pipeline.cache_ttl_seconds must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.Broadcast.Enabled && strings.TrimSpace(c.Broadcast.URL) == "" {
		return errors.New("broadcast.url is required when broadcast is enabled")
	}
	return nil
}

// Location resolves the configured timezone.
// Params: none.
// Returns: loaded location, falling back to UTC on error.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

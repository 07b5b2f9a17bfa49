package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `[http]
listen = ":5000"

[auth]
secret_key = "test-secret"

[database]
dsn = "host=localhost user=alerthub dbname=alerthub"
`

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, minimalConfig)

	if cfg.Timezone != "UTC" {
		t.Fatalf("unexpected default timezone %q", cfg.Timezone)
	}
	if cfg.Auth.TokenExpiresHours != 24 {
		t.Fatalf("unexpected default token expiry %d", cfg.Auth.TokenExpiresHours)
	}
	if cfg.Pipeline.Workers != 10 {
		t.Fatalf("unexpected default workers %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.QueueSize != 1024 {
		t.Fatalf("unexpected default queue size %d", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.CacheTTLSeconds != 15 {
		t.Fatalf("unexpected default cache ttl %d", cfg.Pipeline.CacheTTLSeconds)
	}
	if cfg.Pipeline.StopTimeoutSeconds != 20 {
		t.Fatalf("unexpected default stop timeout %d", cfg.Pipeline.StopTimeoutSeconds)
	}
	if cfg.Broadcast.Enabled {
		t.Fatalf("expected broadcast disabled by default")
	}
	if cfg.Broadcast.URL != "nats://127.0.0.1:4222" {
		t.Fatalf("unexpected default broadcast url %q", cfg.Broadcast.URL)
	}
	if cfg.Broadcast.Subject != "alerthub.alerts" {
		t.Fatalf("unexpected default broadcast subject %q", cfg.Broadcast.Subject)
	}
	if !cfg.Log.Console.Enabled || cfg.Log.Console.Level != "info" {
		t.Fatalf("unexpected default console log config: %+v", cfg.Log.Console)
	}
	if cfg.Notify.Telegram.APIBase != "https://api.telegram.org" {
		t.Fatalf("unexpected default telegram api base %q", cfg.Notify.Telegram.APIBase)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, `timezone = "Europe/Moscow"

`+minimalConfig+`
[pipeline]
workers = 3
queue_size = 64
cache_ttl_seconds = 30
stop_timeout_seconds = 5

[broadcast]
enabled = true
url = "nats://nats.internal:4222"
subject = "alerts.mirror"
`)

	if cfg.Timezone != "Europe/Moscow" {
		t.Fatalf("unexpected timezone %q", cfg.Timezone)
	}
	if cfg.Pipeline.Workers != 3 || cfg.Pipeline.QueueSize != 64 {
		t.Fatalf("unexpected pipeline pool config: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.CacheTTL() != 30*time.Second {
		t.Fatalf("unexpected cache ttl %v", cfg.Pipeline.CacheTTL())
	}
	if cfg.Pipeline.StopTimeout() != 5*time.Second {
		t.Fatalf("unexpected stop timeout %v", cfg.Pipeline.StopTimeout())
	}
	if !cfg.Broadcast.Enabled || cfg.Broadcast.Subject != "alerts.mirror" {
		t.Fatalf("unexpected broadcast config: %+v", cfg.Broadcast)
	}
	if cfg.Location().String() != "Europe/Moscow" {
		t.Fatalf("unexpected location %v", cfg.Location())
	}
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing database dsn",
			content: `[http]
listen = ":5000"

[auth]
secret_key = "test-secret"`,
			wantErr: "database.dsn is required",
		},
		{
			name: "missing auth secret",
			content: `[http]
listen = ":5000"

[database]
dsn = "host=localhost"`,
			wantErr: "auth.secret_key is required",
		},
		{
			name:    "empty listen",
			content: strings.Replace(minimalConfig, `listen = ":5000"`, `listen = "  "`, 1),
			wantErr: "http.listen is required",
		},
		{
			name: "zero workers",
			content: minimalConfig + `
[pipeline]
workers = 0`,
			wantErr: "pipeline.workers must be positive",
		},
		{
			name: "negative queue size",
			content: minimalConfig + `
[pipeline]
queue_size = -1`,
			wantErr: "pipeline.queue_size must be positive",
		},
		{
			name: "negative cache ttl",
			content: minimalConfig + `
[pipeline]
cache_ttl_seconds = -1`,
			wantErr: "pipeline.cache_ttl_seconds must not be negative",
		},
		{
			name:    "unknown timezone",
			content: `timezone = "Mars/Olympus"` + "\n\n" + minimalConfig,
			wantErr: `timezone "Mars/Olympus"`,
		},
		{
			name: "broadcast enabled without url",
			content: minimalConfig + `
[broadcast]
enabled = true
url = ""`,
			wantErr: "broadcast.url is required",
		},
		{
			name:    "broken toml",
			content: "http = [",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadFromContent(t, tt.content)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatalf("expected read error")
	}
	if !strings.Contains(err.Error(), "read config") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	t.Parallel()

	cfg := Config{Timezone: "Nowhere/Invalid"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", cfg.Location())
	}
}

func mustLoad(t *testing.T, content string) Config {
	t.Helper()
	cfg, err := loadFromContent(t, content)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func loadFromContent(t *testing.T, content string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerthub.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return Load(path)
}

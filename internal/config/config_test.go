package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: debug
  console: true
  chat:
    enabled: true
    channel: "-100200:7"
    min_level: warn
    rate_per_sec: 2
engine:
  poll_interval: "60s"
digest:
  enabled: true
  spec: "0 9 * * 1"
  channels: ["-100200"]
store:
  driver: sqlite
  path: "./events.db"
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q, want %q", cfg.Telegram.Token, "123:abc")
	}
	if cfg.Logging.Chat.Channel != "-100200:7" {
		t.Errorf("chat channel = %q, want %q", cfg.Logging.Chat.Channel, "-100200:7")
	}
	if cfg.Engine.PollInterval != "60s" {
		t.Errorf("poll_interval = %q, want %q", cfg.Engine.PollInterval, "60s")
	}
	if len(cfg.Digest.Channels) != 1 || cfg.Digest.Channels[0] != "-100200" {
		t.Errorf("digest channels = %v", cfg.Digest.Channels)
	}
	if cfg.Store == nil || cfg.Store.Driver != "sqlite" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if got := m.Get(); got != cfg {
		t.Errorf("Get() did not return committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  pol_timeout: "10s"
logging:
  level: info
`)

	m := NewManager(path)
	if _, err := m.Parse(); err == nil {
		t.Fatalf("Parse() accepted unknown field")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json",
		`{"telegram":{"token":"t"},"logging":{"level":"info","console":true}}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Logging.Console {
		t.Errorf("console = false, want true")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing token",
			cfg:     Config{},
			wantErr: "telegram.token",
		},
		{
			name: "bad poll interval",
			cfg: Config{
				Telegram: TelegramConfig{Token: "t"},
				Engine:   EngineConfig{PollInterval: "sixty"},
			},
			wantErr: "engine.poll_interval",
		},
		{
			name: "unknown store driver",
			cfg: Config{
				Telegram: TelegramConfig{Token: "t"},
				Store:    &StoreConfig{Driver: "postgres"},
			},
			wantErr: "store.driver",
		},
		{
			name: "digest without channels",
			cfg: Config{
				Telegram: TelegramConfig{Token: "t"},
				Digest:   DigestConfig{Enabled: true},
			},
			wantErr: "digest.channels",
		},
		{
			name: "minimal ok",
			cfg: Config{
				Telegram: TelegramConfig{Token: "t"},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				if tt.cfg.Logging.Level != "info" {
					t.Errorf("default level = %q, want %q", tt.cfg.Logging.Level, "info")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Logging:  LoggingConfig{Level: "info"},
	}
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Logging:  LoggingConfig{Level: "debug"},
		Engine:   EngineConfig{PollInterval: "30s"},
	}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := []string{"logging", "engine"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
}

package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func TestFromViper_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := FromViper(viper.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Type != StoreFile {
		t.Errorf("store type = %q, want %q", cfg.Store.Type, StoreFile)
	}
	if filepath.Base(cfg.Store.Path) != "session.json" {
		t.Errorf("store path = %q, want session.json", cfg.Store.Path)
	}
	if cfg.Session.Buffer != 5*time.Minute {
		t.Errorf("buffer = %s, want 5m", cfg.Session.Buffer)
	}
	if cfg.Session.MonitorInterval != time.Minute {
		t.Errorf("monitor interval = %s, want 1m", cfg.Session.MonitorInterval)
	}
	if cfg.Check.Debounce != 300*time.Millisecond {
		t.Errorf("debounce = %s, want 300ms", cfg.Check.Debounce)
	}
	if err := cfg.RequireAddr(); err == nil {
		t.Error("expected missing address to be reported")
	}
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set(AddrKey, "https://tasks.example.com/api")
	v.Set(StoreTypeKey, "sqlite")
	v.Set(StorePathKey, "/tmp/taskdeck.db")
	v.Set(SessionBufferKey, "30s")
	v.Set(SessionMonitorIntervalKey, "10s")
	v.Set(HTTPTimeoutKey, "15s")
	v.Set(CheckDebounceKey, "1s")
	v.Set(CheckRateKey, 2)
	v.Set(LogLevelKey, "debug")
	v.Set(LogFormatKey, "json")
	v.Set(LogNoColorKey, true)

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &Client{
		Addr:    "https://tasks.example.com/api",
		Store:   StoreConfig{Type: StoreSQLite, Path: "/tmp/taskdeck.db"},
		Session: SessionConfig{Buffer: 30 * time.Second, MonitorInterval: 10 * time.Second},
		HTTP:    HTTPConfig{Timeout: 15 * time.Second},
		Check:   CheckConfig{Debounce: time.Second, Rate: 2},
		Log:     LogConfig{Level: "debug", Format: "json", NoColor: true},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.RequireAddr(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{"unknown store", StoreTypeKey, "redis", "unknown store type"},
		{"negative buffer", SessionBufferKey, "-1s", SessionBufferKey},
		{"zero interval", SessionMonitorIntervalKey, "0s", SessionMonitorIntervalKey},
		{"negative rate", CheckRateKey, -1, CheckRateKey},
		{"bad scheme", AddrKey, "ftp://example.com", "http or https"},
		{"no host", AddrKey, "https://", "no host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(StorePathKey, "/tmp/session.json")
			v.Set(tt.key, tt.value)

			_, err := FromViper(v)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestClient_YAML(t *testing.T) {
	cfg := &Client{
		Addr:  "http://localhost:8080",
		Store: StoreConfig{Type: StoreFile, Path: "/tmp/session.json"},
	}
	data, err := cfg.YAML()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got Client
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Addr != cfg.Addr || got.Store != cfg.Store {
		t.Errorf("got %+v, want %+v", got, cfg)
	}
}

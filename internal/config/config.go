package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/darmiel/taskdeck/internal/bundle"
	"github.com/darmiel/taskdeck/internal/monitor"
	"github.com/darmiel/taskdeck/internal/uniqueness"
)

const (
	AddrKey = "addr"

	StoreTypeKey = "store.type"
	StorePathKey = "store.path"

	SessionBufferKey          = "session.buffer"
	SessionMonitorIntervalKey = "session.monitor_interval"

	HTTPTimeoutKey = "http.timeout"

	CheckDebounceKey = "check.debounce"
	CheckRateKey     = "check.rate"

	LogLevelKey   = "log.level"
	LogFormatKey  = "log.format"
	LogNoColorKey = "log.no_color"
)

type StoreType string

const (
	StoreFile   StoreType = "file"
	StoreSQLite StoreType = "sqlite"
)

type Client struct {
	// Addr is the base URL of the backend, e.g. https://tasks.example.com/api.
	Addr string `yaml:"addr"`

	Store   StoreConfig   `yaml:"store"`
	Session SessionConfig `yaml:"session"`
	HTTP    HTTPConfig    `yaml:"http"`
	Check   CheckConfig   `yaml:"check"`
	Log     LogConfig     `yaml:"log"`
}

type StoreConfig struct {
	Type StoreType `yaml:"type"`

	// Path of the credential record. Defaults depend on Type.
	Path string `yaml:"path,omitempty"`
}

type SessionConfig struct {
	// Buffer is subtracted from the expiry before a bundle counts as usable.
	Buffer time.Duration `yaml:"buffer"`

	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

type HTTPConfig struct {
	// Timeout of a single request, 0 leaves it to the transport.
	Timeout time.Duration `yaml:"timeout"`
}

type CheckConfig struct {
	Debounce time.Duration `yaml:"debounce"`

	// Rate is the maximum number of availability checks per second.
	Rate float64 `yaml:"rate"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	NoColor bool   `yaml:"no_color"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(StoreTypeKey, string(StoreFile))
	v.SetDefault(SessionBufferKey, bundle.DefaultBuffer)
	v.SetDefault(SessionMonitorIntervalKey, monitor.DefaultInterval)
	v.SetDefault(HTTPTimeoutKey, time.Duration(0))
	v.SetDefault(CheckDebounceKey, uniqueness.DefaultDebounce)
	v.SetDefault(CheckRateKey, float64(uniqueness.DefaultRate))
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(LogFormatKey, "console")
}

// FromViper resolves the client configuration. Missing keys fall back to
// their defaults, the store path is resolved against the home directory.
func FromViper(v *viper.Viper) (*Client, error) {
	SetDefaults(v)

	cfg := &Client{
		Addr: v.GetString(AddrKey),
		Store: StoreConfig{
			Type: StoreType(v.GetString(StoreTypeKey)),
			Path: v.GetString(StorePathKey),
		},
		Session: SessionConfig{
			Buffer:          v.GetDuration(SessionBufferKey),
			MonitorInterval: v.GetDuration(SessionMonitorIntervalKey),
		},
		HTTP: HTTPConfig{
			Timeout: v.GetDuration(HTTPTimeoutKey),
		},
		Check: CheckConfig{
			Debounce: v.GetDuration(CheckDebounceKey),
			Rate:     v.GetFloat64(CheckRateKey),
		},
		Log: LogConfig{
			Level:   v.GetString(LogLevelKey),
			Format:  v.GetString(LogFormatKey),
			NoColor: v.GetBool(LogNoColorKey),
		},
	}

	if cfg.Store.Path == "" {
		path, err := defaultStorePath(cfg.Store.Type)
		if err != nil {
			return nil, err
		}
		cfg.Store.Path = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultStorePath(t StoreType) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	switch t {
	case StoreSQLite:
		return filepath.Join(home, ".taskdeck", "session.db"), nil
	default:
		return filepath.Join(home, ".taskdeck", "session.json"), nil
	}
}

// Validate checks the values that do not depend on the command being run.
// Addr is checked by RequireAddr since local commands do not need it.
func (c *Client) Validate() error {
	switch c.Store.Type {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("%s: unknown store type %q (expected %q or %q)",
			StoreTypeKey, c.Store.Type, StoreFile, StoreSQLite)
	}
	if c.Session.Buffer < 0 {
		return fmt.Errorf("%s: must not be negative", SessionBufferKey)
	}
	if c.Session.MonitorInterval <= 0 {
		return fmt.Errorf("%s: must be positive", SessionMonitorIntervalKey)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("%s: must not be negative", HTTPTimeoutKey)
	}
	if c.Check.Debounce < 0 {
		return fmt.Errorf("%s: must not be negative", CheckDebounceKey)
	}
	if c.Check.Rate < 0 {
		return fmt.Errorf("%s: must not be negative", CheckRateKey)
	}
	if c.Addr != "" {
		if _, err := parseAddr(c.Addr); err != nil {
			return fmt.Errorf("%s: %w", AddrKey, err)
		}
	}
	return nil
}

// RequireAddr returns an error if no usable server address is configured.
func (c *Client) RequireAddr() error {
	if c.Addr == "" {
		return fmt.Errorf("server address not configured, provide via --server or TASKDECK_ADDR")
	}
	_, err := parseAddr(c.Addr)
	return err
}

func parseAddr(addr string) (*url.URL, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q must use http or https", addr)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server URL %q has no host", addr)
	}
	return u, nil
}

// YAML renders the resolved configuration.
func (c *Client) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

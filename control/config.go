// control/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML-backed server configuration and a thread-safe store that keeps the
// live snapshot and notifies reload listeners.

package control

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/momentics/hioload-h3/api"
)

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LimitsConfig bounds the memory a single frame body may claim.
type LimitsConfig struct {
	MaxDataBody     uint64   `toml:"max_data_body"`
	MaxHeadersBody  uint64   `toml:"max_headers_body"`
	EmptyFrameTypes []uint64 `toml:"empty_frame_types"`
}

// Config holds the server parameters.
type Config struct {
	Listen        string       `toml:"listen"`
	Workers       int          `toml:"workers"`
	QueueSize     int          `toml:"queue_size"`
	SelectBatch   int          `toml:"select_batch"`
	SelectorCPU   int          `toml:"selector_cpu"`
	ReceiveBuffer int          `toml:"receive_buffer"`
	IdleTimeout   Duration     `toml:"idle_timeout"`
	MetricsAddr   string       `toml:"metrics_addr"`
	LogLevel      string       `toml:"log_level"`
	Limits        LimitsConfig `toml:"limits"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:        "127.0.0.1:4433",
		Workers:       0,
		QueueSize:     4096,
		SelectBatch:   128,
		SelectorCPU:   -1,
		ReceiveBuffer: 64 * 1024,
		IdleTimeout:   Duration{30 * time.Second},
		MetricsAddr:   "",
		LogLevel:      "info",
		Limits: LimitsConfig{
			MaxDataBody:    1 << 20,
			MaxHeadersBody: 64 * 1024,
		},
	}
}

// LoadConfig decodes path over the defaults and validates the result.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, api.NewError(api.ErrCodeInvalidArgument, "config has unknown keys").
			WithContext("path", path).
			WithContext("keys", strings.Join(keys, ","))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	invalid := func(field, msg string) error {
		return api.NewError(api.ErrCodeInvalidArgument, msg).WithContext("field", field)
	}
	if strings.TrimSpace(c.Listen) == "" {
		return invalid("listen", "listen address is required")
	}
	if c.Workers < 0 {
		return invalid("workers", "workers must not be negative")
	}
	if c.QueueSize <= 0 {
		return invalid("queue_size", "queue_size must be positive")
	}
	if c.SelectBatch <= 0 {
		return invalid("select_batch", "select_batch must be positive")
	}
	if c.SelectorCPU < -1 {
		return invalid("selector_cpu", "selector_cpu must be -1 or a cpu index")
	}
	if c.ReceiveBuffer < 1280 {
		return invalid("receive_buffer", "receive_buffer must hold at least 1280 bytes")
	}
	if c.IdleTimeout.Duration < 0 {
		return invalid("idle_timeout", "idle_timeout must not be negative")
	}
	if c.Limits.MaxDataBody == 0 || c.Limits.MaxHeadersBody == 0 {
		return invalid("limits", "frame body limits must be positive")
	}
	return nil
}

// ConfigStore keeps the live Config snapshot with listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store holding cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// Snapshot returns the current configuration.
func (cs *ConfigStore) Snapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// Update validates and installs cfg, then notifies listeners synchronously.
func (cs *ConfigStore) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnReload registers a listener called after every Update.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

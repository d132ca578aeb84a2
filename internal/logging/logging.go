// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide zerolog configuration with runtime and test profiles.
// Components obtain scoped loggers through For.

package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "H3_LOG_LEVEL"
	EnvLogTimestamp = "H3_LOG_TIMESTAMP"
	EnvLogNoColor   = "H3_LOG_NOCOLOR"
)

// Profile selects the default logger shape.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger configuration.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Out       io.Writer
}

var (
	mu        sync.RWMutex
	root      = zerolog.New(os.Stderr).Level(zerolog.InfoLevel)
	configure sync.Once
)

// ConfigureRuntime installs the runtime profile once per process.
func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

// ConfigureTests installs the test profile once per process.
func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the given profile with environment overrides applied.
// Only the first call has an effect.
func Configure(profile Profile) {
	configure.Do(func() {
		cfg := DefaultConfig(profile)
		applyEnvOverrides(&cfg)
		Install(cfg)
	})
}

// DefaultConfig returns the defaults for a profile.
func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false, Out: os.Stderr}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true, Out: os.Stderr}
	}
}

// Install replaces the root logger unconditionally.
func Install(cfg Config) {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	w := zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: time.RFC3339}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	mu.Lock()
	root = ctx.Logger()
	mu.Unlock()
}

// SetLevel adjusts the root logger level, e.g. after a config reload.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	root = root.Level(level)
	mu.Unlock()
}

// For returns a logger tagged with the component name.
func For(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", component).Logger()
}

// ParseLevel maps a textual level; ok is false for empty or unknown input.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

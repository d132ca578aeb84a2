package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/momentics/hioload-h3/api"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h3dgram.toml")
	data := []byte("listen = \"127.0.0.1:5000\"\nworkers = 3\nlog_level = \"debug\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(serveOptions{configPath: path, listen: "127.0.0.1:6000", workers: -1})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "127.0.0.1:6000" || cfg.Workers != 3 || cfg.LogLevel != "debug" {
		t.Fatalf("config %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	_, err := loadConfig(serveOptions{workers: -1, listen: " "})
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

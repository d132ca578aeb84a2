// File: cmd/h3dgram/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/hioload-h3/control"
	"github.com/momentics/hioload-h3/internal/logging"
	"github.com/momentics/hioload-h3/protocol"
	"github.com/momentics/hioload-h3/server"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	configPath  string
	listen      string
	metricsAddr string
	logLevel    string
	workers     int
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo server",
		Long: `Bind the configured UDP address and echo DATA and HEADERS frames.

SIGHUP reloads the configuration file; frame limits, idle timeout and
log level take effect for new sessions.

Examples:
  h3dgram serve
  h3dgram serve --config h3dgram.toml
  h3dgram serve --listen [::]:4433 --metrics 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "UDP listen address (overrides config)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics", "", "Admin HTTP address for /metrics and /debug/state")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", -1, "Blocking worker goroutines, 0 for one per CPU")

	return cmd
}

func loadConfig(opts serveOptions) (control.Config, error) {
	cfg := control.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := control.LoadConfig(opts.configPath)
		if err != nil {
			return control.Config{}, err
		}
		cfg = loaded
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.workers >= 0 {
		cfg.Workers = opts.workers
	}
	return cfg, cfg.Validate()
}

func applyLogLevel(raw string) {
	if level, ok := logging.ParseLevel(raw); ok {
		logging.SetLevel(level)
	}
}

func runServe(ctx context.Context, opts serveOptions) error {
	logging.ConfigureRuntime()
	log := logging.For("h3dgram")

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	applyLogLevel(cfg.LogLevel)

	srv, err := server.NewServer(cfg, server.NewEchoHandler(
		protocol.Setting{ID: protocol.SettingQPACKMaxTableCapacity, Value: 0},
		protocol.Setting{ID: protocol.SettingQPACKBlockedStreams, Value: 0},
	))
	if err != nil {
		return err
	}

	store := control.NewConfigStore(cfg)
	store.OnReload(srv.Reload)
	store.OnReload(func(c control.Config) { applyLogLevel(c.LogLevel) })

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				next, err := loadConfig(opts)
				if err != nil {
					log.Warn().Err(err).Msg("reload rejected")
					continue
				}
				if err := store.Update(next); err != nil {
					log.Warn().Err(err).Msg("reload rejected")
					continue
				}
				log.Info().Str("config", opts.configPath).Msg("configuration reloaded")
			}
		}
	}()

	return srv.Run(ctx)
}

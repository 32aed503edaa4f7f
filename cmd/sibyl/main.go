// Command sibyl runs the voice assistant server: the satellite TCP
// listener, the chat HTTP API and the admin surface, all wired from one
// YAML configuration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxhollow/sibyl/internal/app"
	"github.com/voxhollow/sibyl/internal/config"
)

func main() {
	configPath := flag.String("config", "sibyl.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "sibyl:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, level := app.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	providers, err := app.BuildProviders(app.DefaultRegistry(), cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithConfigPath(configPath),
	)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(flushCtx); err != nil {
			slog.Warn("telemetry flush incomplete", "err", err)
		}
	}()

	return a.Run(ctx)
}

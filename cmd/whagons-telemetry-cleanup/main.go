// Command whagons-telemetry-cleanup evicts stale rows from a telemetry
// queue database.
//
// The queue evicts stale records itself while the application runs; this
// command covers databases left behind by sessions that never came back,
// for use from cron or a systemd timer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Whagons-International/whagons5-telemetry/sqlite"
)

const exitUsage = 2

type config struct {
	Database   string        `yaml:"database"`
	Retention  time.Duration `yaml:"retention"`
	CheckEvery time.Duration `yaml:"check_every"`
}

func loadConfig(path string) (config, error) {
	cfg := config{
		Retention:  24 * time.Hour,
		CheckEvery: time.Hour,
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

func main() {
	var (
		configPath string
		database   string
		retention  time.Duration
		checkEvery time.Duration
		once       bool
		verbose    bool
	)

	pflag.StringVar(&configPath, "config", "", "Optional YAML config file")
	pflag.StringVar(&database, "db", "", "Path to the telemetry queue database")
	pflag.DurationVar(&retention, "retention", 0, "Delete rows older than this duration")
	pflag.DurationVar(&checkEvery, "check-every", 0, "How often to run cleanup")
	pflag.BoolVar(&once, "once", false, "Run once and exit")
	pflag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	pflag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
	// Flags override the config file.
	if database != "" {
		cfg.Database = database
	}
	if retention > 0 {
		cfg.Retention = retention
	}
	if checkEvery > 0 {
		cfg.CheckEvery = checkEvery
	}

	if cfg.Database == "" {
		fmt.Fprintln(os.Stderr, "db is required")
		pflag.Usage()
		os.Exit(exitUsage)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, once, logger); err != nil {
		logger.Error("cleanup failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config, once bool, logger *slog.Logger) error {
	store, err := sqlite.NewStore(cfg.Database, sqlite.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Init(ctx); err != nil {
		return err
	}

	sweep := func() error {
		deleted, err := store.DeleteStale(ctx, cfg.Retention)
		if err != nil {
			return err
		}
		if deleted > 0 {
			logger.Info("stale rows deleted", "count", deleted, "retention", cfg.Retention)
		} else {
			logger.Debug("nothing to delete", "retention", cfg.Retention)
		}

		return nil
	}

	if once {
		return sweep()
	}

	if err := sweep(); err != nil {
		return err
	}
	ticker := time.NewTicker(cfg.CheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}

			return ctx.Err()
		case <-ticker.C:
			if err := sweep(); err != nil {
				logger.Warn("sweep failed", "err", err)
			}
		}
	}
}

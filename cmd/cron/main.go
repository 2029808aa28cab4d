package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pullview/internal/config"
	"pullview/internal/scheduler"
	"pullview/internal/source"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "trigger a single round and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if cfg.Auth.CronToken == "" {
		logger.Error("auth.cron_token is required for the cron caller")
		os.Exit(1)
	}

	trigger := scheduler.NewBatchTrigger(scheduler.TriggerConfig{
		BaseURL:   cfg.Cron.BaseURL,
		Token:     cfg.Auth.CronToken,
		Platforms: cfg.Cron.Platforms,
		Limit:     cfg.Cron.Limit,
		Pages:     cfg.Cron.Pages,
	}, source.NewHTTPClient(cfg.Cron.Timeout), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		runCtx, runCancel := context.WithTimeout(ctx, cfg.Cron.Timeout)
		defer runCancel()
		if err := trigger.Run(runCtx); err != nil {
			logger.Error("cron run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting cron caller",
		"base_url", cfg.Cron.BaseURL,
		"platforms", cfg.Cron.Platforms,
		"interval", cfg.Cron.Interval,
	)

	sched := scheduler.NewScheduler(trigger, cfg.Cron.Interval, cfg.Cron.Timeout, logger)
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

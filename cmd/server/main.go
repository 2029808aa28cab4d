package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"pullview/internal/config"
	"pullview/internal/httpapi"
	"pullview/internal/publisher"
	"pullview/internal/ratelimit"
	"pullview/internal/service"
	"pullview/internal/source"
	"pullview/internal/source/reddit"
	"pullview/internal/source/youtube"
	"pullview/internal/storage/postgres"
	"pullview/migrations"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := migrations.Run(db.DB); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	var events service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	limiter, closeLimiter, err := setupLimiter(cfg)
	if err != nil {
		logger.Error("failed to set up rate limiter", "error", err)
		os.Exit(1)
	}
	defer closeLimiter()

	sourceStore := postgres.NewSourceStore(db)
	recordStore := postgres.NewRecordStore(db)
	reportStore := postgres.NewReportStore(db)
	throttleStore := postgres.NewThrottleStore(db)
	statsStore := postgres.NewStatsStore(db)
	txManager := postgres.NewTransactionManager(db)

	platforms := []service.Platform{
		youtube.New(youtube.Config{
			APIKey:    cfg.YouTube.APIKey,
			BaseURL:   cfg.YouTube.BaseURL,
			UserAgent: cfg.YouTube.UserAgent,
			Timeout:   cfg.YouTube.Timeout,
		}, source.NewHTTPClient(cfg.YouTube.Timeout), logger),
		reddit.New(reddit.Config{
			BaseURL:   cfg.Reddit.BaseURL,
			UserAgent: cfg.Reddit.UserAgent,
			Timeout:   cfg.Reddit.Timeout,
		}, source.NewHTTPClient(cfg.Reddit.Timeout), logger),
	}

	ingestService := service.NewIngestService(
		platforms,
		sourceStore,
		recordStore,
		throttleStore,
		events,
		logger,
		cfg.Ingest,
	)
	importer := service.NewRecordImporter(recordStore, txManager, logger)

	api := httpapi.New(httpapi.Deps{
		Records:  recordStore,
		Sources:  sourceStore,
		Reports:  reportStore,
		Stats:    statsStore,
		Ingester: ingestService,
		Importer: importer,
		Limiter:  limiter,
		DB:       db,
	}, cfg, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server",
			"addr", cfg.Server.Addr,
			"environment", cfg.Server.Environment,
			"rate_limit_backend", cfg.RateLimit.Backend,
			"events", events != nil,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

// setupLimiter builds the rate limiter for the configured backend. The returned
// func releases backend resources.
func setupLimiter(cfg *config.Config) (*ratelimit.Limiter, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		return ratelimit.New(ratelimit.NewMemoryStore()), func() {}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	return ratelimit.New(ratelimit.NewRedisStore(rdb, cfg.Redis.KeyPrefix)), func() { _ = rdb.Close() }, nil
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

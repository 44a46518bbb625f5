// Package bootstrap wires configuration, storage, detection and the ops API
// into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vigil/api"
	"vigil/config"
	"vigil/core"
	"vigil/detect"
	"vigil/notify"
	"vigil/pipeline"
	"vigil/service"
	"vigil/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App holds every long-lived component. Shutdown order is the reverse of
// construction: ingestion stops first so downstream components drain cleanly.
type App struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	redisClient *redis.Client
	alertStore  storage.AlertStore
	snapshots   *core.SnapshotStore
	loader      *detect.RuleLoader
	publisher   *notify.WebhookPublisher
	pipeline    *pipeline.Pipeline
	httpServer  *http.Server
}

// NewApp loads configuration and constructs all components without starting
// any of them.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg, logger: logger}
	if err := app.build(ctx); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	var zcfg zap.Config
	if cfg.Logging.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	// Alert persistence.
	store, err := storage.NewSQLiteAlertStore(cfg.Storage.SQLitePath, a.logger)
	if err != nil {
		return err
	}
	a.alertStore = store

	// Rule snapshot + loader.
	a.snapshots = core.NewSnapshotStore()
	a.loader = detect.NewRuleLoader(cfg.Engine.RulesDir, a.snapshots, a.logger)
	if _, err := a.loader.Load(); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	evaluator, err := detect.NewRuleEvaluator(a.logger)
	if err != nil {
		return err
	}

	// Streaming aggregation runs only with a Redis backend; without one,
	// rules carrying streaming conditions simply never fire.
	var streaming *detect.AggregationEvaluator
	if cfg.Redis.Enabled {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		streaming = detect.NewAggregationEvaluator(
			detect.NewRedisAggregationStore(a.redisClient), evaluator.Resolver(), a.logger)
	} else {
		a.logger.Warnw("Redis disabled, streaming aggregation conditions will not fire")
	}

	// Publication.
	var publisher notify.Publisher
	if cfg.Notify.Enabled {
		a.publisher = notify.NewWebhookPublisher(notify.WebhookConfig{
			URL:           cfg.Notify.WebhookURL,
			Method:        cfg.Notify.Method,
			Headers:       cfg.Notify.Headers,
			Timeout:       cfg.Notify.Timeout,
			QueueSize:     cfg.Notify.QueueSize,
			RatePerSecond: cfg.Notify.RatePerSecond,
		}, a.logger)
		publisher = a.publisher
	}

	processor, err := pipeline.NewProcessor(a.snapshots, evaluator, streaming, a.alertStore, publisher, a.logger)
	if err != nil {
		return err
	}
	a.pipeline = pipeline.New(pipeline.Config{
		Workers:       cfg.Engine.Workers,
		BatchSize:     cfg.Engine.BatchSize,
		FlushInterval: cfg.Engine.FlushInterval,
		QueueCapacity: cfg.Engine.QueueCapacity,
	}, processor, a.logger)

	// Ops API.
	lifecycle := service.NewLifecycle(a.alertStore, a.logger)
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:           api.NewServer(lifecycle, a.logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}

// Pipeline exposes the ingestion entry point for embedding callers.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Start launches the pipeline workers and the HTTP listener.
func (a *App) Start(ctx context.Context) error {
	a.pipeline.Start(ctx)

	go func() {
		a.logger.Infow("Ops API listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Errorw("Ops API failed", "error", err)
		}
	}()
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM.
func (a *App) WaitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	a.logger.Infow("Shutdown signal received", "signal", s.String())
}

// Shutdown stops components in reverse construction order, draining queued
// work before releasing the stores.
func (a *App) Shutdown() {
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warnw("Ops API shutdown error", "error", err)
		}
		cancel()
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnw("Redis close error", "error", err)
		}
	}
	if a.alertStore != nil {
		if err := a.alertStore.Close(); err != nil {
			a.logger.Warnw("Alert store close error", "error", err)
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopdw/api/routes"
	"github.com/angelmondragon/shopdw/internal/pipeline"
	"github.com/angelmondragon/shopdw/internal/runlog"
	"github.com/angelmondragon/shopdw/pkg/config"
	"github.com/angelmondragon/shopdw/pkg/db"
	"github.com/angelmondragon/shopdw/pkg/instance"
	"github.com/angelmondragon/shopdw/pkg/logger"
	"github.com/angelmondragon/shopdw/pkg/metrics"
	"github.com/angelmondragon/shopdw/pkg/redis"
)

const serviceName = "dwload"

func main() {
	os.Exit(run())
}

func run() int {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	interval := flag.Duration("interval", 0, "run the load on this cadence instead of once (overrides "+config.EnvLoadInterval+")")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return 1
	}
	if *interval > 0 {
		cfg.Warehouse.Interval = *interval
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.ResolvedLogFormat(),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":            cfg.App.Env,
		"staging_schema": cfg.Warehouse.StagingSchema,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		return 1
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()
	ctx = logg.WithField(ctx, "dialect", dbClient.Dialect())

	var lock pipeline.Lock = pipeline.NoopLock{}
	if cfg.Warehouse.LockEnabled {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			return 1
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = pipeline.NewRedisLock(redisClient, redisClient.LockKey("load"), cfg.Warehouse.LockTTL)
		if err != nil {
			logg.Error(ctx, "failed to create load lock", err)
			return 1
		}
	}

	stageMetrics := metrics.NewStageMetrics(prometheus.DefaultRegisterer)
	runs := runlog.NewRepository(dbClient.DB())

	registry, err := pipeline.NewStages(pipeline.StageParams{
		Logger:    logg,
		DB:        dbClient.DB(),
		Tx:        dbClient,
		Warehouse: cfg.Warehouse,
	})
	if err != nil {
		logg.Error(ctx, "failed to build load stages", err)
		return 1
	}
	orchestrator, err := pipeline.NewOrchestrator(pipeline.OrchestratorParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  stageMetrics,
		RunLog:   runs,
	})
	if err != nil {
		logg.Error(ctx, "failed to create orchestrator", err)
		return 1
	}

	if cfg.Metrics.Address != "" {
		server := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           routes.NewRouter(cfg, logg, dbClient, runs, prometheus.DefaultGatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logg.Info(logg.WithField(ctx, "addr", cfg.Metrics.Address), "serving metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped unexpectedly", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Warehouse.Interval <= 0 {
		if _, err := orchestrator.Run(ctx); err != nil {
			logg.Error(ctx, "load failed", err)
			return 1
		}
		return 0
	}

	service, err := pipeline.NewService(pipeline.ServiceParams{
		Logger:   logg,
		Runner:   orchestrator,
		Interval: cfg.Warehouse.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create load service", err)
		return 1
	}
	logg.Info(logg.WithField(ctx, "interval", cfg.Warehouse.Interval.String()), "starting load service")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "load service stopped unexpectedly", err)
		return 1
	}
	logg.Info(ctx, "load service shutting down gracefully")
	return 0
}

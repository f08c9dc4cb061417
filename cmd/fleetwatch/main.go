package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/fleetwatch/fleetwatch/internal/bus"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/devicecache"
	"github.com/fleetwatch/fleetwatch/internal/handlers"
	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/notifier"
	"github.com/fleetwatch/fleetwatch/internal/ratelimit"
	"github.com/fleetwatch/fleetwatch/internal/repository"
	"github.com/fleetwatch/fleetwatch/internal/retention"
	"github.com/fleetwatch/fleetwatch/internal/server"
	"github.com/fleetwatch/fleetwatch/internal/service"
	"github.com/fleetwatch/fleetwatch/internal/stages"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("fleetwatch"))
	logging.SetDefault(logger)

	slog.Info("Starting FleetWatch",
		slog.Int("port", cfg.Server.Port),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Repositories
	var (
		alertRepo     repository.AlertRepository
		telemetryRepo repository.TelemetryRepository
	)
	switch cfg.Database.Driver {
	case "memory":
		alertRepo = repository.NewMemoryAlertRepository()
		telemetryRepo = repository.NewMemoryTelemetryRepository()
		slog.Warn("Using in-memory storage; data is lost on restart")
	case "postgres", "":
		connString := cfg.Database.Postgres.ConnString()

		slog.Info("Running database migrations")
		m, err := migrate.New("file://migrations", connString)
		if err != nil {
			log.Fatalf("Failed to initialize migrations: %v", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		pool, err := repository.NewPool(context.Background(), connString)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer pool.Close()

		alertRepo = repository.NewPostgresAlertRepository(pool)
		telemetryRepo = repository.NewPostgresTelemetryRepository(pool)
	default:
		log.Fatalf("Unknown database driver: %s (supported: postgres, memory)", cfg.Database.Driver)
	}

	// Position cache
	var cache *devicecache.Cache
	if cfg.Redis.Enabled {
		cache, err = devicecache.New(cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			slog.Warn("Position cache unavailable, continuing without it", logging.Err(err))
			cache = nil
		} else {
			defer cache.Close()
			slog.Info("Position cache enabled", slog.String("url", cfg.Redis.URL))
		}
	}

	// Alert notifications
	var alertNotifier notifier.Notifier = notifier.NoOpNotifier{}
	if cfg.NATS.Enabled {
		natsCfg := notifier.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		n, err := notifier.NewNATSNotifier(natsCfg)
		if err != nil {
			slog.Warn("Alert notifications unavailable, continuing without them", logging.Err(err))
		} else {
			alertNotifier = n
			defer n.Close()
			slog.Info("Alert notifications enabled", slog.String("url", cfg.NATS.URL))
		}
	}

	// Admission control
	limiter := ratelimit.New(ratelimit.Config{
		Device: ratelimit.Limit{Capacity: cfg.RateLimit.DeviceCapacity, RefillPerSecond: cfg.RateLimit.DeviceRefillRate},
		Origin: ratelimit.Limit{Capacity: cfg.RateLimit.OriginCapacity, RefillPerSecond: cfg.RateLimit.OriginRefillRate},
		Global: ratelimit.Limit{Capacity: cfg.RateLimit.GlobalCapacity, RefillPerSecond: cfg.RateLimit.GlobalRefillRate},

		MaxTrackedKeys: cfg.RateLimit.MaxTrackedKeys,
		KeyTTL:         cfg.RateLimit.KeyTTL,
		SweepInterval:  cfg.RateLimit.SweepInterval,
	})
	defer limiter.Close()

	// Analysis pipeline
	zones, err := stages.LoadZones(cfg.Geofence.ZonesFile)
	if err != nil {
		log.Fatalf("Failed to load geofence zones: %v", err)
	}
	slog.Info("Geofence zones loaded", slog.Int("count", len(zones)))

	alertService := service.NewAlertService(alertRepo, alertNotifier, logger, service.AlertServiceConfig{
		DefaultPageSize: cfg.API.DefaultPageSize,
		MaxPageSize:     cfg.API.MaxPageSize,
		CreateAttempts:  3,
	})

	pool := bus.NewWorkerPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueCapacity)
	eventBus := bus.NewEventBus(pool, logger)
	eventBus.Register(
		stages.NewAnomalyDetector(alertService, logger),
		stages.NewGeofenceAlerter(zones, alertService, logger),
		stages.NewAggregator(cacheOrNil(cache), logger),
	)

	ingestService := service.NewIngestService(limiter, telemetryRepo, eventBus, logger)

	// Retention
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	defer janitorCancel()
	janitor := retention.NewJanitor(alertService, cfg.Retention.Window, cfg.Retention.Interval, logger)
	go janitor.Run(janitorCtx)

	// HTTP server
	telemetryHandler := handlers.NewTelemetryHandler(ingestService, telemetryRepo, latestOrNil(cache), logger)
	alertsHandler := handlers.NewAlertsHandler(alertService, logger)
	router := server.NewRouter(telemetryHandler, alertsHandler, cfg.API.Keys)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("FleetWatch listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown: stop accepting requests, then drain queued
	// analysis work up to the grace period.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Err(err))
	}

	janitorCancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownGrace)
	defer drainCancel()
	if err := pool.Drain(drainCtx); err != nil {
		slog.Error("Analysis pipeline did not drain cleanly", logging.Err(err))
	}

	slog.Info("Stopped")
}

// cacheOrNil avoids a non-nil interface wrapping a nil *Cache.
func cacheOrNil(c *devicecache.Cache) stages.PositionCache {
	if c == nil {
		return nil
	}
	return c
}

func latestOrNil(c *devicecache.Cache) handlers.LatestCache {
	if c == nil {
		return nil
	}
	return c
}

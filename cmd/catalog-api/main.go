package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-crawler/internal/api"
	"github.com/maltedev/catalog-crawler/internal/config"
	"github.com/maltedev/catalog-crawler/internal/database"
	"github.com/maltedev/catalog-crawler/internal/logger"
	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/repair"
	"github.com/maltedev/catalog-crawler/internal/worklist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var tracker worklist.Tracker
	if _, err := os.Stat(cfg.Crawl.WorklistPath); err == nil {
		tracker, err = worklist.Open(cfg.Crawl.WorklistPath)
		if err != nil {
			log.Error("Failed to open worklist", "path", cfg.Crawl.WorklistPath, "error", err)
			os.Exit(1)
		}
		defer tracker.Close()
	} else {
		log.Warn("Worklist not found, /api/v1/worklist disabled", "path", cfg.Crawl.WorklistPath)
	}

	var stats api.OutboxStats
	if cfg.Database.Enabled {
		relay, cleanup, err := setupRelay(ctx, cfg, m, log)
		if err != nil {
			log.Error("Failed to set up outbox relay", "error", err)
			os.Exit(1)
		}
		defer cleanup()
		stats = relay
	}

	var worklistSource api.WorklistSource
	if tracker != nil {
		worklistSource = tracker
	}

	handlers, err := api.NewHandlers(repair.Config{
		MaxAttempts:         cfg.Repair.MaxAttempts,
		DiagnosticDir:       cfg.Repair.DiagnosticDir,
		UniqueDiagnostics:   true,
		LegacyBraceCounting: cfg.Repair.LegacyBraces,
	}, worklistSource, stats, m, log)
	if err != nil {
		log.Error("Failed to create handlers", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(handlers, api.RouterOptions{
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Metrics:        m,
		Gatherer:       reg,
		AccessLog:      cfg.Logging.Level == "debug",
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown error", "error", err)
		}
	}()

	log.Info("Starting API server", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server error", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped")
}

// setupRelay connects to Postgres and, when enabled, starts the outbox relay.
// The returned relay serves outbox statistics either way.
func setupRelay(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (*database.Relay, func(), error) {
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, log, database.RelayConfig{
		PollInterval: cfg.Redis.RelayInterval,
		BatchSize:    cfg.Redis.RelayBatch,
		OnPublish:    m.ObserveRelay,
	})

	if cfg.Redis.Enabled {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Relay stopped", "error", err)
			}
		}()
	}

	return relay, func() {
		redisClient.Close()
		db.Close()
	}, nil
}

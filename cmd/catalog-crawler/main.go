package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/catalog"
	"github.com/maltedev/catalog-crawler/internal/config"
	"github.com/maltedev/catalog-crawler/internal/database"
	"github.com/maltedev/catalog-crawler/internal/events"
	"github.com/maltedev/catalog-crawler/internal/extractor"
	"github.com/maltedev/catalog-crawler/internal/llm"
	"github.com/maltedev/catalog-crawler/internal/logger"
	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/pipeline"
	"github.com/maltedev/catalog-crawler/internal/prompt"
	"github.com/maltedev/catalog-crawler/internal/ratelimit"
	"github.com/maltedev/catalog-crawler/internal/repair"
	"github.com/maltedev/catalog-crawler/internal/worklist"
)

type runFlags struct {
	worklistPath string
	sitesPath    string
	outputPath   string
	skipDone     bool
	headless     bool
	metricsAddr  string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var (
		worklistPath = flag.String("worklist", cfg.Crawl.WorklistPath, "Worklist file (.xlsx or .json)")
		sitesPath    = flag.String("sites", cfg.Crawl.ConfigPath, "Site selector config")
		outputPath   = flag.String("output", cfg.Crawl.OutputPath, "Output CSV file or directory")
		variant      = flag.String("variant", cfg.Pipeline.PromptVariant, "Prompt variant: standard, structured, schema")
		delay        = flag.Duration("delay", cfg.Pipeline.Delay, "Delay between items")
		retries      = flag.Int("retries", cfg.Pipeline.ItemRetries, "Retries per failed item")
		skipDone     = flag.Bool("skip-done", cfg.Pipeline.SkipDone, "Skip items already marked as crawled")
		headless     = flag.Bool("headless", cfg.Browser.Headless, "Run browser in headless mode")
		metricsAddr  = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
		debug        = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg.Pipeline.PromptVariant = *variant
	cfg.Pipeline.Delay = *delay
	cfg.Pipeline.ItemRetries = *retries
	if *debug {
		cfg.Logging.Level = "debug"
	}

	log := logger.Init(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireLLM(); err != nil {
		log.Error("Model client not configured", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, log, runFlags{
		worklistPath: *worklistPath,
		sitesPath:    *sitesPath,
		outputPath:   *outputPath,
		skipDone:     *skipDone,
		headless:     *headless,
		metricsAddr:  *metricsAddr,
	})
	if err != nil {
		log.Error("Crawl failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, f runFlags) error {
	m := metrics.New(prometheus.DefaultRegisterer)
	if f.metricsAddr != "" {
		go serveMetrics(ctx, f.metricsAddr, log)
	}

	sites, err := extractor.LoadSites(f.sitesPath)
	if err != nil {
		return err
	}

	tracker, err := worklist.Open(f.worklistPath)
	if err != nil {
		return err
	}
	defer tracker.Close()

	opts := browser.DefaultOptions()
	opts.Headless = f.headless
	opts.NavigationTimeout = cfg.Browser.NavigationTimeout
	opts.SelectorTimeout = cfg.Browser.SelectorTimeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	if len(cfg.Browser.UserAgents) > 0 {
		opts.UserAgents = cfg.Browser.UserAgents
	}

	b, err := browser.New(opts)
	if err != nil {
		return err
	}
	defer b.Close()

	generator, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := repair.New(repair.Config{
		MaxAttempts:         cfg.Repair.MaxAttempts,
		DiagnosticDir:       cfg.Repair.DiagnosticDir,
		UniqueDiagnostics:   cfg.Repair.UniqueDiagnostics,
		LegacyBraceCounting: cfg.Repair.LegacyBraces,
		Logger:              log,
	})
	if err != nil {
		return err
	}

	variant, err := prompt.ParseVariant(cfg.Pipeline.PromptVariant)
	if err != nil {
		return err
	}

	csvWriter := catalog.NewCSVWriter(f.outputPath)
	sink := catalog.MultiSink{Primary: csvWriter}

	if cfg.Database.Enabled {
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
			return err
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}

		outbox := database.NewOutboxRepository(db)
		publisher := events.NewPublisher(outbox, log)
		sink.Mirrors = append(sink.Mirrors, database.NewCatalogStore(db, publisher, log))

		if cfg.Redis.Enabled {
			stopRelay, err := startRelay(ctx, cfg, outbox, m, log)
			if err != nil {
				return err
			}
			defer stopRelay()
		}
	}

	p, err := pipeline.New(pipeline.Deps{
		Tracker:   tracker,
		Extractor: extractor.New(b, sites),
		Generator: generator,
		Repairer:  engine,
		Sink:      sink,
		Prompts:   prompt.New(cfg.LLM.Language),
		Delay:     ratelimit.NewAdaptiveRateLimiter(cfg.Pipeline.Delay, cfg.Pipeline.Delay+cfg.Pipeline.DelayJitter),
		Metrics:   m,
		Logger:    log,
	}, pipeline.Options{
		Variant:     variant,
		SkipDone:    f.skipDone,
		ItemRetries: cfg.Pipeline.ItemRetries,
		Progress: func(processed, total int) {
			log.Info("Progress", "processed", processed, "total", total)
		},
	})
	if err != nil {
		return err
	}

	log.Info("Starting crawl",
		"worklist", f.worklistPath,
		"output", csvWriter.Path(),
		"variant", variant,
		"database", cfg.Database.Enabled)

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nProcessed %d items: %d added, %d duplicates, %d failed, %d skipped\n",
		summary.Total, summary.Succeeded, summary.Duplicates, summary.Failed, summary.Skipped)
	if summary.Stopped {
		fmt.Println("Crawl was interrupted; rerun with -skip-done to resume.")
	}

	return nil
}

func newGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, error) {
	gemCfg := llm.DefaultGeminiConfig()
	gemCfg.APIKey = cfg.LLM.APIKey
	gemCfg.Model = cfg.LLM.Model
	gemCfg.Timeout = cfg.LLM.Timeout
	if cfg.LLM.RequestsPerMinute > 0 {
		gemCfg.Limiter = ratelimit.NewPerMinute(cfg.LLM.RequestsPerMinute)
	}

	gemini, err := llm.NewGemini(ctx, gemCfg)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.MaxFailures <= 0 {
		return gemini, nil
	}
	return llm.Guarded(gemini, llm.NewGuard(cfg.LLM.MaxFailures, cfg.LLM.Cooldown)), nil
}

// startRelay runs the outbox relay until ctx is done. The returned function
// stops it and waits for it to exit.
func startRelay(ctx context.Context, cfg *config.Config, outbox *database.OutboxRepository, m *metrics.Metrics, log *slog.Logger) (func(), error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	relayCtx, cancel := context.WithCancel(ctx)
	relay := database.NewRelay(outbox, redisClient, log, database.RelayConfig{
		PollInterval: cfg.Redis.RelayInterval,
		BatchSize:    cfg.Redis.RelayBatch,
		OnPublish:    m.ObserveRelay,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Start(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Relay stopped", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
		redisClient.Close()
	}, nil
}

func serveMetrics(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics server failed", "error", err)
	}
}

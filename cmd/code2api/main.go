package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/code2api/code2api/internal/adapter/diskcache"
	"github.com/code2api/code2api/internal/adapter/groq"
	c2ahttp "github.com/code2api/code2api/internal/adapter/http"
	"github.com/code2api/code2api/internal/adapter/memcache"
	c2anats "github.com/code2api/code2api/internal/adapter/nats"
	"github.com/code2api/code2api/internal/adapter/otel"
	"github.com/code2api/code2api/internal/adapter/tiered"
	"github.com/code2api/code2api/internal/analyzer"
	"github.com/code2api/code2api/internal/config"
	"github.com/code2api/code2api/internal/invoker"
	"github.com/code2api/code2api/internal/logger"
	"github.com/code2api/code2api/internal/middleware"
	"github.com/code2api/code2api/internal/port/broadcast"
	"github.com/code2api/code2api/internal/resilience"
	"github.com/code2api/code2api/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"model", cfg.LLM.Model,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := otel.Setup(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Analysis ---
	an, err := analyzer.New(cfg.Cache.ParseMemMB<<20, log)
	if err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}
	defer an.Close()

	// --- Model invocation ---
	client := groq.NewClient(cfg.LLM.URL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
	client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	window := resilience.NewWindow(
		int64(cfg.Window.RequestThreshold),
		int64(cfg.Window.TokenThreshold),
		cfg.Window.ResetMargin,
	)

	factory := func(namespace string) (invoker.Tier, error) {
		mem := memcache.New(cfg.Cache.MemMaxEntries)
		disk, err := diskcache.New(filepath.Join(cfg.Cache.Dir, namespace))
		if err != nil {
			return invoker.Tier{}, err
		}
		return invoker.Tier{
			Store:  tiered.New(mem, disk, cfg.Cache.MemTTL, cfg.Cache.DiskTTL),
			Memory: mem,
			Disk:   disk,
			TTL:    cfg.Cache.MemTTL,
		}, nil
	}

	inv := invoker.New(client, window, factory, invoker.Options{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, log)
	inv.SetRecorder(metrics)

	// --- Eventing ---
	var pub broadcast.Publisher = broadcast.Nop{}
	if cfg.NATS.URL != "" {
		np, err := c2anats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = np.Close() }()
		pub = np
	}

	// --- Pipeline ---
	tools := []service.PhaseTool{
		service.NewFetchTool(log),
		service.NewAnalyzeTool(an, inv, log),
		service.NewDesignTool(inv, log),
		service.NewGenerateTool(inv, log),
		service.NewSecureTool(inv, log),
		service.NewTestTool(log),
		service.NewDocumentTool(log),
	}
	orch := service.NewOrchestrator(tools, pub, service.Options{
		MaxConcurrent: int64(cfg.Workflow.MaxConcurrent),
		PhaseTimeout:  cfg.Workflow.PhaseTimeout,
	}, log)
	orch.SetMetrics(metrics)

	// Retention sweep for terminal runs.
	retentionCtx, stopRetention := context.WithCancel(ctx)
	defer stopRetention()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-retentionCtx.Done():
				return
			case <-ticker.C:
				if n := orch.CleanupCompleted(cfg.Workflow.RetainCompleted); n > 0 {
					log.Info("completed runs pruned", "count", n)
				}
			}
		}
	}()

	// --- HTTP ---
	limiter := middleware.NewRateLimiter(middleware.LimiterConfig{
		RequestsPerSecond: cfg.Rate.RequestsPerSecond,
		Burst:             cfg.Rate.Burst,
		MaxClients:        cfg.Rate.MaxClients,
	})
	stopSweeper := limiter.StartSweeper(cfg.Rate.SweepInterval, cfg.Rate.ClientIdleTTL)
	defer stopSweeper()

	handlers := c2ahttp.NewHandlers(orch, inv, log)
	handlers.SetLimiter(limiter)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(limiter.Handler)
	r.Use(c2ahttp.SecurityHeaders)
	if cfg.Server.CORSOrigin != "" {
		r.Use(c2ahttp.CORS(cfg.Server.CORSOrigin))
	}
	r.Use(c2ahttp.Logger)
	r.Use(chimw.Recoverer)

	c2ahttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studymate/daily-digest/internal/api"
	"github.com/studymate/daily-digest/internal/config"
	"github.com/studymate/daily-digest/internal/dedupe"
	"github.com/studymate/daily-digest/internal/digest"
	"github.com/studymate/daily-digest/internal/email"
	"github.com/studymate/daily-digest/internal/metrics"
	"github.com/studymate/daily-digest/internal/worker"
)

func main() {
	// Config first, so ENV from a .env file also picks the log format.
	cfg, cfgErr := config.Load()

	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if cfg.IsProduction() {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Error("fatal", "error", fmt.Errorf("config: %w", cfgErr))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"email_provider", cfg.EmailProvider,
	)

	// Root context cancelled by OS signal. The schedule and HTTP server stop on
	// it; the runner has its own context so /send requests still waiting on it
	// can finish during HTTP shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ─────────────────────────────────────────────────────────────────
	backend, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closeStore()

	// ── Email ─────────────────────────────────────────────────────────────────
	var mailer email.Sender
	switch cfg.EmailProvider {
	case config.ProviderResend:
		mailer = email.NewResendClient(cfg.ResendAPIKey, cfg.EmailFromAddr, cfg.EmailFromName)
	default:
		mailer = email.NewSendGridClient(cfg.SendGridAPIKey, cfg.EmailFromAddr, cfg.EmailFromName)
	}
	logger.Info("email: provider ready", "provider", cfg.EmailProvider, "from", cfg.EmailFromAddr)

	// ── Dedupe ────────────────────────────────────────────────────────────────
	// Optional. Without Redis, overlapping batches across replicas rely on the
	// lastEmailSent check alone.
	var guard dedupe.Guard = dedupe.Noop{}
	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err := dedupe.NewRedisClient(pingCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		guard = dedupe.NewRedisGuard(rdb, cfg.DedupeTTL, logger)
		logger.Info("dedupe: redis guard enabled", "ttl", cfg.DedupeTTL)
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ── Worker ────────────────────────────────────────────────────────────────
	job := digest.NewJob(backend, backend, mailer, guard, m,
		digest.JobConfig{SendDelay: cfg.SendDelay}, logger)
	runner := worker.NewRunner(job, worker.RunnerConfig{
		QueueSize:    cfg.QueueSize,
		BatchTimeout: cfg.BatchTimeout,
	}, m, logger)

	var sched *worker.Scheduler
	if cfg.CronSchedule != "" {
		sched, err = worker.NewScheduler(cfg.CronSchedule, runner, logger)
		if err != nil {
			return err
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(
		runner, // *Runner satisfies api.BatchRunner
		runner, // and worker.Enqueuer
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		api.Config{
			CronUserAgent: cfg.CronUserAgent,
			Env:           cfg.Env,
		},
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BatchTimeout + 30*time.Second, // /send waits for a whole batch
		IdleTimeout:  120 * time.Second,
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	runnerCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()

	runnerDone := make(chan struct{})
	go func() {
		runner.Start(runnerCtx)
		close(runnerDone)
	}()

	if sched != nil {
		sched.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until either a signal arrives or the server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	if sched != nil {
		sched.Stop()
	}

	// Give in-flight HTTP requests up to 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// No handler is waiting on the runner any more. A batch already running
	// is allowed to finish its current pass.
	stopRunner()
	select {
	case <-runnerDone:
	case <-time.After(cfg.BatchTimeout):
		logger.Warn("worker did not stop before batch timeout")
	}

	logger.Info("shutdown complete")
	return nil
}

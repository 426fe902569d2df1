package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dvloznov/finance-migrator/internal/api/handlers"
	"github.com/dvloznov/finance-migrator/internal/backend"
	"github.com/dvloznov/finance-migrator/internal/config"
	"github.com/dvloznov/finance-migrator/internal/jobs"
	"github.com/dvloznov/finance-migrator/internal/jobs/inmemory"
	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/metrics"
	"github.com/dvloznov/finance-migrator/internal/migration"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	port := flag.String("port", cfg.Port, "HTTP server port")
	flag.Parse()
	cfg.Port = *port

	log := logger.NewWithLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	migrationMetrics, err := metrics.NewMigrationMetrics(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	stack, err := backend.Build(ctx, cfg, migrationMetrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backends")
	}
	defer stack.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.JobBuffer, jobStore, inmemory.WithWorkers(cfg.JobWorkers))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	runMigration := jobs.MigrationHandler(stack.Migrator)
	jobHandler := func(ctx context.Context, job *jobs.MigrationJob, progress migration.ProgressFunc) (*migration.Report, error) {
		migrationMetrics.JobStarted()
		defer migrationMetrics.JobFinished()

		ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
		return runMigration(ctx, job, progress)
	}

	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}
	log.Info().Int("workers", cfg.JobWorkers).Msg("Job workers started")

	migrationsHandler := handlers.NewMigrationsHandler(jobQueue, jobStore, log)
	router := handlers.NewRouter(migrationsHandler, registry, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.RemoteBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

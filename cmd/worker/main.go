package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dvloznov/finance-migrator/internal/amqp"
	"github.com/dvloznov/finance-migrator/internal/backend"
	"github.com/dvloznov/finance-migrator/internal/config"
	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewWithLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.AMQPURL == "" {
		log.Fatal().Msg("AMQP_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	stack, err := backend.Build(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backends")
	}
	defer stack.Close()

	log.Info().Str("backend", cfg.RemoteBackend).Msg("Starting worker service")

	// Reconnect with backoff whenever the broker connection drops.
	for attempt := 0; ; attempt++ {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPProgressKey)
		if err == nil {
			attempt = 0
			w := worker.NewMigrationWorker(stack.Migrator, client, cfg.RunTimeout)
			err = client.ConsumeMigrationRequests(ctx, w.HandleMigrationRequest)
			client.Close()
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			break
		}
		if !amqp.IsConnectionError(err) {
			log.Error().Err(err).Msg("Worker stopped")
			break
		}

		wait := amqp.Backoff(attempt)
		log.Warn().Err(err).Dur("retry_in", wait).Msg("AMQP connection lost, reconnecting")
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}

	log.Info().Msg("Worker service exited")
}

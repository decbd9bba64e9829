package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casebook_backend/internal/credentials"
	"casebook_backend/internal/delivery"
	"casebook_backend/internal/delivery/outbox"
	"casebook_backend/internal/directory"
	"casebook_backend/internal/events"
	"casebook_backend/internal/rules"
	"casebook_backend/internal/scheduler"
	"casebook_backend/platform/config"
	"casebook_backend/platform/db"
	"casebook_backend/platform/logger"
	"casebook_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// Worker-side delivery wiring (no HTTP handlers required). The worker
	// republishes due outbox records as domain events; the delivery module
	// handles them exactly as it would in the API process.
	credentialsModule := credentials.NewModule(pool, eventBus, cfg, log, val)
	rulesModule := rules.NewModule(pool, log, val)
	sender := delivery.NewSender(credentialsModule.Service(), cfg, log)
	deliveryModule := delivery.NewModule(
		rulesModule.Service(),
		directory.New(pool),
		sender,
		outbox.New(pool),
		log,
	)
	deliveryModule.RegisterHandlers(eventBus)

	dispatcher, err := scheduler.NewOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

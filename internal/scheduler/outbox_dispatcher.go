package scheduler

import (
	"context"
	"fmt"
	"time"

	"casebook_backend/internal/delivery/outbox"
	"casebook_backend/platform/config"
	"casebook_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxDispatcher polls the notification outbox and enqueues due records.
// Claiming flips rows to enqueued, so concurrent dispatchers never double
// up; enqueue failures flip the row back to pending for the next sweep.
type OutboxDispatcher struct {
	client *asynq.Client
	queue  string
	repo   *outbox.Repository
	log    *logger.Logger
}

func NewOutboxDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*OutboxDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &OutboxDispatcher{
		client: asynq.NewClient(opt),
		queue:  queue,
		repo:   outbox.New(pool),
		log:    log,
	}, nil
}

func (d *OutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		records, err := d.repo.ClaimPending(ctx, 50)
		if err != nil {
			d.log.Warn("outbox claim failed", "error", err)
			continue
		}
		if len(records) == 0 {
			continue
		}
		d.dispatch(ctx, records)
	}
}

func (d *OutboxDispatcher) dispatch(ctx context.Context, records []outbox.Record) {
	for _, rec := range records {
		task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
			OutboxID: rec.ID.String(),
			Country:  rec.Country,
		})
		if err != nil {
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			continue
		}

		_, err = d.client.EnqueueContext(ctx, task,
			asynq.ProcessAt(rec.RunAt), asynq.Queue(d.queue), asynq.MaxRetry(5))
		if err != nil {
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			continue
		}
	}
	d.log.Info("outbox records dispatched", "count", len(records))
}

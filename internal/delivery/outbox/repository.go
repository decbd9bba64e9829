// Package outbox persists pending notification work so a case status
// change survives process restarts between the event and the actual send.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusEnqueued       Status = "enqueued"
	StatusProcessing     Status = "processing"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	errRepoNotConfigured        = "outbox repository not configured"
)

// Record is one persisted notification-in-flight.
type Record struct {
	ID       uuid.UUID
	Country  string
	Status   string // workflow status that triggered the notification
	Payload  json.RawMessage
	RunAt    time.Time
	State    Status
	Attempts int
}

type InsertParams struct {
	Country string
	Status  string
	Payload any // case snapshot, marshalled to JSON
	RunAt   time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, errors.New(errRepoNotConfigured)
	}
	if p.Country == "" {
		return uuid.Nil, errors.New("country is required")
	}
	if p.Status == "" {
		return uuid.Nil, errors.New("status is required")
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO notification_outbox (country, case_status, payload, run_at, state)
		 VALUES ($1, $2, $3, $4, 'pending')
		 RETURNING id`,
		p.Country, p.Status, payloadBytes, p.RunAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, errors.New(errRepoNotConfigured)
	}

	var rec Record
	var state string
	err := r.pool.QueryRow(ctx,
		`SELECT id, country, case_status, payload, run_at, state, attempts
		 FROM notification_outbox
		 WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Country, &rec.Status, &rec.Payload, &rec.RunAt, &state, &rec.Attempts)
	if err != nil {
		return Record{}, err
	}
	rec.State = Status(state)
	return rec, nil
}

// ClaimPending atomically flips due pending rows to enqueued and returns
// them. SKIP LOCKED keeps concurrent dispatchers from claiming the same row.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM notification_outbox
		WHERE state = 'pending' AND run_at <= now()
		ORDER BY run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE notification_outbox o
	SET state = 'enqueued', updated_at = now()
	FROM cte
	WHERE o.id = cte.id
	RETURNING o.id, o.country, o.case_status, o.payload, o.run_at, o.state, o.attempts`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var state string
		if err := rows.Scan(&rec.ID, &rec.Country, &rec.Status, &rec.Payload, &rec.RunAt, &state, &rec.Attempts); err != nil {
			return nil, err
		}
		rec.State = Status(state)
		results = append(results, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// MarkPending returns a row to the pending state so a later dispatch run
// picks it up again, recording why the last attempt did not finish.
func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET state = 'pending', last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, lastError,
	)
	return err
}

func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET state = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	return err
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET state = 'succeeded', last_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET state = 'failed', last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, lastError,
	)
	return err
}

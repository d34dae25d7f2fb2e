package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payx/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

const outboxColumns = `id, business_id, event_type, payload, status, attempts, max_attempts, next_attempt_at, last_error, created_at, processed_at`

// Enqueue inserts a delivery task. MUST run within the same transaction
// as the state change that produced it.
func (r *OutboxRepo) Enqueue(ctx context.Context, tx pgx.Tx, ev *domain.WebhookOutbox) error {
	query := `INSERT INTO webhook_outbox (id, business_id, event_type, payload, status, attempts, max_attempts, next_attempt_at, last_error, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		ev.ID, ev.BusinessID, ev.EventType, ev.Payload, ev.Status,
		ev.Attempts, ev.MaxAttempts, ev.NextAttemptAt, ev.LastError,
		ev.CreatedAt, ev.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue webhook outbox: %w", err)
	}
	return nil
}

// ClaimDue locks up to limit due rows. SKIP LOCKED lets concurrent
// workers draw disjoint batches; the caller holds tx open until the
// batch is fully processed.
func (r *OutboxRepo) ClaimDue(ctx context.Context, tx pgx.Tx, limit int, now time.Time) ([]domain.WebhookOutbox, error) {
	query := `SELECT ` + outboxColumns + ` FROM webhook_outbox
		WHERE status IN ('pending', 'retrying') AND next_attempt_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due webhook outbox rows: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookOutbox
	for rows.Next() {
		var ev domain.WebhookOutbox
		if err := scanOutboxRow(rows, &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkDelivered finalizes a claimed row on the claiming transaction.
func (r *OutboxRepo) MarkDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	query := `UPDATE webhook_outbox
		SET status = 'delivered', processed_at = $1
		WHERE id = $2`

	if _, err := tx.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("mark webhook delivered: %w", err)
	}
	return nil
}

// ScheduleRetry records a failed attempt and the next delivery time.
func (r *OutboxRepo) ScheduleRetry(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, lastError string, nextAttemptAt time.Time) error {
	query := `UPDATE webhook_outbox
		SET status = 'retrying', attempts = $1, last_error = $2, next_attempt_at = $3
		WHERE id = $4`

	if _, err := tx.Exec(ctx, query, attempts, lastError, nextAttemptAt, id); err != nil {
		return fmt.Errorf("schedule webhook retry: %w", err)
	}
	return nil
}

// MarkFailed parks a row after its attempt budget is exhausted.
func (r *OutboxRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, lastError string) error {
	query := `UPDATE webhook_outbox
		SET status = 'failed', attempts = $1, last_error = $2
		WHERE id = $3`

	if _, err := tx.Exec(ctx, query, attempts, lastError, id); err != nil {
		return fmt.Errorf("mark webhook failed: %w", err)
	}
	return nil
}

// ResetForRetry moves a failed row back to pending with a zeroed attempt
// counter so the worker picks it up on its next poll. Returns nil when
// the row does not exist, belongs to another business, or is not failed.
func (r *OutboxRepo) ResetForRetry(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error) {
	query := `UPDATE webhook_outbox
		SET status = 'pending', attempts = 0, next_attempt_at = NOW(), last_error = NULL
		WHERE id = $1 AND business_id = $2 AND status = 'failed'
		RETURNING ` + outboxColumns

	ev := &domain.WebhookOutbox{}
	err := scanOutboxRow(r.pool.QueryRow(ctx, query, id, businessID), ev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ev, nil
}

// GetByID fetches a delivery scoped to its owning business.
func (r *OutboxRepo) GetByID(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error) {
	query := `SELECT ` + outboxColumns + ` FROM webhook_outbox
		WHERE id = $1 AND business_id = $2`

	ev := &domain.WebhookOutbox{}
	err := scanOutboxRow(r.pool.QueryRow(ctx, query, id, businessID), ev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ev, nil
}

// List fetches a business's deliveries, optionally filtered by status,
// newest first.
func (r *OutboxRepo) List(ctx context.Context, businessID uuid.UUID, status *domain.OutboxStatus, limit, offset int) ([]domain.WebhookOutbox, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		query := `SELECT ` + outboxColumns + ` FROM webhook_outbox
			WHERE business_id = $1 AND status = $2
			ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`
		rows, err = r.pool.Query(ctx, query, businessID, *status, limit, offset)
	} else {
		query := `SELECT ` + outboxColumns + ` FROM webhook_outbox
			WHERE business_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
		rows, err = r.pool.Query(ctx, query, businessID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list webhook outbox: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookOutbox
	for rows.Next() {
		var ev domain.WebhookOutbox
		if err := scanOutboxRow(rows, &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanOutboxRow(row pgx.Row, ev *domain.WebhookOutbox) error {
	err := row.Scan(&ev.ID, &ev.BusinessID, &ev.EventType, &ev.Payload,
		&ev.Status, &ev.Attempts, &ev.MaxAttempts, &ev.NextAttemptAt,
		&ev.LastError, &ev.CreatedAt, &ev.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scan webhook outbox row: %w", err)
	}
	return nil
}

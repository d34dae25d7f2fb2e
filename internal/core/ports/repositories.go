package ports

import (
	"context"
	"time"

	"payx/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BusinessRepository defines persistence operations for businesses.
type BusinessRepository interface {
	Create(ctx context.Context, business *domain.Business) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	List(ctx context.Context, limit, offset int) ([]domain.Business, error)
	// Update applies COALESCE semantics: nil fields keep their value.
	Update(ctx context.Context, id uuid.UUID, name, webhookURL *string) (*domain.Business, error)
	// SetWebhook assigns webhook_url and webhook_secret directly; nils clear.
	SetWebhook(ctx context.Context, id uuid.UUID, url, secret *string) (*domain.Business, error)
}

// AccountRepository defines persistence operations for accounts.
// Methods accepting pgx.Tx are used inside transaction blocks for
// pessimistic locking.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	List(ctx context.Context, businessID *uuid.UUID, limit, offset int) ([]domain.Account, error)
	// GetForUpdate acquires an exclusive row lock; MUST run within tx.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	// UpdateBalance sets balance and available_balance together and bumps
	// version; MUST run within tx while the row lock is held.
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal, now time.Time) error
}

// ApiKeyRepository defines persistence operations for API keys.
type ApiKeyRepository interface {
	Create(ctx context.Context, key *domain.ApiKey) error
	// GetByPrefix returns the non-revoked key with the given prefix, or nil.
	GetByPrefix(ctx context.Context, prefix string) (*domain.ApiKey, error)
	// TouchLastUsed is best-effort; callers ignore its error.
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	AccountID *uuid.UUID // either leg
	Limit     int
	Offset    int
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, error)
}

// LedgerRepository defines persistence operations for ledger entries.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
}

// OutboxRepository defines persistence for webhook delivery tasks.
type OutboxRepository interface {
	// Enqueue writes a row inside the engine's atomic unit.
	Enqueue(ctx context.Context, tx pgx.Tx, event *domain.WebhookOutbox) error
	// ClaimDue locks up to limit due rows with SKIP LOCKED so concurrent
	// workers draw disjoint batches; MUST run within tx, which stays open
	// until the batch is processed.
	ClaimDue(ctx context.Context, tx pgx.Tx, limit int, now time.Time) ([]domain.WebhookOutbox, error)
	MarkDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
	ScheduleRetry(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, lastError string, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, lastError string) error
	// ResetForRetry moves a failed row back to pending with zeroed
	// attempts. Returns nil when the row is absent or not failed.
	ResetForRetry(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error)
	GetByID(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error)
	List(ctx context.Context, businessID uuid.UUID, status *domain.OutboxStatus, limit, offset int) ([]domain.WebhookOutbox, error)
}

// RateLimitRepository provides the fixed-window request counter.
type RateLimitRepository interface {
	// Increment atomically upserts (api_key_id, window_start) and returns
	// the post-increment request count.
	Increment(ctx context.Context, apiKeyID uuid.UUID, windowStart time.Time) (int, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

package service

import (
	"context"
	"sync"
	"time"

	"payx/internal/core/domain"
	"payx/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// fakeTx satisfies pgx.Tx for fakes that ignore the transaction handle.
type fakeTx struct{ pgx.Tx }

func (f *fakeTx) Rollback(_ context.Context) error { return nil }
func (f *fakeTx) Commit(_ context.Context) error   { return nil }

type fakeTransactor struct{}

func (fakeTransactor) Begin(_ context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

// ---- accounts ----

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *memAccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *memAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) List(_ context.Context, businessID *uuid.UUID, limit, offset int) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, a := range r.accounts {
		if businessID == nil || a.BusinessID == *businessID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memAccountRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *memAccountRepo) UpdateBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, balance decimal.Decimal, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[id]
	a.Balance = balance
	a.AvailableBalance = balance
	a.Version++
	a.UpdatedAt = now
	return nil
}

// ---- transactions ----

type memTransactionRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*domain.Transaction
	byKey map[string]*domain.Transaction
	// conflictKeys simulate a concurrent insert: invisible to reads but
	// colliding on the unique index.
	conflictKeys map[string]bool
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{
		byID:         make(map[uuid.UUID]*domain.Transaction),
		byKey:        make(map[string]*domain.Transaction),
		conflictKeys: make(map[string]bool),
	}
}

func (r *memTransactionRepo) Create(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if txn.IdempotencyKey != nil {
		if _, dup := r.byKey[*txn.IdempotencyKey]; dup || r.conflictKeys[*txn.IdempotencyKey] {
			return &pgconn.PgError{Code: "23505", ConstraintName: "transactions_idempotency_key_key"}
		}
	}
	cp := *txn
	r.byID[txn.ID] = &cp
	if txn.IdempotencyKey != nil {
		r.byKey[*txn.IdempotencyKey] = &cp
	}
	return nil
}

func (r *memTransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *txn
	return &cp, nil
}

func (r *memTransactionRepo) GetByIdempotencyKey(_ context.Context, key string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *txn
	return &cp, nil
}

func (r *memTransactionRepo) List(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range r.byID {
		if params.AccountID != nil {
			match := (txn.SourceAccountID != nil && *txn.SourceAccountID == *params.AccountID) ||
				(txn.DestinationAccountID != nil && *txn.DestinationAccountID == *params.AccountID)
			if !match {
				continue
			}
		}
		out = append(out, *txn)
	}
	return out, nil
}

// ---- ledger entries ----

type memLedgerRepo struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
}

func newMemLedgerRepo() *memLedgerRepo { return &memLedgerRepo{} }

func (r *memLedgerRepo) Create(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memLedgerRepo) ListByTransaction(_ context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range r.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---- businesses ----

type memBusinessRepo struct {
	mu         sync.Mutex
	businesses map[uuid.UUID]*domain.Business
}

func newMemBusinessRepo() *memBusinessRepo {
	return &memBusinessRepo{businesses: make(map[uuid.UUID]*domain.Business)}
}

func (r *memBusinessRepo) Create(_ context.Context, b *domain.Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.businesses[b.ID] = &cp
	return nil
}

func (r *memBusinessRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *memBusinessRepo) List(_ context.Context, limit, offset int) ([]domain.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Business
	for _, b := range r.businesses {
		out = append(out, *b)
	}
	return out, nil
}

func (r *memBusinessRepo) Update(_ context.Context, id uuid.UUID, name, webhookURL *string) (*domain.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, nil
	}
	if name != nil {
		b.Name = *name
	}
	if webhookURL != nil {
		b.WebhookURL = webhookURL
	}
	cp := *b
	return &cp, nil
}

func (r *memBusinessRepo) SetWebhook(_ context.Context, id uuid.UUID, url, secret *string) (*domain.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, nil
	}
	b.WebhookURL = url
	b.WebhookSecret = secret
	cp := *b
	return &cp, nil
}

// ---- outbox ----

type memOutboxRepo struct {
	mu     sync.Mutex
	events []*domain.WebhookOutbox
}

func newMemOutboxRepo() *memOutboxRepo { return &memOutboxRepo{} }

func (r *memOutboxRepo) Enqueue(_ context.Context, _ pgx.Tx, ev *domain.WebhookOutbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	r.events = append(r.events, &cp)
	return nil
}

func (r *memOutboxRepo) ClaimDue(_ context.Context, _ pgx.Tx, limit int, now time.Time) ([]domain.WebhookOutbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WebhookOutbox
	for _, ev := range r.events {
		if len(out) >= limit {
			break
		}
		if (ev.Status == domain.OutboxStatusPending || ev.Status == domain.OutboxStatusRetrying) && !ev.NextAttemptAt.After(now) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *memOutboxRepo) MarkDelivered(_ context.Context, _ pgx.Tx, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			ev.Status = domain.OutboxStatusDelivered
			ev.ProcessedAt = &at
		}
	}
	return nil
}

func (r *memOutboxRepo) ScheduleRetry(_ context.Context, _ pgx.Tx, id uuid.UUID, attempts int, lastError string, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			ev.Status = domain.OutboxStatusRetrying
			ev.Attempts = attempts
			ev.LastError = &lastError
			ev.NextAttemptAt = nextAttemptAt
		}
	}
	return nil
}

func (r *memOutboxRepo) MarkFailed(_ context.Context, _ pgx.Tx, id uuid.UUID, attempts int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			ev.Status = domain.OutboxStatusFailed
			ev.Attempts = attempts
			ev.LastError = &lastError
		}
	}
	return nil
}

func (r *memOutboxRepo) ResetForRetry(_ context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id && ev.BusinessID == businessID && ev.Status == domain.OutboxStatusFailed {
			ev.Status = domain.OutboxStatusPending
			ev.Attempts = 0
			ev.LastError = nil
			ev.NextAttemptAt = time.Now().UTC()
			cp := *ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memOutboxRepo) GetByID(_ context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id && ev.BusinessID == businessID {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memOutboxRepo) List(_ context.Context, businessID uuid.UUID, status *domain.OutboxStatus, limit, offset int) ([]domain.WebhookOutbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WebhookOutbox
	for _, ev := range r.events {
		if ev.BusinessID != businessID {
			continue
		}
		if status != nil && ev.Status != *status {
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

// ---- api keys ----

type memApiKeyRepo struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*domain.ApiKey
}

func newMemApiKeyRepo() *memApiKeyRepo {
	return &memApiKeyRepo{keys: make(map[uuid.UUID]*domain.ApiKey)}
}

func (r *memApiKeyRepo) Create(_ context.Context, k *domain.ApiKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *k
	r.keys[k.ID] = &cp
	return nil
}

func (r *memApiKeyRepo) GetByPrefix(_ context.Context, prefix string) (*domain.ApiKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.Prefix == prefix && k.RevokedAt == nil {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memApiKeyRepo) TouchLastUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[id]; ok {
		k.LastUsedAt = &at
	}
	return nil
}

// ---- idempotency cache ----

type memIdempotencyCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemIdempotencyCache() *memIdempotencyCache {
	return &memIdempotencyCache{items: make(map[string][]byte)}
}

func (c *memIdempotencyCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[key], nil
}

func (c *memIdempotencyCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

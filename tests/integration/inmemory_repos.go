package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"payx/internal/core/domain"
	"payx/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Business Repo ---

type inMemoryBusinessRepo struct {
	mu         sync.RWMutex
	businesses map[uuid.UUID]*domain.Business
}

func newInMemoryBusinessRepo() *inMemoryBusinessRepo {
	return &inMemoryBusinessRepo{businesses: make(map[uuid.UUID]*domain.Business)}
}

func (r *inMemoryBusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.businesses {
		if existing.Email == b.Email {
			return fmt.Errorf("email already exists")
		}
	}
	cp := *b
	r.businesses[b.ID] = &cp
	return nil
}

func (r *inMemoryBusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *inMemoryBusinessRepo) List(ctx context.Context, limit, offset int) ([]domain.Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Business
	for _, b := range r.businesses {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, limit, offset), nil
}

func (r *inMemoryBusinessRepo) Update(ctx context.Context, id uuid.UUID, name, webhookURL *string) (*domain.Business, error) {
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
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	return &cp, nil
}

func (r *inMemoryBusinessRepo) SetWebhook(ctx context.Context, id uuid.UUID, url, secret *string) (*domain.Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, nil
	}
	b.WebhookURL = url
	b.WebhookSecret = secret
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	return &cp, nil
}

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
}

func newInMemoryAccountRepo() *inMemoryAccountRepo {
	return &inMemoryAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAccountRepo) List(ctx context.Context, businessID *uuid.UUID, limit, offset int) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Account
	for _, a := range r.accounts {
		if businessID != nil && a.BusinessID != *businessID {
			continue
		}
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, limit, offset), nil
}

func (r *inMemoryAccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	// Row locking is emulated by the serializing transactor.
	return r.GetByID(ctx, id)
}

func (r *inMemoryAccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("account not found: %s", id)
	}
	a.Balance = balance
	a.AvailableBalance = balance
	a.Version++
	a.UpdatedAt = now
	return nil
}

// --- In-Memory ApiKey Repo ---

type inMemoryApiKeyRepo struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*domain.ApiKey
}

func newInMemoryApiKeyRepo() *inMemoryApiKeyRepo {
	return &inMemoryApiKeyRepo{keys: make(map[uuid.UUID]*domain.ApiKey)}
}

func (r *inMemoryApiKeyRepo) Create(ctx context.Context, k *domain.ApiKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *k
	r.keys[k.ID] = &cp
	return nil
}

func (r *inMemoryApiKeyRepo) GetByPrefix(ctx context.Context, prefix string) (*domain.ApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.Prefix == prefix && k.RevokedAt == nil {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryApiKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[id]; ok {
		k.LastUsedAt = &at
	}
	return nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
	byKey        map[string]uuid.UUID
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{
		transactions: make(map[uuid.UUID]*domain.Transaction),
		byKey:        make(map[string]uuid.UUID),
	}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.IdempotencyKey != nil {
		if _, exists := r.byKey[*t.IdempotencyKey]; exists {
			return &pgconn.PgError{Code: "23505", ConstraintName: "idx_transactions_idempotency_key"}
		}
		r.byKey[*t.IdempotencyKey] = t.ID
	}
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *r.transactions[id]
	return &cp, nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if params.AccountID != nil {
			touches := (t.SourceAccountID != nil && *t.SourceAccountID == *params.AccountID) ||
				(t.DestinationAccountID != nil && *t.DestinationAccountID == *params.AccountID)
			if !touches {
				continue
			}
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, params.Limit, params.Offset), nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{}
}

func (r *inMemoryLedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *inMemoryLedgerRepo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for _, e := range r.entries {
		if e.TransactionID == transactionID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *inMemoryLedgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for _, e := range r.entries {
		if e.AccountID == accountID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, limit, offset), nil
}

// --- In-Memory Outbox Repo ---

type inMemoryOutboxRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.WebhookOutbox
}

func newInMemoryOutboxRepo() *inMemoryOutboxRepo {
	return &inMemoryOutboxRepo{events: make(map[uuid.UUID]*domain.WebhookOutbox)}
}

func (r *inMemoryOutboxRepo) Enqueue(ctx context.Context, tx pgx.Tx, ev *domain.WebhookOutbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	r.events[ev.ID] = &cp
	return nil
}

func (r *inMemoryOutboxRepo) ClaimDue(ctx context.Context, tx pgx.Tx, limit int, now time.Time) ([]domain.WebhookOutbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []domain.WebhookOutbox
	for _, ev := range r.events {
		if ev.Status != domain.OutboxStatusPending && ev.Status != domain.OutboxStatusRetrying {
			continue
		}
		if ev.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, *ev)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *inMemoryOutboxRepo) MarkDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox row not found: %s", id)
	}
	ev.Status = domain.OutboxStatusDelivered
	ev.ProcessedAt = &at
	return nil
}

func (r *inMemoryOutboxRepo) ScheduleRetry(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, lastError string, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox row not found: %s", id)
	}
	ev.Status = domain.OutboxStatusRetrying
	ev.Attempts = attempts
	ev.LastError = &lastError
	ev.NextAttemptAt = nextAttemptAt
	return nil
}

func (r *inMemoryOutboxRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox row not found: %s", id)
	}
	ev.Status = domain.OutboxStatusFailed
	ev.Attempts = attempts
	ev.LastError = &lastError
	return nil
}

func (r *inMemoryOutboxRepo) ResetForRetry(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok || ev.BusinessID != businessID || ev.Status != domain.OutboxStatusFailed {
		return nil, nil
	}
	ev.Status = domain.OutboxStatusPending
	ev.Attempts = 0
	ev.LastError = nil
	ev.NextAttemptAt = time.Now().UTC()
	cp := *ev
	return &cp, nil
}

func (r *inMemoryOutboxRepo) GetByID(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok || ev.BusinessID != businessID {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (r *inMemoryOutboxRepo) List(ctx context.Context, businessID uuid.UUID, status *domain.OutboxStatus, limit, offset int) ([]domain.WebhookOutbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.WebhookOutbox
	for _, ev := range r.events {
		if ev.BusinessID != businessID {
			continue
		}
		if status != nil && ev.Status != *status {
			continue
		}
		result = append(result, *ev)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, limit, offset), nil
}

// rewind makes every undelivered row immediately due again so tests can
// drive the worker through its retry schedule without sleeping.
func (r *inMemoryOutboxRepo) rewind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		ev.NextAttemptAt = time.Time{}
	}
}

// --- In-Memory Rate Limit Repo ---

type inMemoryRateLimitRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func newInMemoryRateLimitRepo() *inMemoryRateLimitRepo {
	return &inMemoryRateLimitRepo{counts: make(map[string]int)}
}

func (r *inMemoryRateLimitRepo) Increment(ctx context.Context, apiKeyID uuid.UUID, windowStart time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := apiKeyID.String() + "|" + windowStart.Format(time.RFC3339)
	r.counts[key]++
	return r.counts[key], nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes whole database transactions with one
// mutex, standing in for row-level locks.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &serialTx{release: &t.mu}, nil
}

// serialTx holds the transactor lock until Commit or Rollback, whichever
// comes first.
type serialTx struct {
	release *sync.Mutex
	once    sync.Once
}

func (t *serialTx) unlock() {
	t.once.Do(func() { t.release.Unlock() })
}

func (t *serialTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *serialTx) Commit(ctx context.Context) error          { t.unlock(); return nil }
func (t *serialTx) Rollback(ctx context.Context) error        { t.unlock(); return nil }
func (t *serialTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *serialTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *serialTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *serialTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *serialTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *serialTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *serialTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *serialTx) Conn() *pgx.Conn { return nil }

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

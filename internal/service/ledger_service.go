package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payx/internal/core/domain"
	"payx/internal/core/ports"
	"payx/pkg/apperror"
	"payx/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	idempotencyTTL    = 24 * time.Hour
	pgUniqueViolation = "23505"
)

// LedgerServiceImpl implements ports.LedgerService: the engine that
// applies credits, debits and transfers atomically under pessimistic
// row locks and enqueues webhook events in the same transaction.
type LedgerServiceImpl struct {
	txRepo      ports.TransactionRepository
	ledgerRepo  ports.LedgerRepository
	accountRepo ports.AccountRepository
	outboxRepo  ports.OutboxRepository
	idempCache  ports.IdempotencyCache
	transactor  ports.DBTransactor
	maxAttempts int
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	txRepo ports.TransactionRepository,
	ledgerRepo ports.LedgerRepository,
	accountRepo ports.AccountRepository,
	outboxRepo ports.OutboxRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	maxAttempts int,
	log zerolog.Logger,
) *LedgerServiceImpl {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	return &LedgerServiceImpl{
		txRepo:      txRepo,
		ledgerRepo:  ledgerRepo,
		accountRepo: accountRepo,
		outboxRepo:  outboxRepo,
		idempCache:  idempCache,
		transactor:  transactor,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Apply executes one money movement. The bool result reports an
// idempotent replay: the stored transaction was returned without
// touching any balance.
func (s *LedgerServiceImpl) Apply(ctx context.Context, req ports.ApplyRequest) (*domain.Transaction, bool, error) {
	if err := s.validate(req); err != nil {
		metrics.TransactionsRejected.WithLabelValues(errorCode(err)).Inc()
		return nil, false, err
	}

	// Layer 1: Redis idempotency check (best-effort)
	if req.IdempotencyKey != nil {
		cached, err := s.idempCache.Get(ctx, *req.IdempotencyKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", *req.IdempotencyKey).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			txn, err := s.unmarshalCachedTransaction(cached)
			if err == nil {
				return txn, true, nil
			}
			s.log.Warn().Err(err).Str("key", *req.IdempotencyKey).Msg("discarding corrupt cached transaction")
		}

		// Layer 2: DB idempotency check
		existing, err := s.txRepo.GetByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err != nil {
			return nil, false, apperror.ErrDatabase(fmt.Errorf("db idempotency check: %w", err))
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	txn, err := s.applyNew(ctx, req)
	if err != nil {
		metrics.TransactionsRejected.WithLabelValues(errorCode(err)).Inc()
		return nil, false, err
	}

	metrics.TransactionsApplied.WithLabelValues(string(txn.Type)).Inc()
	return txn, false, nil
}

func (s *LedgerServiceImpl) applyNew(ctx context.Context, req ports.ApplyRequest) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:                   uuid.New(),
		IdempotencyKey:       req.IdempotencyKey,
		Type:                 req.Type,
		Status:               domain.TransactionStatusCompleted,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Description:          req.Description,
		Metadata:             req.Metadata,
		CreatedAt:            now,
		CompletedAt:          &now,
	}

	var touched []*domain.Account
	switch req.Type {
	case domain.TransactionTypeCredit:
		touched, err = s.applyCredit(ctx, dbTx, txn, now)
	case domain.TransactionTypeDebit:
		touched, err = s.applyDebit(ctx, dbTx, txn, now)
	case domain.TransactionTypeTransfer:
		touched, err = s.applyTransfer(ctx, dbTx, txn, now)
	}
	if err != nil {
		return nil, err
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && req.IdempotencyKey != nil {
			return nil, apperror.ErrIdempotencyConflict(*req.IdempotencyKey)
		}
		return nil, apperror.ErrDatabase(fmt.Errorf("create transaction: %w", err))
	}

	if err := s.enqueueWebhooks(ctx, dbTx, txn, touched, now); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabase(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache in Redis (best-effort)
	if req.IdempotencyKey != nil {
		respJSON, err := json.Marshal(txn)
		if err == nil {
			if err := s.idempCache.Set(ctx, *req.IdempotencyKey, respJSON, idempotencyTTL); err != nil {
				s.log.Warn().Err(err).Str("key", *req.IdempotencyKey).Msg("failed to cache idempotency in redis")
			}
		}
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("type", string(txn.Type)).
		Str("amount", txn.Amount.String()).
		Str("currency", txn.Currency).
		Msg("transaction applied")

	return txn, nil
}

// applyCredit adds funds to the destination account.
func (s *LedgerServiceImpl) applyCredit(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) ([]*domain.Account, error) {
	account, err := s.lockAccount(ctx, dbTx, *txn.DestinationAccountID, txn.Currency)
	if err != nil {
		return nil, err
	}

	newBalance := account.Balance.Add(txn.Amount)
	if err := s.writeLeg(ctx, dbTx, txn.ID, account, domain.EntryTypeCredit, txn.Amount, newBalance, now); err != nil {
		return nil, err
	}
	return []*domain.Account{account}, nil
}

// applyDebit removes funds from the source account, rejecting overdrafts.
func (s *LedgerServiceImpl) applyDebit(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) ([]*domain.Account, error) {
	account, err := s.lockAccount(ctx, dbTx, *txn.SourceAccountID, txn.Currency)
	if err != nil {
		return nil, err
	}

	if account.AvailableBalance.LessThan(txn.Amount) {
		return nil, apperror.ErrInsufficientFunds(account.ID, account.AvailableBalance, txn.Amount)
	}

	newBalance := account.Balance.Sub(txn.Amount)
	if err := s.writeLeg(ctx, dbTx, txn.ID, account, domain.EntryTypeDebit, txn.Amount, newBalance, now); err != nil {
		return nil, err
	}
	return []*domain.Account{account}, nil
}

// applyTransfer moves funds between two accounts. Row locks are taken in
// byte-wise id order so concurrent opposing transfers cannot deadlock.
func (s *LedgerServiceImpl) applyTransfer(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) ([]*domain.Account, error) {
	first, second := domain.LockOrder(*txn.SourceAccountID, *txn.DestinationAccountID)

	locked := make(map[uuid.UUID]*domain.Account, 2)
	for _, id := range []uuid.UUID{first, second} {
		account, err := s.lockAccount(ctx, dbTx, id, txn.Currency)
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}

	source := locked[*txn.SourceAccountID]
	dest := locked[*txn.DestinationAccountID]

	if source.AvailableBalance.LessThan(txn.Amount) {
		return nil, apperror.ErrInsufficientFunds(source.ID, source.AvailableBalance, txn.Amount)
	}

	if err := s.writeLeg(ctx, dbTx, txn.ID, source, domain.EntryTypeDebit, txn.Amount, source.Balance.Sub(txn.Amount), now); err != nil {
		return nil, err
	}
	if err := s.writeLeg(ctx, dbTx, txn.ID, dest, domain.EntryTypeCredit, txn.Amount, dest.Balance.Add(txn.Amount), now); err != nil {
		return nil, err
	}
	return []*domain.Account{source, dest}, nil
}

// lockAccount acquires the row lock and enforces the currency rule.
func (s *LedgerServiceImpl) lockAccount(ctx context.Context, dbTx pgx.Tx, id uuid.UUID, currency string) (*domain.Account, error) {
	account, err := s.accountRepo.GetForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.ErrDatabase(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrAccountNotFound(id)
	}
	if account.Currency != currency {
		return nil, apperror.ErrCurrencyMismatch(account.Currency, currency)
	}
	return account, nil
}

// writeLeg persists one ledger entry and the matching balance update.
func (s *LedgerServiceImpl) writeLeg(ctx context.Context, dbTx pgx.Tx, txnID uuid.UUID, account *domain.Account, entryType domain.EntryType, amount, newBalance decimal.Decimal, now time.Time) error {
	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: txnID,
		AccountID:     account.ID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceAfter:  newBalance,
		CreatedAt:     now,
	}
	if err := s.ledgerRepo.Create(ctx, dbTx, entry); err != nil {
		return apperror.ErrDatabase(fmt.Errorf("create ledger entry: %w", err))
	}
	if err := s.accountRepo.UpdateBalance(ctx, dbTx, account.ID, newBalance, now); err != nil {
		return apperror.ErrDatabase(fmt.Errorf("update balance: %w", err))
	}
	return nil
}

// enqueueWebhooks writes one outbox row per distinct touched business,
// inside the engine's transaction. Rows are written whether or not the
// business has a webhook URL configured; the worker resolves the
// endpoint at delivery time, so the delivery history is complete and a
// URL registered between commit and delivery still receives the event.
func (s *LedgerServiceImpl) enqueueWebhooks(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, touched []*domain.Account, now time.Time) error {
	seen := make(map[uuid.UUID]bool, len(touched))
	for _, account := range touched {
		if seen[account.BusinessID] {
			continue
		}
		seen[account.BusinessID] = true

		data, err := json.Marshal(txn)
		if err != nil {
			return apperror.ErrSerialization(fmt.Errorf("marshal webhook data: %w", err))
		}
		payload, err := json.Marshal(domain.NewWebhookPayload(domain.EventTransactionCompleted, data))
		if err != nil {
			return apperror.ErrSerialization(fmt.Errorf("marshal webhook payload: %w", err))
		}

		event := &domain.WebhookOutbox{
			ID:            uuid.New(),
			BusinessID:    account.BusinessID,
			EventType:     domain.EventTransactionCompleted,
			Payload:       payload,
			Status:        domain.OutboxStatusPending,
			Attempts:      0,
			MaxAttempts:   s.maxAttempts,
			NextAttemptAt: now,
			CreatedAt:     now,
		}
		if err := s.outboxRepo.Enqueue(ctx, dbTx, event); err != nil {
			return apperror.ErrDatabase(fmt.Errorf("enqueue webhook: %w", err))
		}
	}
	return nil
}

func (s *LedgerServiceImpl) validate(req ports.ApplyRequest) error {
	if !req.Type.Valid() {
		return apperror.Validation(fmt.Sprintf("unknown transaction type %q", req.Type))
	}
	if !req.Amount.IsPositive() {
		return apperror.Validation("amount must be positive")
	}
	if req.Currency == "" {
		return apperror.Validation("currency is required")
	}

	switch req.Type {
	case domain.TransactionTypeCredit:
		if req.DestinationAccountID == nil {
			return apperror.Validation("credit requires destination_account_id")
		}
		if req.SourceAccountID != nil {
			return apperror.Validation("credit must not carry source_account_id")
		}
	case domain.TransactionTypeDebit:
		if req.SourceAccountID == nil {
			return apperror.Validation("debit requires source_account_id")
		}
		if req.DestinationAccountID != nil {
			return apperror.Validation("debit must not carry destination_account_id")
		}
	case domain.TransactionTypeTransfer:
		if req.SourceAccountID == nil || req.DestinationAccountID == nil {
			return apperror.Validation("transfer requires source_account_id and destination_account_id")
		}
		if *req.SourceAccountID == *req.DestinationAccountID {
			return apperror.Validation("transfer source and destination must differ")
		}
	}
	return nil
}

func (s *LedgerServiceImpl) unmarshalCachedTransaction(data []byte) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	if err := json.Unmarshal(data, txn); err != nil {
		return nil, fmt.Errorf("unmarshal cached tx: %w", err)
	}
	return txn, nil
}

func errorCode(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal_error"
}

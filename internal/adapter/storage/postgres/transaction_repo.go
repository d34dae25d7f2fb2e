package postgres

import (
	"context"
	"errors"
	"fmt"

	"payx/internal/core/domain"
	"payx/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, idempotency_key, type, status, source_account_id, destination_account_id, amount, currency, description, metadata, created_at, completed_at`

// Create inserts a transaction row. MUST run within the engine's
// transaction so the insert commits atomically with the balance updates.
// A unique violation on idempotency_key surfaces as a pgconn.PgError
// with code 23505 for the service layer to translate.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	query := `INSERT INTO transactions (id, idempotency_key, type, status, source_account_id, destination_account_id, amount, currency, description, metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		txn.ID, txn.IdempotencyKey, txn.Type, txn.Status,
		txn.SourceAccountID, txn.DestinationAccountID,
		txn.Amount, txn.Currency, txn.Description, txn.Metadata,
		txn.CreatedAt, txn.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by its UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey fetches the transaction recorded under key, or nil.
func (r *TransactionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, key))
}

// List fetches transactions, optionally filtered to either leg touching
// an account, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if params.AccountID != nil {
		query := `SELECT ` + transactionColumns + ` FROM transactions
			WHERE source_account_id = $1 OR destination_account_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
		rows, err = r.pool.Query(ctx, query, *params.AccountID, params.Limit, params.Offset)
	} else {
		query := `SELECT ` + transactionColumns + ` FROM transactions
			ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
		rows, err = r.pool.Query(ctx, query, params.Limit, params.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.IdempotencyKey, &t.Type, &t.Status,
			&t.SourceAccountID, &t.DestinationAccountID,
			&t.Amount, &t.Currency, &t.Description, &t.Metadata,
			&t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(&t.ID, &t.IdempotencyKey, &t.Type, &t.Status,
		&t.SourceAccountID, &t.DestinationAccountID,
		&t.Amount, &t.Currency, &t.Description, &t.Metadata,
		&t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

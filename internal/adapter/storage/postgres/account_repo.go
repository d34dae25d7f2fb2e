package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payx/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, business_id, account_type, currency, balance, available_balance, version, created_at, updated_at`

// Create inserts a new account. Balance and available_balance start equal.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (id, business_id, account_type, currency, balance, available_balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.BusinessID, a.AccountType, a.Currency,
		a.Balance, a.AvailableBalance, a.Version,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID fetches an account by its UUID (without locking).
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// List fetches accounts, optionally scoped to a business.
func (r *AccountRepo) List(ctx context.Context, businessID *uuid.UUID, limit, offset int) ([]domain.Account, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if businessID != nil {
		query := `SELECT ` + accountColumns + ` FROM accounts WHERE business_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
		rows, err = r.pool.Query(ctx, query, *businessID, limit, offset)
	} else {
		query := `SELECT ` + accountColumns + ` FROM accounts
			ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
		rows, err = r.pool.Query(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.AccountType, &a.Currency,
			&a.Balance, &a.AvailableBalance, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetForUpdate fetches an account with an exclusive row lock.
// This MUST be called within a transaction.
func (r *AccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(tx.QueryRow(ctx, query, id))
}

// UpdateBalance sets balance and available_balance together, bumps the
// version and refreshes updated_at. MUST be called within a transaction
// while the row lock is held.
func (r *AccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal, now time.Time) error {
	query := `UPDATE accounts
		SET balance = $1, available_balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3`

	tag, err := tx.Exec(ctx, query, balance, now, id)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", id)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(&a.ID, &a.BusinessID, &a.AccountType, &a.Currency,
		&a.Balance, &a.AvailableBalance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

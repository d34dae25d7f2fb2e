package postgres

import (
	"context"
	"testing"
	"time"

	"payx/internal/core/domain"
	"payx/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction() *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	src := uuid.New()
	dst := uuid.New()
	key := "idem-" + uuid.NewString()
	return &domain.Transaction{
		ID:                   uuid.New(),
		IdempotencyKey:       &key,
		Type:                 domain.TransactionTypeTransfer,
		Status:               domain.TransactionStatusCompleted,
		SourceAccountID:      &src,
		DestinationAccountID: &dst,
		Amount:               decimal.RequireFromString("42.5000"),
		Currency:             "USD",
		CreatedAt:            now,
		CompletedAt:          &now,
	}
}

func transactionTestColumns() []string {
	return []string{"id", "idempotency_key", "type", "status", "source_account_id", "destination_account_id", "amount", "currency", "description", "metadata", "created_at", "completed_at"}
}

func transactionRow(txn *domain.Transaction) *pgxmock.Rows {
	return pgxmock.NewRows(transactionTestColumns()).AddRow(
		txn.ID, txn.IdempotencyKey, txn.Type, txn.Status,
		txn.SourceAccountID, txn.DestinationAccountID,
		txn.Amount.String(), txn.Currency, txn.Description, txn.Metadata,
		txn.CreatedAt, txn.CompletedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.IdempotencyKey, txn.Type, txn.Status,
			txn.SourceAccountID, txn.DestinationAccountID,
			txn.Amount, txn.Currency, txn.Description, txn.Metadata,
			txn.CreatedAt, txn.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(transactionRow(txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.True(t, txn.Amount.Equal(result.Amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByIdempotencyKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE idempotency_key").
		WithArgs(*txn.IdempotencyKey).
		WillReturnRows(transactionRow(txn))

	result, err := repo.GetByIdempotencyKey(context.Background(), *txn.IdempotencyKey)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByIdempotencyKey_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE idempotency_key").
		WithArgs("missing-key").
		WillReturnRows(pgxmock.NewRows(transactionTestColumns()))

	result, err := repo.GetByIdempotencyKey(context.Background(), "missing-key")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_ByAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()
	accountID := *txn.SourceAccountID

	mock.ExpectQuery("SELECT .+ FROM transactions.+source_account_id").
		WithArgs(accountID, 50, 0).
		WillReturnRows(transactionRow(txn))

	txns, err := repo.List(context.Background(), ports.TransactionListParams{
		AccountID: &accountID,
		Limit:     50,
		Offset:    0,
	})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, txn.ID, txns[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

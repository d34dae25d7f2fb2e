package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payx/internal/adapter/http/dto"
	"payx/internal/adapter/http/middleware"
	"payx/internal/core/domain"
	"payx/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Stubs ---

type stubBusinessSvc struct {
	createFn func(ctx context.Context, params ports.CreateBusinessParams) (*ports.BusinessSignup, error)
}

func (s *stubBusinessSvc) Create(ctx context.Context, params ports.CreateBusinessParams) (*ports.BusinessSignup, error) {
	return s.createFn(ctx, params)
}

type stubLedgerSvc struct {
	applyFn func(ctx context.Context, req ports.ApplyRequest) (*domain.Transaction, bool, error)
}

func (s *stubLedgerSvc) Apply(ctx context.Context, req ports.ApplyRequest) (*domain.Transaction, bool, error) {
	return s.applyFn(ctx, req)
}

type stubBusinessRepo struct {
	getFn        func(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	updateFn     func(ctx context.Context, id uuid.UUID, name, webhookURL *string) (*domain.Business, error)
	setWebhookFn func(ctx context.Context, id uuid.UUID, url, secret *string) (*domain.Business, error)
}

func (s *stubBusinessRepo) Create(context.Context, *domain.Business) error { return nil }
func (s *stubBusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	if s.getFn == nil {
		return nil, nil
	}
	return s.getFn(ctx, id)
}
func (s *stubBusinessRepo) List(context.Context, int, int) ([]domain.Business, error) {
	return nil, nil
}
func (s *stubBusinessRepo) Update(ctx context.Context, id uuid.UUID, name, webhookURL *string) (*domain.Business, error) {
	if s.updateFn == nil {
		return nil, nil
	}
	return s.updateFn(ctx, id, name, webhookURL)
}
func (s *stubBusinessRepo) SetWebhook(ctx context.Context, id uuid.UUID, url, secret *string) (*domain.Business, error) {
	if s.setWebhookFn == nil {
		return nil, nil
	}
	return s.setWebhookFn(ctx, id, url, secret)
}

type stubAccountRepo struct {
	createFn func(ctx context.Context, account *domain.Account) error
	getFn    func(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	listFn   func(ctx context.Context, businessID *uuid.UUID, limit, offset int) ([]domain.Account, error)
}

func (s *stubAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, account)
}
func (s *stubAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if s.getFn == nil {
		return nil, nil
	}
	return s.getFn(ctx, id)
}
func (s *stubAccountRepo) List(ctx context.Context, businessID *uuid.UUID, limit, offset int) ([]domain.Account, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, businessID, limit, offset)
}
func (s *stubAccountRepo) GetForUpdate(context.Context, pgx.Tx, uuid.UUID) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}
func (s *stubAccountRepo) UpdateBalance(context.Context, pgx.Tx, uuid.UUID, decimal.Decimal, time.Time) error {
	return errors.New("not implemented")
}

type stubTxRepo struct {
	getFn  func(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	listFn func(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, error)
}

func (s *stubTxRepo) Create(context.Context, pgx.Tx, *domain.Transaction) error {
	return errors.New("not implemented")
}
func (s *stubTxRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	if s.getFn == nil {
		return nil, nil
	}
	return s.getFn(ctx, id)
}
func (s *stubTxRepo) GetByIdempotencyKey(context.Context, string) (*domain.Transaction, error) {
	return nil, nil
}
func (s *stubTxRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, params)
}

type stubLedgerRepo struct {
	byTxFn func(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error)
}

func (s *stubLedgerRepo) Create(context.Context, pgx.Tx, *domain.LedgerEntry) error {
	return errors.New("not implemented")
}
func (s *stubLedgerRepo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error) {
	if s.byTxFn == nil {
		return nil, nil
	}
	return s.byTxFn(ctx, transactionID)
}
func (s *stubLedgerRepo) ListByAccount(context.Context, uuid.UUID, int, int) ([]domain.LedgerEntry, error) {
	return nil, nil
}

type stubOutboxRepo struct {
	listFn  func(ctx context.Context, businessID uuid.UUID, status *domain.OutboxStatus, limit, offset int) ([]domain.WebhookOutbox, error)
	getFn   func(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error)
	resetFn func(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error)
}

func (s *stubOutboxRepo) Enqueue(context.Context, pgx.Tx, *domain.WebhookOutbox) error {
	return errors.New("not implemented")
}
func (s *stubOutboxRepo) ClaimDue(context.Context, pgx.Tx, int, time.Time) ([]domain.WebhookOutbox, error) {
	return nil, errors.New("not implemented")
}
func (s *stubOutboxRepo) MarkDelivered(context.Context, pgx.Tx, uuid.UUID, time.Time) error {
	return errors.New("not implemented")
}
func (s *stubOutboxRepo) ScheduleRetry(context.Context, pgx.Tx, uuid.UUID, int, string, time.Time) error {
	return errors.New("not implemented")
}
func (s *stubOutboxRepo) MarkFailed(context.Context, pgx.Tx, uuid.UUID, int, string) error {
	return errors.New("not implemented")
}
func (s *stubOutboxRepo) ResetForRetry(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error) {
	if s.resetFn == nil {
		return nil, nil
	}
	return s.resetFn(ctx, id, businessID)
}
func (s *stubOutboxRepo) GetByID(ctx context.Context, id, businessID uuid.UUID) (*domain.WebhookOutbox, error) {
	if s.getFn == nil {
		return nil, nil
	}
	return s.getFn(ctx, id, businessID)
}
func (s *stubOutboxRepo) List(ctx context.Context, businessID uuid.UUID, status *domain.OutboxStatus, limit, offset int) ([]domain.WebhookOutbox, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, businessID, status, limit, offset)
}

// --- Helpers ---

func testContext(t *testing.T, method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func authenticate(c *gin.Context, businessID uuid.UUID) {
	c.Set(middleware.CtxBusinessID, businessID)
	c.Set(middleware.CtxApiKey, &domain.ApiKey{ID: uuid.New(), BusinessID: businessID, RateLimitPerMinute: 100})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

// --- Business Handler Tests ---

func TestBusinessCreate_Success(t *testing.T) {
	businessID := uuid.New()
	url := "https://example.com/hooks"
	svc := &stubBusinessSvc{createFn: func(_ context.Context, params ports.CreateBusinessParams) (*ports.BusinessSignup, error) {
		assert.Equal(t, "Acme", params.Name)
		assert.Equal(t, "ops@acme.test", params.Email)
		require.NotNil(t, params.WebhookURL)
		return &ports.BusinessSignup{
			Business: &domain.Business{
				ID: businessID, Name: params.Name, Email: params.Email,
				WebhookURL: params.WebhookURL, CreatedAt: time.Now().UTC(),
			},
			ApiKey:        &domain.GeneratedApiKey{ID: uuid.New(), Key: "payx_rawkey1", Prefix: "payx_rawkey1"[:domain.PrefixLen]},
			WebhookSecret: "whsec",
		}, nil
	}}
	h := NewBusinessHandler(svc, &stubBusinessRepo{})

	c, w := testContext(t, http.MethodPost, "/v1/businesses", dto.CreateBusinessRequest{
		Name: "Acme", Email: "ops@acme.test", WebhookURL: &url,
	})
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp dto.BusinessSignupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, businessID.String(), resp.ID)
	assert.Equal(t, "payx_rawkey1", resp.ApiKey)
	assert.Equal(t, "whsec", resp.WebhookSecret)
}

func TestBusinessCreate_ValidationError(t *testing.T) {
	h := NewBusinessHandler(&stubBusinessSvc{}, &stubBusinessRepo{})

	c, w := testContext(t, http.MethodPost, "/v1/businesses", map[string]string{"name": "Acme"})
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorCode(t, w))
}

func TestBusinessUpdate_OtherBusinessReadsAsNotFound(t *testing.T) {
	h := NewBusinessHandler(&stubBusinessSvc{}, &stubBusinessRepo{})

	other := uuid.New()
	name := "New Name"
	c, w := testContext(t, http.MethodPut, "/v1/businesses/"+other.String(), dto.UpdateBusinessRequest{Name: &name})
	c.Params = gin.Params{{Key: "id", Value: other.String()}}
	authenticate(c, uuid.New())

	h.Update(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "business_not_found", errorCode(t, w))
}

// --- Account Handler Tests ---

func TestAccountCreate_Defaults(t *testing.T) {
	businessID := uuid.New()
	var created *domain.Account
	repo := &stubAccountRepo{createFn: func(_ context.Context, account *domain.Account) error {
		created = account
		return nil
	}}
	h := NewAccountHandler(repo, &stubTxRepo{}, &stubLedgerRepo{})

	c, w := testContext(t, http.MethodPost, "/v1/accounts", map[string]string{})
	authenticate(c, businessID)
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, created)
	assert.Equal(t, businessID, created.BusinessID)
	assert.Equal(t, "checking", created.AccountType)
	assert.Equal(t, "USD", created.Currency)
	assert.True(t, created.Balance.IsZero())
	assert.True(t, created.AvailableBalance.IsZero())
	assert.Equal(t, int64(1), created.Version)
}

func TestAccountCreate_InitialBalance(t *testing.T) {
	repo := &stubAccountRepo{}
	h := NewAccountHandler(repo, &stubTxRepo{}, &stubLedgerRepo{})

	balance := "250.75"
	c, w := testContext(t, http.MethodPost, "/v1/accounts", dto.CreateAccountRequest{
		AccountType: "savings", Currency: "EUR", InitialBalance: &balance,
	})
	authenticate(c, uuid.New())
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp domain.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "savings", resp.AccountType)
	assert.Equal(t, "EUR", resp.Currency)
	assert.True(t, resp.Balance.Equal(decimal.RequireFromString("250.75")))
}

func TestAccountCreate_NegativeBalanceRejected(t *testing.T) {
	h := NewAccountHandler(&stubAccountRepo{}, &stubTxRepo{}, &stubLedgerRepo{})

	balance := "-1"
	c, w := testContext(t, http.MethodPost, "/v1/accounts", dto.CreateAccountRequest{InitialBalance: &balance})
	authenticate(c, uuid.New())
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorCode(t, w))
}

func TestAccountGet_ForeignAccountReadsAsNotFound(t *testing.T) {
	accountID := uuid.New()
	repo := &stubAccountRepo{getFn: func(_ context.Context, id uuid.UUID) (*domain.Account, error) {
		return &domain.Account{ID: id, BusinessID: uuid.New(), Currency: "USD"}, nil
	}}
	h := NewAccountHandler(repo, &stubTxRepo{}, &stubLedgerRepo{})

	c, w := testContext(t, http.MethodGet, "/v1/accounts/"+accountID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: accountID.String()}}
	authenticate(c, uuid.New())
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "account_not_found", errorCode(t, w))
}

func TestAccountListTransactions_FiltersByAccount(t *testing.T) {
	businessID := uuid.New()
	accountID := uuid.New()
	accountRepo := &stubAccountRepo{getFn: func(_ context.Context, id uuid.UUID) (*domain.Account, error) {
		return &domain.Account{ID: id, BusinessID: businessID, Currency: "USD"}, nil
	}}
	txRepo := &stubTxRepo{listFn: func(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
		require.NotNil(t, params.AccountID)
		assert.Equal(t, accountID, *params.AccountID)
		return []domain.Transaction{{ID: uuid.New(), Type: domain.TransactionTypeCredit}}, nil
	}}
	h := NewAccountHandler(accountRepo, txRepo, &stubLedgerRepo{})

	c, w := testContext(t, http.MethodGet, "/v1/accounts/"+accountID.String()+"/transactions", nil)
	c.Params = gin.Params{{Key: "id", Value: accountID.String()}}
	authenticate(c, businessID)
	h.ListTransactions(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Transaction Handler Tests ---

func TestTransactionCreate_Fresh(t *testing.T) {
	destination := uuid.New()
	svc := &stubLedgerSvc{applyFn: func(_ context.Context, req ports.ApplyRequest) (*domain.Transaction, bool, error) {
		assert.Equal(t, domain.TransactionTypeCredit, req.Type)
		require.NotNil(t, req.DestinationAccountID)
		assert.Equal(t, destination, *req.DestinationAccountID)
		assert.True(t, req.Amount.Equal(decimal.RequireFromString("100.50")))
		require.NotNil(t, req.IdempotencyKey)
		assert.Equal(t, "key-1", *req.IdempotencyKey)
		return &domain.Transaction{ID: uuid.New(), Type: req.Type, Status: domain.TransactionStatusCompleted}, false, nil
	}}
	h := NewTransactionHandler(svc, &stubTxRepo{}, &stubLedgerRepo{})

	dest := destination.String()
	c, w := testContext(t, http.MethodPost, "/v1/transactions", dto.CreateTransactionRequest{
		Type: "credit", DestinationAccountID: &dest, Amount: "100.50", Currency: "USD",
	})
	c.Request.Header.Set(HeaderIdempotencyKey, "key-1")
	authenticate(c, uuid.New())
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestTransactionCreate_ReplayReturns200(t *testing.T) {
	txnID := uuid.New()
	svc := &stubLedgerSvc{applyFn: func(_ context.Context, _ ports.ApplyRequest) (*domain.Transaction, bool, error) {
		return &domain.Transaction{ID: txnID, Type: domain.TransactionTypeCredit}, true, nil
	}}
	h := NewTransactionHandler(svc, &stubTxRepo{}, &stubLedgerRepo{})

	dest := uuid.New().String()
	c, w := testContext(t, http.MethodPost, "/v1/transactions", dto.CreateTransactionRequest{
		Type: "credit", DestinationAccountID: &dest, Amount: "10", Currency: "USD",
	})
	c.Request.Header.Set(HeaderIdempotencyKey, "key-1")
	authenticate(c, uuid.New())
	h.Create(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp domain.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, txnID, resp.ID)
}

func TestTransactionCreate_BadAmount(t *testing.T) {
	h := NewTransactionHandler(&stubLedgerSvc{}, &stubTxRepo{}, &stubLedgerRepo{})

	dest := uuid.New().String()
	c, w := testContext(t, http.MethodPost, "/v1/transactions", dto.CreateTransactionRequest{
		Type: "credit", DestinationAccountID: &dest, Amount: "ten dollars", Currency: "USD",
	})
	authenticate(c, uuid.New())
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorCode(t, w))
}

func TestTransactionGet_IncludesEntries(t *testing.T) {
	txnID := uuid.New()
	txRepo := &stubTxRepo{getFn: func(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
		return &domain.Transaction{ID: id, Type: domain.TransactionTypeTransfer}, nil
	}}
	ledgerRepo := &stubLedgerRepo{byTxFn: func(_ context.Context, id uuid.UUID) ([]domain.LedgerEntry, error) {
		return []domain.LedgerEntry{
			{ID: uuid.New(), TransactionID: id, EntryType: domain.EntryTypeDebit},
			{ID: uuid.New(), TransactionID: id, EntryType: domain.EntryTypeCredit},
		}, nil
	}}
	h := NewTransactionHandler(&stubLedgerSvc{}, txRepo, ledgerRepo)

	c, w := testContext(t, http.MethodGet, "/v1/transactions/"+txnID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: txnID.String()}}
	h.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Transaction domain.Transaction   `json:"transaction"`
		Entries     []domain.LedgerEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, txnID, resp.Transaction.ID)
	assert.Len(t, resp.Entries, 2)
}

func TestTransactionGet_NotFound(t *testing.T) {
	h := NewTransactionHandler(&stubLedgerSvc{}, &stubTxRepo{}, &stubLedgerRepo{})

	id := uuid.New()
	c, w := testContext(t, http.MethodGet, "/v1/transactions/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "transaction_not_found", errorCode(t, w))
}

// --- Webhook Handler Tests ---

func TestWebhookSetEndpoint_RotatesSecret(t *testing.T) {
	businessID := uuid.New()
	var storedSecret *string
	repo := &stubBusinessRepo{setWebhookFn: func(_ context.Context, id uuid.UUID, url, secret *string) (*domain.Business, error) {
		assert.Equal(t, businessID, id)
		storedSecret = secret
		return &domain.Business{ID: id, WebhookURL: url, WebhookSecret: secret}, nil
	}}
	h := NewWebhookHandler(repo, &stubOutboxRepo{})

	c, w := testContext(t, http.MethodPost, "/v1/webhooks/endpoint", dto.SetWebhookEndpointRequest{URL: "https://example.com/hooks"})
	authenticate(c, businessID)
	h.SetEndpoint(c)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, storedSecret)
	var resp dto.WebhookEndpointResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Secret)
	assert.Equal(t, *storedSecret, *resp.Secret)
	assert.Equal(t, "https://example.com/hooks", resp.URL)
}

func TestWebhookGetEndpoint_NotConfigured(t *testing.T) {
	repo := &stubBusinessRepo{getFn: func(_ context.Context, id uuid.UUID) (*domain.Business, error) {
		return &domain.Business{ID: id}, nil
	}}
	h := NewWebhookHandler(repo, &stubOutboxRepo{})

	c, w := testContext(t, http.MethodGet, "/v1/webhooks/endpoint", nil)
	authenticate(c, uuid.New())
	h.GetEndpoint(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

func TestWebhookGetEndpoint_HidesSecret(t *testing.T) {
	url := "https://example.com/hooks"
	secret := "whsec"
	repo := &stubBusinessRepo{getFn: func(_ context.Context, id uuid.UUID) (*domain.Business, error) {
		return &domain.Business{ID: id, WebhookURL: &url, WebhookSecret: &secret}, nil
	}}
	h := NewWebhookHandler(repo, &stubOutboxRepo{})

	c, w := testContext(t, http.MethodGet, "/v1/webhooks/endpoint", nil)
	authenticate(c, uuid.New())
	h.GetEndpoint(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.WebhookEndpointResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, url, resp.URL)
	assert.Nil(t, resp.Secret)
}

func TestWebhookListDeliveries_InvalidStatus(t *testing.T) {
	h := NewWebhookHandler(&stubBusinessRepo{}, &stubOutboxRepo{})

	c, w := testContext(t, http.MethodGet, "/v1/webhooks/deliveries?status=bogus", nil)
	authenticate(c, uuid.New())
	h.ListDeliveries(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorCode(t, w))
}

func TestWebhookListDeliveries_StatusFilter(t *testing.T) {
	businessID := uuid.New()
	repo := &stubOutboxRepo{listFn: func(_ context.Context, gotBusiness uuid.UUID, status *domain.OutboxStatus, _, _ int) ([]domain.WebhookOutbox, error) {
		assert.Equal(t, businessID, gotBusiness)
		require.NotNil(t, status)
		assert.Equal(t, domain.OutboxStatusFailed, *status)
		return []domain.WebhookOutbox{{ID: uuid.New(), Status: domain.OutboxStatusFailed}}, nil
	}}
	h := NewWebhookHandler(&stubBusinessRepo{}, repo)

	c, w := testContext(t, http.MethodGet, "/v1/webhooks/deliveries?status=failed", nil)
	authenticate(c, businessID)
	h.ListDeliveries(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookRetryDelivery_NotFailed(t *testing.T) {
	h := NewWebhookHandler(&stubBusinessRepo{}, &stubOutboxRepo{})

	id := uuid.New()
	c, w := testContext(t, http.MethodPost, "/v1/webhooks/deliveries/"+id.String()+"/retry", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	authenticate(c, uuid.New())
	h.RetryDelivery(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

func TestWebhookRetryDelivery_Requeues(t *testing.T) {
	businessID := uuid.New()
	id := uuid.New()
	repo := &stubOutboxRepo{resetFn: func(_ context.Context, gotID, gotBusiness uuid.UUID) (*domain.WebhookOutbox, error) {
		assert.Equal(t, id, gotID)
		assert.Equal(t, businessID, gotBusiness)
		return &domain.WebhookOutbox{ID: id, Status: domain.OutboxStatusPending, Attempts: 0}, nil
	}}
	h := NewWebhookHandler(&stubBusinessRepo{}, repo)

	c, w := testContext(t, http.MethodPost, "/v1/webhooks/deliveries/"+id.String()+"/retry", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	authenticate(c, businessID)
	h.RetryDelivery(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp domain.WebhookOutbox
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.OutboxStatusPending, resp.Status)
}

// --- Router Tests ---

func testRouterDeps() RouterDeps {
	return RouterDeps{
		BusinessSvc:  &stubBusinessSvc{},
		LedgerSvc:    &stubLedgerSvc{},
		BusinessRepo: &stubBusinessRepo{},
		AccountRepo:  &stubAccountRepo{},
		TxRepo:       &stubTxRepo{},
		LedgerRepo:   &stubLedgerRepo{},
		OutboxRepo:   &stubOutboxRepo{},
		Logger:       zerolog.Nop(),
	}
}

func TestSetupRouter_AppliesRequestDeadline(t *testing.T) {
	deps := testRouterDeps()
	deps.RequestTimeout = 5 * time.Second
	r := SetupRouter(deps)

	var hasDeadline bool
	r.GET("/deadline-check", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deadline-check", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, hasDeadline)
}

func TestSetupRouter_ZeroTimeoutLeavesContextUnbounded(t *testing.T) {
	r := SetupRouter(testRouterDeps())

	var hasDeadline bool
	r.GET("/deadline-check", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deadline-check", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, hasDeadline)
}

// --- Health Handler Tests ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(context.Context) error { return s.err }
func (s stubChecker) Name() string               { return s.name }

func TestReadiness_Healthy(t *testing.T) {
	c, w := testContext(t, http.MethodGet, "/ready", nil)
	Readiness(stubChecker{name: "postgresql"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestReadiness_Degraded(t *testing.T) {
	c, w := testContext(t, http.MethodGet, "/ready", nil)
	Readiness(
		stubChecker{name: "postgresql"},
		stubChecker{name: "redis", err: errors.New("connection refused")},
	)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
}

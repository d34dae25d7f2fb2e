package handler

import (
	"strconv"
	"time"

	"payx/internal/adapter/http/dto"
	"payx/internal/adapter/http/middleware"
	"payx/internal/core/domain"
	"payx/internal/core/ports"
	"payx/pkg/apperror"
	"payx/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultAccountType = "checking"
	defaultCurrency    = "USD"
)

// AccountHandler handles account endpoints.
type AccountHandler struct {
	accountRepo ports.AccountRepository
	txRepo      ports.TransactionRepository
	ledgerRepo  ports.LedgerRepository
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountRepo ports.AccountRepository, txRepo ports.TransactionRepository, ledgerRepo ports.LedgerRepository) *AccountHandler {
	return &AccountHandler{accountRepo: accountRepo, txRepo: txRepo, ledgerRepo: ledgerRepo}
}

// Create handles POST /v1/accounts.
func (h *AccountHandler) Create(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}

	var req dto.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	balance := decimal.Zero
	if req.InitialBalance != nil {
		var err error
		balance, err = decimal.NewFromString(*req.InitialBalance)
		if err != nil {
			response.Error(c, apperror.Validation("initial_balance must be a decimal string"))
			return
		}
		if balance.IsNegative() {
			response.Error(c, apperror.Validation("initial_balance must not be negative"))
			return
		}
	}

	accountType := req.AccountType
	if accountType == "" {
		accountType = defaultAccountType
	}
	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:               uuid.New(),
		BusinessID:       businessID,
		AccountType:      accountType,
		Currency:         currency,
		Balance:          balance,
		AvailableBalance: balance,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.accountRepo.Create(c.Request.Context(), account); err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	response.Created(c, account)
}

// List handles GET /v1/accounts, scoped to the caller's business.
func (h *AccountHandler) List(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}

	limit, offset := pagination(c)
	accounts, err := h.accountRepo.List(c.Request.Context(), &businessID, limit, offset)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	response.OK(c, accounts)
}

// Get handles GET /v1/accounts/:id.
func (h *AccountHandler) Get(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}
	response.OK(c, account)
}

// ListTransactions handles GET /v1/accounts/:id/transactions. It
// returns every transaction touching the account on either leg.
func (h *AccountHandler) ListTransactions(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	txns, err := h.txRepo.List(c.Request.Context(), ports.TransactionListParams{
		AccountID: &account.ID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	response.OK(c, txns)
}

// ListEntries handles GET /v1/accounts/:id/entries, the account's
// ledger history.
func (h *AccountHandler) ListEntries(c *gin.Context) {
	account, ok := h.ownedAccount(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	entries, err := h.ledgerRepo.ListByAccount(c.Request.Context(), account.ID, limit, offset)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	response.OK(c, entries)
}

// ownedAccount loads the path account and enforces business scope.
// Foreign accounts read as not-found.
func (h *AccountHandler) ownedAccount(c *gin.Context) (*domain.Account, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid account id"))
		return nil, false
	}
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return nil, false
	}

	account, err := h.accountRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return nil, false
	}
	if account == nil || account.BusinessID != businessID {
		response.Error(c, apperror.ErrAccountNotFound(id))
		return nil, false
	}
	return account, true
}

// pagination reads limit/offset query params with sane bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

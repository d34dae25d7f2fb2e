package handler

import (
	"payx/internal/adapter/http/dto"
	"payx/internal/core/domain"
	"payx/internal/core/ports"
	"payx/pkg/apperror"
	"payx/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HeaderIdempotencyKey is the request header carrying the client's
// idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// TransactionHandler handles the money-movement endpoints.
type TransactionHandler struct {
	ledgerSvc  ports.LedgerService
	txRepo     ports.TransactionRepository
	ledgerRepo ports.LedgerRepository
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(ledgerSvc ports.LedgerService, txRepo ports.TransactionRepository, ledgerRepo ports.LedgerRepository) *TransactionHandler {
	return &TransactionHandler{ledgerSvc: ledgerSvc, txRepo: txRepo, ledgerRepo: ledgerRepo}
}

// Create handles POST /v1/transactions. A replayed idempotency key
// returns 200 with the original transaction; a fresh apply returns 201.
func (h *TransactionHandler) Create(c *gin.Context) {
	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation("amount must be a decimal string"))
		return
	}

	apply := ports.ApplyRequest{
		Type:        domain.TransactionType(req.Type),
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if apply.SourceAccountID, err = parseOptionalUUID(req.SourceAccountID); err != nil {
		response.Error(c, apperror.Validation("source_account_id must be a uuid"))
		return
	}
	if apply.DestinationAccountID, err = parseOptionalUUID(req.DestinationAccountID); err != nil {
		response.Error(c, apperror.Validation("destination_account_id must be a uuid"))
		return
	}
	if key := c.GetHeader(HeaderIdempotencyKey); key != "" {
		apply.IdempotencyKey = &key
	}

	txn, replayed, err := h.ledgerSvc.Apply(c.Request.Context(), apply)
	if err != nil {
		response.Error(c, err)
		return
	}
	if replayed {
		response.OK(c, txn)
		return
	}
	response.Created(c, txn)
}

// Get handles GET /v1/transactions/:id and returns the transaction
// together with its ledger entries.
func (h *TransactionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	txn, err := h.txRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	if txn == nil {
		response.Error(c, apperror.ErrTransactionNotFound(id))
		return
	}

	entries, err := h.ledgerRepo.ListByTransaction(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}

	response.OK(c, gin.H{
		"transaction": txn,
		"entries":     entries,
	})
}

// List handles GET /v1/transactions with an optional account_id filter.
func (h *TransactionHandler) List(c *gin.Context) {
	limit, offset := pagination(c)
	params := ports.TransactionListParams{Limit: limit, Offset: offset}

	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("account_id must be a uuid"))
			return
		}
		params.AccountID = &id
	}

	txns, err := h.txRepo.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	response.OK(c, txns)
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

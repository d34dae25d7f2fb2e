package apperror

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation ----

func Validation(message string) *AppError {
	return New("validation_error", message, http.StatusBadRequest)
}

func ErrCurrencyMismatch(from, to string) *AppError {
	return New("currency_mismatch", fmt.Sprintf("currency mismatch: from %s, to %s", from, to), http.StatusBadRequest)
}

// ---- Authentication & rate limiting ----

func ErrInvalidApiKey() *AppError {
	return New("invalid_api_key", "invalid api key", http.StatusUnauthorized)
}

func ErrRateLimitExceeded() *AppError {
	return New("rate_limit_exceeded", "rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Not found ----

func ErrNotFound(message string) *AppError {
	return New("not_found", message, http.StatusNotFound)
}

func ErrAccountNotFound(id uuid.UUID) *AppError {
	return New("account_not_found", fmt.Sprintf("account not found: %s", id), http.StatusNotFound)
}

func ErrBusinessNotFound(id uuid.UUID) *AppError {
	return New("business_not_found", fmt.Sprintf("business not found: %s", id), http.StatusNotFound)
}

func ErrTransactionNotFound(id uuid.UUID) *AppError {
	return New("transaction_not_found", fmt.Sprintf("transaction not found: %s", id), http.StatusNotFound)
}

// ---- Engine business rules ----

// ErrInsufficientFunds carries the available/requested figures the client
// needs to reconcile a rejected debit.
func ErrInsufficientFunds(accountID uuid.UUID, available, requested decimal.Decimal) *AppError {
	e := New("insufficient_funds",
		fmt.Sprintf("insufficient funds on account %s: available %s, requested %s",
			accountID, available.StringFixed(4), requested.StringFixed(4)),
		http.StatusUnprocessableEntity)
	e.Details = map[string]any{
		"available": available.StringFixed(4),
		"requested": requested.StringFixed(4),
	}
	return e
}

func ErrIdempotencyConflict(key string) *AppError {
	return New("idempotency_conflict", fmt.Sprintf("concurrent request with idempotency key %q", key), http.StatusConflict)
}

// ---- System ----

func ErrDatabase(err error) *AppError {
	return Wrap("database_error", "database error", http.StatusInternalServerError, err)
}

func ErrSerialization(err error) *AppError {
	return Wrap("serialization_error", "serialization error", http.StatusInternalServerError, err)
}

func InternalError(err error) *AppError {
	return Wrap("internal_error", "internal error", http.StatusInternalServerError, err)
}

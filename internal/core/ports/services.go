package ports

import (
	"context"
	"encoding/json"
	"time"

	"payx/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// SignatureService signs webhook payloads with HMAC-SHA256.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// IdempotencyCache is an optional fast-path cache for replayed requests.
// All methods are best-effort; errors fall through to the database.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // cached transaction JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// ApplyRequest carries one validated money-movement request into the engine.
type ApplyRequest struct {
	Type                 domain.TransactionType
	SourceAccountID      *uuid.UUID
	DestinationAccountID *uuid.UUID
	Amount               decimal.Decimal
	Currency             string
	Description          *string
	Metadata             json.RawMessage
	IdempotencyKey       *string
}

// LedgerService is the transaction engine.
type LedgerService interface {
	// Apply executes one credit, debit or transfer atomically. The bool
	// reports an idempotent replay (existing transaction returned).
	Apply(ctx context.Context, req ApplyRequest) (*domain.Transaction, bool, error)
}

// ApiKeyService issues and verifies API keys.
type ApiKeyService interface {
	// Issue mints a key for a business. The raw key is returned exactly once.
	Issue(ctx context.Context, businessID uuid.UUID, name *string) (*domain.ApiKey, *domain.GeneratedApiKey, error)
	// Verify authenticates a bearer token and returns the matching key.
	Verify(ctx context.Context, token string) (*domain.ApiKey, error)
}

// CreateBusinessParams holds input for business signup.
type CreateBusinessParams struct {
	Name       string
	Email      string
	WebhookURL *string
}

// BusinessSignup is the signup result; ApiKey and WebhookSecret are shown
// only at creation.
type BusinessSignup struct {
	Business      *domain.Business
	ApiKey        *domain.GeneratedApiKey
	WebhookSecret string
}

// BusinessService defines tenant signup.
type BusinessService interface {
	Create(ctx context.Context, params CreateBusinessParams) (*BusinessSignup, error)
}

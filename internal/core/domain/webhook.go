package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetrying  OutboxStatus = "retrying"
	OutboxStatusDelivered OutboxStatus = "delivered"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// EventTransactionCompleted is emitted for every committed transaction.
const EventTransactionCompleted = "transaction.completed"

// DefaultMaxAttempts bounds delivery retries per outbox row.
const DefaultMaxAttempts = 5

// WebhookOutbox is a durable delivery task, written in the same database
// transaction as the state change that produced it. Payload holds the
// exact bytes that will be transmitted.
type WebhookOutbox struct {
	ID            uuid.UUID       `json:"id"`
	BusinessID    uuid.UUID       `json:"business_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Status        OutboxStatus    `json:"status"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

// WebhookPayload is the JSON body POSTed to a business webhook URL.
type WebhookPayload struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// NewWebhookPayload wraps a serialized transaction in the delivery
// envelope with a freshly generated payload id.
func NewWebhookPayload(eventType string, data json.RawMessage) WebhookPayload {
	return WebhookPayload{
		ID:        uuid.New(),
		EventType: eventType,
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}
}

// SignPayload computes "sha256=" || hex(HMAC-SHA256(secret, payload)).
// The payload bytes must be byte-for-byte identical to the transmitted
// body.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

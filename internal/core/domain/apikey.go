package domain

import (
	"time"

	"github.com/google/uuid"
)

// KeyPrefix tags every issued API key. The first PrefixLen characters of
// the full key string (tag included) are stored in clear for lookup.
const (
	KeyPrefix = "payx_"
	PrefixLen = 12
)

// ApiKey is the credential for a business. The raw key is only available
// at creation; the store holds a salted Argon2id hash.
type ApiKey struct {
	ID                 uuid.UUID  `json:"id"`
	BusinessID         uuid.UUID  `json:"business_id"`
	KeyHash            string     `json:"-"` // Never expose
	Prefix             string     `json:"key_prefix"`
	Name               *string    `json:"name,omitempty"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
}

// IsValid reports whether the key may authenticate a request right now.
func (k *ApiKey) IsValid() bool {
	if k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now().UTC()) {
		return false
	}
	return true
}

// GeneratedApiKey carries the raw key back to the caller exactly once.
type GeneratedApiKey struct {
	ID     uuid.UUID `json:"id"`
	Key    string    `json:"key"`
	Prefix string    `json:"prefix"`
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payx/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ApiKeyRepo implements ports.ApiKeyRepository.
type ApiKeyRepo struct {
	pool Pool
}

// NewApiKeyRepo creates a new ApiKeyRepo.
func NewApiKeyRepo(pool Pool) *ApiKeyRepo {
	return &ApiKeyRepo{pool: pool}
}

const apiKeyColumns = `id, business_id, key_hash, key_prefix, name, rate_limit_per_minute, created_at, expires_at, revoked_at, last_used_at`

// Create inserts a new API key.
func (r *ApiKeyRepo) Create(ctx context.Context, k *domain.ApiKey) error {
	query := `INSERT INTO api_keys (id, business_id, key_hash, key_prefix, name, rate_limit_per_minute, created_at, expires_at, revoked_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		k.ID, k.BusinessID, k.KeyHash, k.Prefix, k.Name,
		k.RateLimitPerMinute, k.CreatedAt, k.ExpiresAt, k.RevokedAt, k.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetByPrefix fetches the non-revoked key with the given prefix, or nil.
func (r *ApiKeyRepo) GetByPrefix(ctx context.Context, prefix string) (*domain.ApiKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE key_prefix = $1 AND revoked_at IS NULL`

	k := &domain.ApiKey{}
	err := r.pool.QueryRow(ctx, query, prefix).Scan(
		&k.ID, &k.BusinessID, &k.KeyHash, &k.Prefix, &k.Name,
		&k.RateLimitPerMinute, &k.CreatedAt, &k.ExpiresAt, &k.RevokedAt, &k.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return k, nil
}

// TouchLastUsed records key usage. Best-effort: callers ignore the error.
func (r *ApiKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch api key last_used_at: %w", err)
	}
	return nil
}

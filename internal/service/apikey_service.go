package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"payx/internal/core/domain"
	"payx/internal/core/ports"
	"payx/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ApiKeyServiceImpl implements ports.ApiKeyService.
type ApiKeyServiceImpl struct {
	keyRepo          ports.ApiKeyRepository
	hashSvc          ports.HashService
	defaultRateLimit int
	log              zerolog.Logger
}

// NewApiKeyService creates a new ApiKeyServiceImpl.
func NewApiKeyService(keyRepo ports.ApiKeyRepository, hashSvc ports.HashService, defaultRateLimit int, log zerolog.Logger) *ApiKeyServiceImpl {
	return &ApiKeyServiceImpl{
		keyRepo:          keyRepo,
		hashSvc:          hashSvc,
		defaultRateLimit: defaultRateLimit,
		log:              log,
	}
}

// Issue mints a key for a business. The raw key is returned exactly once;
// only its Argon2id hash and lookup prefix are stored.
func (s *ApiKeyServiceImpl) Issue(ctx context.Context, businessID uuid.UUID, name *string) (*domain.ApiKey, *domain.GeneratedApiKey, error) {
	raw, err := generateRawKey()
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("generate api key: %w", err))
	}

	hash, err := s.hashSvc.Hash(raw)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("hash api key: %w", err))
	}

	key := &domain.ApiKey{
		ID:                 uuid.New(),
		BusinessID:         businessID,
		KeyHash:            hash,
		Prefix:             raw[:domain.PrefixLen],
		Name:               name,
		RateLimitPerMinute: s.defaultRateLimit,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, nil, apperror.ErrDatabase(fmt.Errorf("store api key: %w", err))
	}

	s.log.Info().
		Str("key_id", key.ID.String()).
		Str("business_id", businessID.String()).
		Str("prefix", key.Prefix).
		Msg("api key issued")

	return key, &domain.GeneratedApiKey{
		ID:     key.ID,
		Key:    raw,
		Prefix: key.Prefix,
	}, nil
}

// Verify authenticates a bearer token. Lookup goes through the stored
// clear-text prefix; the full token is then checked against the Argon2id
// hash. All failure modes collapse to the same error so callers leak
// nothing about which check failed.
func (s *ApiKeyServiceImpl) Verify(ctx context.Context, token string) (*domain.ApiKey, error) {
	if len(token) < domain.PrefixLen {
		return nil, apperror.ErrInvalidApiKey()
	}

	key, err := s.keyRepo.GetByPrefix(ctx, token[:domain.PrefixLen])
	if err != nil {
		return nil, apperror.ErrDatabase(fmt.Errorf("lookup api key: %w", err))
	}
	if key == nil || !key.IsValid() {
		return nil, apperror.ErrInvalidApiKey()
	}

	ok, err := s.hashSvc.Verify(token, key.KeyHash)
	if err != nil || !ok {
		return nil, apperror.ErrInvalidApiKey()
	}

	// Best-effort usage tracking
	if err := s.keyRepo.TouchLastUsed(ctx, key.ID, time.Now().UTC()); err != nil {
		s.log.Warn().Err(err).Str("key_id", key.ID.String()).Msg("failed to update last_used_at")
	}

	return key, nil
}

// generateRawKey draws 32 random bytes and prepends the service tag.
func generateRawKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return domain.KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"payx/internal/core/domain"
	"payx/internal/core/ports"
	"payx/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BusinessServiceImpl implements ports.BusinessService.
type BusinessServiceImpl struct {
	businessRepo ports.BusinessRepository
	apiKeySvc    ports.ApiKeyService
	log          zerolog.Logger
}

// NewBusinessService creates a new BusinessServiceImpl.
func NewBusinessService(businessRepo ports.BusinessRepository, apiKeySvc ports.ApiKeyService, log zerolog.Logger) *BusinessServiceImpl {
	return &BusinessServiceImpl{
		businessRepo: businessRepo,
		apiKeySvc:    apiKeySvc,
		log:          log,
	}
}

// Create signs up a tenant: the business row, a webhook secret and the
// first API key. Secret and raw key are returned only here.
func (s *BusinessServiceImpl) Create(ctx context.Context, params ports.CreateBusinessParams) (*ports.BusinessSignup, error) {
	secret, err := domain.NewWebhookSecret()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}

	now := time.Now().UTC()
	business := &domain.Business{
		ID:            uuid.New(),
		Name:          params.Name,
		Email:         params.Email,
		WebhookURL:    params.WebhookURL,
		WebhookSecret: &secret,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.businessRepo.Create(ctx, business); err != nil {
		return nil, apperror.ErrDatabase(fmt.Errorf("create business: %w", err))
	}

	_, generated, err := s.apiKeySvc.Issue(ctx, business.ID, nil)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("business_id", business.ID.String()).
		Str("email", business.Email).
		Msg("business created")

	return &ports.BusinessSignup{
		Business:      business,
		ApiKey:        generated,
		WebhookSecret: secret,
	}, nil
}

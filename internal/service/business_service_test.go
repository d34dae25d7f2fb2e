package service

import (
	"context"
	"testing"

	"payx/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessService_Create(t *testing.T) {
	businessRepo := newMemBusinessRepo()
	keyRepo := newMemApiKeyRepo()
	apiKeySvc := NewApiKeyService(keyRepo, NewArgon2HashService(), 100, zerolog.Nop())
	svc := NewBusinessService(businessRepo, apiKeySvc, zerolog.Nop())

	url := "https://hooks.acme.test/payx"
	signup, err := svc.Create(context.Background(), ports.CreateBusinessParams{
		Name:       "Acme",
		Email:      "ops@acme.test",
		WebhookURL: &url,
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme", signup.Business.Name)
	assert.NotEmpty(t, signup.WebhookSecret)
	require.NotNil(t, signup.ApiKey)
	assert.NotEmpty(t, signup.ApiKey.Key)

	stored, err := businessRepo.GetByID(context.Background(), signup.Business.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.WebhookSecret)
	assert.Equal(t, signup.WebhookSecret, *stored.WebhookSecret)
	require.NotNil(t, stored.WebhookURL)
	assert.Equal(t, url, *stored.WebhookURL)

	// The issued key authenticates
	verified, err := apiKeySvc.Verify(context.Background(), signup.ApiKey.Key)
	require.NoError(t, err)
	assert.Equal(t, signup.Business.ID, verified.BusinessID)
}

func TestBusinessService_Create_WithoutWebhook(t *testing.T) {
	businessRepo := newMemBusinessRepo()
	apiKeySvc := NewApiKeyService(newMemApiKeyRepo(), NewArgon2HashService(), 100, zerolog.Nop())
	svc := NewBusinessService(businessRepo, apiKeySvc, zerolog.Nop())

	signup, err := svc.Create(context.Background(), ports.CreateBusinessParams{
		Name:  "NoHooks",
		Email: "ops@nohooks.test",
	})
	require.NoError(t, err)
	assert.Nil(t, signup.Business.WebhookURL)
	// Secret is minted regardless; it activates when a URL is set later.
	assert.NotEmpty(t, signup.WebhookSecret)
}

package dto

import "encoding/json"

// CreateBusinessRequest is the request body for business signup.
type CreateBusinessRequest struct {
	Name       string  `json:"name" binding:"required,min=1,max=100"`
	Email      string  `json:"email" binding:"required,email"`
	WebhookURL *string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// UpdateBusinessRequest is the request body for business updates.
// Omitted fields keep their stored values.
type UpdateBusinessRequest struct {
	Name       *string `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
	WebhookURL *string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// BusinessSignupResponse is returned once at signup. The raw API key and
// the webhook secret are not retrievable afterwards.
type BusinessSignupResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	WebhookURL    *string `json:"webhook_url,omitempty"`
	WebhookSecret string  `json:"webhook_secret"`
	ApiKey        string  `json:"api_key"`
	ApiKeyPrefix  string  `json:"api_key_prefix"`
	CreatedAt     string  `json:"created_at"`
}

// CreateAccountRequest is the request body for account creation.
// AccountType defaults to "checking", Currency to "USD", balance to 0.
type CreateAccountRequest struct {
	AccountType    string  `json:"account_type" binding:"omitempty,min=1,max=50"`
	Currency       string  `json:"currency" binding:"omitempty,len=3"`
	InitialBalance *string `json:"initial_balance,omitempty"`
}

// CreateTransactionRequest is the request body for the engine. Amount is
// a decimal string; binary floats never touch money.
type CreateTransactionRequest struct {
	Type                 string          `json:"type" binding:"required,oneof=credit debit transfer"`
	SourceAccountID      *string         `json:"source_account_id,omitempty" binding:"omitempty,uuid"`
	DestinationAccountID *string         `json:"destination_account_id,omitempty" binding:"omitempty,uuid"`
	Amount               string          `json:"amount" binding:"required"`
	Currency             string          `json:"currency" binding:"required,len=3"`
	Description          *string         `json:"description,omitempty" binding:"omitempty,max=500"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`
}

// SetWebhookEndpointRequest registers (or replaces) the webhook URL and
// rotates the signing secret.
type SetWebhookEndpointRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// UpdateWebhookEndpointRequest changes the URL, keeping the secret.
type UpdateWebhookEndpointRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// WebhookEndpointResponse describes the configured endpoint. Secret is
// present only on registration (rotation).
type WebhookEndpointResponse struct {
	BusinessID string  `json:"business_id"`
	URL        string  `json:"url"`
	Secret     *string `json:"secret,omitempty"`
}

package handler

import (
	"payx/internal/adapter/http/dto"
	"payx/internal/adapter/http/middleware"
	"payx/internal/core/domain"
	"payx/internal/core/ports"
	"payx/pkg/apperror"
	"payx/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler manages a business's webhook endpoint and its delivery
// history. All routes are scoped to the authenticated business.
type WebhookHandler struct {
	businessRepo ports.BusinessRepository
	outboxRepo   ports.OutboxRepository
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(businessRepo ports.BusinessRepository, outboxRepo ports.OutboxRepository) *WebhookHandler {
	return &WebhookHandler{businessRepo: businessRepo, outboxRepo: outboxRepo}
}

// SetEndpoint handles POST /v1/webhooks/endpoint. Registering a URL
// always rotates the signing secret; the new secret is returned once.
func (h *WebhookHandler) SetEndpoint(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}

	var req dto.SetWebhookEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	secret, err := domain.NewWebhookSecret()
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	business, err := h.businessRepo.SetWebhook(c.Request.Context(), businessID, &req.URL, &secret)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	if business == nil {
		response.Error(c, apperror.ErrBusinessNotFound(businessID))
		return
	}

	response.OK(c, dto.WebhookEndpointResponse{
		BusinessID: businessID.String(),
		URL:        req.URL,
		Secret:     &secret,
	})
}

// GetEndpoint handles GET /v1/webhooks/endpoint. The secret is never
// returned here.
func (h *WebhookHandler) GetEndpoint(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}

	business, err := h.businessRepo.GetByID(c.Request.Context(), businessID)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	if business == nil || business.WebhookURL == nil {
		response.Error(c, apperror.ErrNotFound("webhook endpoint not configured"))
		return
	}

	response.OK(c, dto.WebhookEndpointResponse{
		BusinessID: businessID.String(),
		URL:        *business.WebhookURL,
	})
}

// UpdateEndpoint handles PUT /v1/webhooks/endpoint. The URL changes, the
// secret stays.
func (h *WebhookHandler) UpdateEndpoint(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}

	var req dto.UpdateWebhookEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	current, err := h.businessRepo.GetByID(c.Request.Context(), businessID)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	if current == nil || current.WebhookURL == nil {
		response.Error(c, apperror.ErrNotFound("webhook endpoint not configured"))
		return
	}

	if _, err := h.businessRepo.Update(c.Request.Context(), businessID, nil, &req.URL); err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}

	response.OK(c, dto.WebhookEndpointResponse{
		BusinessID: businessID.String(),
		URL:        req.URL,
	})
}

// DeleteEndpoint handles DELETE /v1/webhooks/endpoint, clearing both the
// URL and the secret.
func (h *WebhookHandler) DeleteEndpoint(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}

	if _, err := h.businessRepo.SetWebhook(c.Request.Context(), businessID, nil, nil); err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	response.NoContent(c)
}

// ListDeliveries handles GET /v1/webhooks/deliveries with an optional
// status filter.
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}

	var status *domain.OutboxStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.OutboxStatus(raw)
		switch s {
		case domain.OutboxStatusPending, domain.OutboxStatusRetrying, domain.OutboxStatusDelivered, domain.OutboxStatusFailed:
			status = &s
		default:
			response.Error(c, apperror.Validation("invalid status filter"))
			return
		}
	}

	limit, offset := pagination(c)
	deliveries, err := h.outboxRepo.List(c.Request.Context(), businessID, status, limit, offset)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	response.OK(c, deliveries)
}

// GetDelivery handles GET /v1/webhooks/deliveries/:id.
func (h *WebhookHandler) GetDelivery(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid delivery id"))
		return
	}

	delivery, err := h.outboxRepo.GetByID(c.Request.Context(), id, businessID)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	if delivery == nil {
		response.Error(c, apperror.ErrNotFound("webhook delivery not found"))
		return
	}
	response.OK(c, delivery)
}

// RetryDelivery handles POST /v1/webhooks/deliveries/:id/retry. Only
// failed deliveries can be requeued.
func (h *WebhookHandler) RetryDelivery(c *gin.Context) {
	businessID, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidApiKey())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid delivery id"))
		return
	}

	delivery, err := h.outboxRepo.ResetForRetry(c.Request.Context(), id, businessID)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	if delivery == nil {
		response.Error(c, apperror.ErrNotFound("webhook delivery not found"))
		return
	}
	response.OK(c, delivery)
}

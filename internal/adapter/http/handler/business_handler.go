package handler

import (
	"time"

	"payx/internal/adapter/http/dto"
	"payx/internal/adapter/http/middleware"
	"payx/internal/core/ports"
	"payx/pkg/apperror"
	"payx/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BusinessHandler handles tenant endpoints.
type BusinessHandler struct {
	businessSvc  ports.BusinessService
	businessRepo ports.BusinessRepository
}

// NewBusinessHandler creates a new BusinessHandler.
func NewBusinessHandler(businessSvc ports.BusinessService, businessRepo ports.BusinessRepository) *BusinessHandler {
	return &BusinessHandler{businessSvc: businessSvc, businessRepo: businessRepo}
}

// Create handles POST /v1/businesses (public signup).
func (h *BusinessHandler) Create(c *gin.Context) {
	var req dto.CreateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	signup, err := h.businessSvc.Create(c.Request.Context(), ports.CreateBusinessParams{
		Name:       req.Name,
		Email:      req.Email,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.BusinessSignupResponse{
		ID:            signup.Business.ID.String(),
		Name:          signup.Business.Name,
		Email:         signup.Business.Email,
		WebhookURL:    signup.Business.WebhookURL,
		WebhookSecret: signup.WebhookSecret,
		ApiKey:        signup.ApiKey.Key,
		ApiKeyPrefix:  signup.ApiKey.Prefix,
		CreatedAt:     signup.Business.CreatedAt.Format(time.RFC3339),
	})
}

// List handles GET /v1/businesses.
func (h *BusinessHandler) List(c *gin.Context) {
	limit, offset := pagination(c)
	businesses, err := h.businessRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	response.OK(c, businesses)
}

// Get handles GET /v1/businesses/:id.
func (h *BusinessHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid business id"))
		return
	}

	business, err := h.businessRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	if business == nil {
		response.Error(c, apperror.ErrBusinessNotFound(id))
		return
	}
	response.OK(c, business)
}

// Update handles PUT /v1/businesses/:id. A business can only update
// itself.
func (h *BusinessHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid business id"))
		return
	}
	caller, ok := middleware.BusinessID(c)
	if !ok || caller != id {
		response.Error(c, apperror.ErrBusinessNotFound(id))
		return
	}

	var req dto.UpdateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	business, err := h.businessRepo.Update(c.Request.Context(), id, req.Name, req.WebhookURL)
	if err != nil {
		response.Error(c, apperror.ErrDatabase(err))
		return
	}
	if business == nil {
		response.Error(c, apperror.ErrBusinessNotFound(id))
		return
	}
	response.OK(c, business)
}

package handler

import (
	"net/http"
	"time"

	"payx/internal/adapter/http/middleware"
	"payx/internal/core/ports"
	"payx/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	BusinessSvc    ports.BusinessService
	LedgerSvc      ports.LedgerService
	ApiKeySvc      ports.ApiKeyService
	BusinessRepo   ports.BusinessRepository
	AccountRepo    ports.AccountRepository
	TxRepo         ports.TransactionRepository
	LedgerRepo     ports.LedgerRepository
	OutboxRepo     ports.OutboxRepository
	RateLimitStore ports.RateLimitRepository // nil = rate limiting disabled
	RequestTimeout time.Duration             // zero = no per-request deadline
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	if deps.RequestTimeout > 0 {
		r.Use(middleware.RequestTimeout(deps.RequestTimeout))
	}

	// Liveness is cheap; readiness pings PostgreSQL (and Redis if wired).
	r.GET("/health", Liveness)
	r.GET("/ready", Readiness(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Error: response.ErrorBody{Code: "not_found", Message: "route not found"},
		})
	})

	businessHandler := NewBusinessHandler(deps.BusinessSvc, deps.BusinessRepo)
	accountHandler := NewAccountHandler(deps.AccountRepo, deps.TxRepo, deps.LedgerRepo)
	transactionHandler := NewTransactionHandler(deps.LedgerSvc, deps.TxRepo, deps.LedgerRepo)
	webhookHandler := NewWebhookHandler(deps.BusinessRepo, deps.OutboxRepo)

	v1 := r.Group("/v1")

	// --- Public routes (no auth) ---
	v1.POST("/businesses", businessHandler.Create)

	// --- API-key-authenticated routes ---
	auth := middleware.ApiKeyAuth(deps.ApiKeySvc, deps.Logger)
	var rl gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.RateLimitStore != nil {
		rl = middleware.RateLimiter(deps.RateLimitStore, deps.Logger)
	}

	businesses := v1.Group("/businesses", auth, rl)
	{
		businesses.GET("", businessHandler.List)
		businesses.GET("/:id", businessHandler.Get)
		businesses.PUT("/:id", businessHandler.Update)
	}

	accounts := v1.Group("/accounts", auth, rl)
	{
		accounts.POST("", accountHandler.Create)
		accounts.GET("", accountHandler.List)
		accounts.GET("/:id", accountHandler.Get)
		accounts.GET("/:id/transactions", accountHandler.ListTransactions)
		accounts.GET("/:id/entries", accountHandler.ListEntries)
	}

	transactions := v1.Group("/transactions", auth, rl)
	{
		transactions.POST("", transactionHandler.Create)
		transactions.GET("", transactionHandler.List)
		transactions.GET("/:id", transactionHandler.Get)
	}

	webhooks := v1.Group("/webhooks", auth, rl)
	{
		webhooks.POST("/endpoint", webhookHandler.SetEndpoint)
		webhooks.GET("/endpoint", webhookHandler.GetEndpoint)
		webhooks.PUT("/endpoint", webhookHandler.UpdateEndpoint)
		webhooks.DELETE("/endpoint", webhookHandler.DeleteEndpoint)
		webhooks.GET("/deliveries", webhookHandler.ListDeliveries)
		webhooks.GET("/deliveries/:id", webhookHandler.GetDelivery)
		webhooks.POST("/deliveries/:id/retry", webhookHandler.RetryDelivery)
	}

	return r
}

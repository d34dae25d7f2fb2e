package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"payx/internal/core/domain"
	"payx/internal/core/ports"
	"payx/pkg/apperror"
	"payx/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Context keys
	CtxBusinessID = "business_id"
	CtxApiKey     = "api_key"
)

// ApiKeyAuth authenticates bearer API keys and stores the verified key
// and its business id on the request context.
func ApiKeyAuth(keySvc ports.ApiKeyService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Error(c, apperror.ErrInvalidApiKey())
			c.Abort()
			return
		}

		key, err := keySvc.Verify(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxBusinessID, key.BusinessID)
		c.Set(CtxApiKey, key)
		c.Next()
	}
}

// BusinessID extracts the authenticated business id from the context.
func BusinessID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(CtxBusinessID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// ApiKey extracts the authenticated key from the context.
func ApiKey(c *gin.Context) (*domain.ApiKey, bool) {
	v, ok := c.Get(CtxApiKey)
	if !ok {
		return nil, false
	}
	key, ok := v.(*domain.ApiKey)
	return key, ok
}

// RequestLogger logs every HTTP request with latency and status.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery converts panics into the standard 500 envelope.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.ErrorResponse{
					Error: response.ErrorBody{Code: "internal_error", Message: "internal error"},
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize rejects request bodies above limit bytes.
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// RequestTimeout bounds each request's context.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

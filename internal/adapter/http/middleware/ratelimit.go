package middleware

import (
	"strconv"
	"time"

	"payx/internal/core/ports"
	"payx/pkg/apperror"
	"payx/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter enforces each key's per-minute budget with a fixed window
// counter in Postgres. MUST run after ApiKeyAuth.
//
// The counter upsert is a single atomic statement, so every instance of
// the service shares one consistent count per (key, minute) without any
// cross-instance coordination.
func RateLimiter(store ports.RateLimitRepository, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := ApiKey(c)
		if !ok {
			c.Next()
			return
		}

		window := time.Now().UTC().Truncate(time.Minute)
		count, err := store.Increment(c.Request.Context(), key.ID, window)
		if err != nil {
			log.Warn().Err(err).Str("key_id", key.ID.String()).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		limit := key.RateLimitPerMinute
		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		resetAt := window.Add(time.Minute).Unix()

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if count > limit {
			retryAfter := resetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

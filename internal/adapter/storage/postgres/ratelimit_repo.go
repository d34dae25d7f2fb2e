package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RateLimitRepo implements ports.RateLimitRepository with a fixed-window
// counter table keyed on (api_key_id, window_start).
type RateLimitRepo struct {
	pool Pool
}

// NewRateLimitRepo creates a new RateLimitRepo.
func NewRateLimitRepo(pool Pool) *RateLimitRepo {
	return &RateLimitRepo{pool: pool}
}

// Increment atomically upserts the window row and returns the
// post-increment request count. The ON CONFLICT arm makes the
// read-modify-write a single statement so concurrent requests never
// lose counts.
func (r *RateLimitRepo) Increment(ctx context.Context, apiKeyID uuid.UUID, windowStart time.Time) (int, error) {
	query := `INSERT INTO rate_limit_windows (api_key_id, window_start, request_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (api_key_id, window_start)
		DO UPDATE SET request_count = rate_limit_windows.request_count + 1
		RETURNING request_count`

	var count int
	if err := r.pool.QueryRow(ctx, query, apiKeyID, windowStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment rate limit window: %w", err)
	}
	return count, nil
}

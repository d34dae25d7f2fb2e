package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payx/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BusinessRepo implements ports.BusinessRepository.
type BusinessRepo struct {
	pool Pool
}

// NewBusinessRepo creates a new BusinessRepo.
func NewBusinessRepo(pool Pool) *BusinessRepo {
	return &BusinessRepo{pool: pool}
}

const businessColumns = `id, name, email, webhook_url, webhook_secret, created_at, updated_at`

// Create inserts a new business into the database.
func (r *BusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	query := `INSERT INTO businesses (id, name, email, webhook_url, webhook_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		b.ID, b.Name, b.Email, b.WebhookURL, b.WebhookSecret,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

// GetByID fetches a business by its UUID.
func (r *BusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE id = $1`
	return r.scanBusiness(r.pool.QueryRow(ctx, query, id))
}

// List fetches businesses ordered by creation time, newest first.
func (r *BusinessRepo) List(ctx context.Context, limit, offset int) ([]domain.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var businesses []domain.Business
	for rows.Next() {
		var b domain.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Email, &b.WebhookURL, &b.WebhookSecret, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan business row: %w", err)
		}
		businesses = append(businesses, b)
	}
	return businesses, rows.Err()
}

// Update applies COALESCE semantics: nil arguments keep the stored value.
func (r *BusinessRepo) Update(ctx context.Context, id uuid.UUID, name, webhookURL *string) (*domain.Business, error) {
	query := `UPDATE businesses
		SET name = COALESCE($2, name),
		    webhook_url = COALESCE($3, webhook_url),
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + businessColumns

	return r.scanBusiness(r.pool.QueryRow(ctx, query, id, name, webhookURL, time.Now().UTC()))
}

// SetWebhook assigns webhook_url and webhook_secret directly; nils clear.
func (r *BusinessRepo) SetWebhook(ctx context.Context, id uuid.UUID, url, secret *string) (*domain.Business, error) {
	query := `UPDATE businesses
		SET webhook_url = $2, webhook_secret = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + businessColumns

	return r.scanBusiness(r.pool.QueryRow(ctx, query, id, url, secret, time.Now().UTC()))
}

func (r *BusinessRepo) scanBusiness(row pgx.Row) (*domain.Business, error) {
	b := &domain.Business{}
	err := row.Scan(&b.ID, &b.Name, &b.Email, &b.WebhookURL, &b.WebhookSecret, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan business: %w", err)
	}
	return b, nil
}

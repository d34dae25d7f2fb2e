package worker

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"payx/internal/core/domain"
	"payx/internal/core/ports"
	"payx/pkg/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// HTTPDoer is the outbound HTTP surface; *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxBackoff = 3600 // seconds

// WebhookWorker drains the outbox and delivers signed webhook payloads.
//
// Each poll claims a batch with FOR UPDATE SKIP LOCKED and keeps the
// claiming transaction open until every row in the batch is marked, so
// a crashed worker releases its claims on rollback and concurrent
// workers never deliver the same row twice.
type WebhookWorker struct {
	outboxRepo   ports.OutboxRepository
	businessRepo ports.BusinessRepository
	sigSvc       ports.SignatureService
	transactor   ports.DBTransactor
	client       HTTPDoer
	batchSize    int
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewWebhookWorker creates a new WebhookWorker.
func NewWebhookWorker(
	outboxRepo ports.OutboxRepository,
	businessRepo ports.BusinessRepository,
	sigSvc ports.SignatureService,
	transactor ports.DBTransactor,
	client HTTPDoer,
	batchSize int,
	pollInterval time.Duration,
	log zerolog.Logger,
) *WebhookWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &WebhookWorker{
		outboxRepo:   outboxRepo,
		businessRepo: businessRepo,
		sigSvc:       sigSvc,
		transactor:   transactor,
		client:       client,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Run polls the outbox until ctx is cancelled.
func (w *WebhookWorker) Run(ctx context.Context) {
	w.log.Info().
		Int("batch_size", w.batchSize).
		Dur("poll_interval", w.pollInterval).
		Msg("webhook worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("webhook worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.log.Error().Err(err).Msg("webhook batch failed")
			}
		}
	}
}

// ProcessBatch claims and delivers one batch of due events. Returns the
// number of events processed.
func (w *WebhookWorker) ProcessBatch(ctx context.Context) (int, error) {
	dbTx, err := w.transactor.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin claim tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	events, err := w.outboxRepo.ClaimDue(ctx, dbTx, w.batchSize, now)
	if err != nil {
		return 0, fmt.Errorf("claim due events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	for i := range events {
		w.processEvent(ctx, dbTx, &events[i])
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return len(events), nil
}

// processEvent delivers one claimed event and records the outcome on the
// claiming transaction. A delivery failure never aborts the batch.
func (w *WebhookWorker) processEvent(ctx context.Context, dbTx pgx.Tx, ev *domain.WebhookOutbox) {
	deliverErr := w.deliver(ctx, ev)
	if deliverErr == nil {
		if err := w.outboxRepo.MarkDelivered(ctx, dbTx, ev.ID, time.Now().UTC()); err != nil {
			w.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to mark delivered")
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
		w.log.Info().
			Str("event_id", ev.ID.String()).
			Str("business_id", ev.BusinessID.String()).
			Int("attempts", ev.Attempts+1).
			Msg("webhook delivered")
		return
	}

	attempts := ev.Attempts + 1
	if attempts >= ev.MaxAttempts {
		if err := w.outboxRepo.MarkFailed(ctx, dbTx, ev.ID, attempts, deliverErr.Error()); err != nil {
			w.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to mark failed")
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
		w.log.Warn().
			Str("event_id", ev.ID.String()).
			Int("attempts", attempts).
			Str("last_error", deliverErr.Error()).
			Msg("webhook delivery gave up")
		return
	}

	next := time.Now().UTC().Add(backoff(attempts))
	if err := w.outboxRepo.ScheduleRetry(ctx, dbTx, ev.ID, attempts, deliverErr.Error(), next); err != nil {
		w.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("failed to schedule retry")
		return
	}
	metrics.WebhookDeliveries.WithLabelValues("retried").Inc()
	w.log.Warn().
		Str("event_id", ev.ID.String()).
		Int("attempts", attempts).
		Time("next_attempt_at", next).
		Str("last_error", deliverErr.Error()).
		Msg("webhook delivery failed, retry scheduled")
}

// deliver POSTs the stored payload bytes, signed with the business
// webhook secret. Any non-2xx status counts as a failed attempt. A
// business with no endpoint configured has nothing to receive, so the
// event completes without a send.
func (w *WebhookWorker) deliver(ctx context.Context, ev *domain.WebhookOutbox) error {
	business, err := w.businessRepo.GetByID(ctx, ev.BusinessID)
	if err != nil {
		return fmt.Errorf("load business: %w", err)
	}
	if business == nil {
		return fmt.Errorf("business %s not found", ev.BusinessID)
	}
	if business.WebhookURL == nil || business.WebhookSecret == nil {
		w.log.Debug().
			Str("event_id", ev.ID.String()).
			Str("business_id", ev.BusinessID.String()).
			Msg("no webhook endpoint configured, nothing to deliver")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *business.WebhookURL, bytes.NewReader(ev.Payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Id", ev.ID.String())
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(time.Now().UTC().Unix(), 10))
	req.Header.Set("X-Webhook-Signature", w.sigSvc.Sign(*business.WebhookSecret, ev.Payload))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return nil
}

// backoff returns min(2^attempts, 3600) seconds plus up to a second of
// jitter so retry herds spread out.
func backoff(attempts int) time.Duration {
	secs := int64(1) << uint(attempts)
	if attempts > 11 || secs > maxBackoff {
		secs = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return time.Duration(secs)*time.Second + jitter
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exported on /metrics. Registered on the default registry so
// promhttp.Handler() picks them up without extra wiring.
var (
	TransactionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payx",
		Name:      "transactions_applied_total",
		Help:      "Committed transactions by type.",
	}, []string{"type"})

	TransactionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payx",
		Name:      "transactions_rejected_total",
		Help:      "Rejected transaction requests by error code.",
	}, []string{"code"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payx",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery outcomes (delivered, retried, failed).",
	}, []string{"result"})
)

// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsApplied counts ledger postings by kind and outcome.
	TransactionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packpulse_ledger_transactions_total",
		Help: "Ledger transactions processed, labelled by kind and outcome.",
	}, []string{"kind", "outcome"})

	// PulseClaims counts daily pulse claim attempts by outcome.
	PulseClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packpulse_pulse_claims_total",
		Help: "Daily pulse claim attempts, labelled by outcome.",
	}, []string{"outcome"})

	// PackPurchases counts marketplace settlement attempts by outcome.
	PackPurchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packpulse_pack_purchases_total",
		Help: "Pack purchase attempts, labelled by outcome.",
	}, []string{"outcome"})

	// WebhookEvents counts received payment webhook deliveries by result.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packpulse_webhook_events_total",
		Help: "Payment webhook deliveries, labelled by result.",
	}, []string{"result"})

	// CacheMisses counts balance cache misses that forced a ledger replay.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packpulse_balance_cache_misses_total",
		Help: "Balance reads that fell back to replaying the ledger.",
	})
)

// Outcome label values shared across counters.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skirmish"

var (
	// SpendUSD is cost recorded to the ledger.
	SpendUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "spend_usd_total",
			Help:      "Total cost recorded to the ledger in USD",
		},
		[]string{"kind", "tier"},
	)

	// LedgerWriteFailures counts cost entries that could not be persisted.
	LedgerWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_failures_total",
			Help:      "Total ledger writes that failed",
		},
	)

	// BudgetState is 0 for NORMAL, 1 for THROTTLED and 2 for EXCEEDED.
	BudgetState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "state",
			Help:      "Budget governor state (0 normal, 1 throttled, 2 exceeded)",
		},
		[]string{"environment"},
	)

	// AlertsTotal counts alert deliveries by kind and result.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "alerts_total",
			Help:      "Total budget alerts dispatched",
		},
		[]string{"kind", "result"},
	)

	// BattlesTotal counts finished battles by terminal state.
	BattlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "battle",
			Name:      "finished_total",
			Help:      "Total battles finished by terminal state",
		},
		[]string{"state"},
	)

	// TurnsTotal counts generated turns by tier.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "battle",
			Name:      "turns_total",
			Help:      "Total turns generated",
		},
		[]string{"tier"},
	)

	// BattleCostUSD observes the cumulative cost of each battle.
	BattleCostUSD = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "battle",
			Name:      "cost_usd",
			Help:      "Cumulative battle cost in USD",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// CacheLookups counts resource cache lookups by result (hit, miss, expired, stale).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total resource cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheEvictions counts entries removed for capacity, staleness or expiry.
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total resource cache evictions by reason",
		},
		[]string{"reason"},
	)

	// UpstreamRequests counts calls to external services.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total requests to external services",
		},
		[]string{"service", "status"},
	)

	// UpstreamDuration observes external call latency.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "External service request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	// SchedulerInFlight is the number of battles currently running.
	SchedulerInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "in_flight",
			Help:      "Battles currently running",
		},
	)

	// SchedulerItems counts work items by outcome.
	SchedulerItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "items_total",
			Help:      "Total work items by outcome",
		},
		[]string{"outcome"},
	)
)

// StateValue maps a budget state name to its gauge value.
func StateValue(state string) float64 {
	switch state {
	case "THROTTLED":
		return 1
	case "EXCEEDED":
		return 2
	default:
		return 0
	}
}

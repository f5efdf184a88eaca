package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_intents_observed_total",
		Help: "The total number of intents observed from the indexer",
	}, []string{"chain_id"})

	IntentsFilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_intents_filled_total",
		Help: "The total number of successfully filled intents by destination chain",
	}, []string{"chain_id"})

	IntentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_intents_rejected_total",
		Help: "The total number of intents rejected before filling, by stage",
	}, []string{"chain_id", "stage"})

	PipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_pipeline_errors_total",
		Help: "Total number of pipeline errors by type",
	}, []string{"chain_id", "error_type"})

	SettlementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_settlement_failures_total",
		Help: "Fills whose reward claim on the origin chain failed",
	}, []string{"chain_id"})

	IntentProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_intent_processing_seconds",
		Help:    "Time taken to process intents end to end",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	}, []string{"chain_id"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_gas_price_gwei",
		Help: "Current gas price in gwei",
	}, []string{"chain_id"})

	PendingIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_pending_intents",
		Help: "The number of intents queued for processing",
	})

	OpenOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solver_open_orders",
		Help: "Rows in the open-order ledger by status",
	}, []string{"status"})

	RefundsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_refunds_executed_total",
		Help: "Refund attempts by destination chain and outcome",
	}, []string{"chain_id", "outcome"})

	RefundCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "solver_refund_cycle_seconds",
		Help:    "Duration of one expiry scan cycle",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_circuit_breaker_trips_total",
		Help: "Number of times a per-chain circuit breaker tripped",
	}, []string{"chain_id"})
)

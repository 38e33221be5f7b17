package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed counts trade events folded into the ledger.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesgate_events_processed_total",
		Help: "Trade events applied to the ledger, per chain.",
	}, []string{"chain"})

	// EventsSkipped counts events dropped after an application failure.
	EventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesgate_events_skipped_total",
		Help: "Trade events skipped after a per-event failure, per chain.",
	}, []string{"chain"})

	// EventsReplayed counts events ignored by replay protection.
	EventsReplayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesgate_events_replayed_total",
		Help: "Already-applied events seen again during batch re-fetch, per chain.",
	}, []string{"chain"})

	// GateDecisions counts emitted gate/ungate decisions.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesgate_gate_decisions_total",
		Help: "Gate decisions emitted, per chain and action.",
	}, []string{"chain", "action"})

	// CheckpointPosition tracks the numeric sync position per chain.
	CheckpointPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sharesgate_checkpoint_position",
		Help: "Last durable sync position, per chain.",
	}, []string{"chain"})

	// FetchFailures counts failed batch fetches.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesgate_fetch_failures_total",
		Help: "Batch fetch attempts that failed and were retried, per chain.",
	}, []string{"chain"})
)

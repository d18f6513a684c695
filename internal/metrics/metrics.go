package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks the number of live settlement sessions
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "settlement_sessions_active",
			Help: "Number of active settlement sessions",
		},
	)

	// ReconnectsTotal counts transport reconnect attempts by outcome
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_reconnects_total",
			Help: "Total number of transport reconnect attempts",
		},
		[]string{"outcome"},
	)

	// TransfersRouted counts inbound messages by routed type
	TransfersRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_messages_routed_total",
			Help: "Total number of inbound messages by type",
		},
		[]string{"type"},
	)

	// GarnishedAmount tracks garnished amounts in minor units
	GarnishedAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "settlement_garnished_amount",
			Help:    "Amount garnished per incoming transfer, in minor units",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		},
	)

	// PaymentsRecorded counts payment records by kind
	PaymentsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_payments_recorded_total",
			Help: "Total number of payment records appended",
		},
		[]string{"kind"},
	)

	// DebtsSweptOverdue counts debts flipped to overdue by the sweep
	DebtsSweptOverdue = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_debts_swept_overdue_total",
			Help: "Total number of debts flipped to overdue by the sweep job",
		},
	)

	// OraclePushes counts status oracle pushes by operation and outcome
	OraclePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_oracle_pushes_total",
			Help: "Total number of status oracle pushes",
		},
		[]string{"op", "outcome"},
	)
)

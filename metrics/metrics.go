package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goturtle_scans_total",
			Help: "Total number of watchlist analysis passes executed.",
		},
	)

	SignalsSeen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goturtle_signals_total",
			Help: "Total entry/exit signals observed (by kind).",
		},
		[]string{"kind"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "goturtle_positions_open",
			Help: "Current number of open (not closed) positions in the ledger.",
		},
	)

	UpdateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goturtle_position_update_failures_total",
			Help: "Per-position refresh failures during batch updates.",
		},
	)
)

func init() {
	prometheus.MustRegister(ScansTotal, SignalsSeen, PositionsOpen, UpdateFailures)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolmonitor_fetch_pages_total",
			Help: "Log query pages by outcome (ok, narrow, fatal)",
		},
		[]string{"outcome"},
	)

	FetchedLogsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolmonitor_fetched_logs_total",
			Help: "Transfer logs fetched per pool",
		},
		[]string{"pool"},
	)

	TransferAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolmonitor_transfer_attempts_total",
			Help: "Batch transfer attempts by status",
		},
		[]string{"status"},
	)

	DistributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolmonitor_distributions_total",
			Help: "Distribution records appended to the ledger by status",
		},
		[]string{"status"},
	)

	WindowEndHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poolmonitor_window_end_height",
			Help: "End height of the last computed reward window",
		},
	)
)

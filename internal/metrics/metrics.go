// Package metrics exposes the indexer's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IndexedHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "indexed_height",
		Help:      "Highest locally committed block height",
	})

	BlocksCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "blocks_committed_total",
		Help:      "Total blocks committed",
	})

	TxsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "transactions_committed_total",
		Help:      "Total transactions committed",
	})

	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "poll_ticks_total",
		Help:      "Total catch-up poll ticks",
	})

	ResyncChecks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "resync_checks_total",
		Help:      "Total periodic reorg checks",
	})

	ReorgsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "reorgs_resolved_total",
		Help:      "Total reorganizations rolled back and resynced",
	})

	RollbackDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "rollback_depth_blocks",
		Help:      "Blocks removed per rollback",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
	})

	NodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "node",
		Name:      "errors_total",
		Help:      "Node client failures by kind",
	}, []string{"kind"})

	CommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "commit_duration_seconds",
		Help:      "Block commit transaction duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	Halts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "indexer",
		Name:      "halts_total",
		Help:      "Times the indexer halted on an escalated anomaly",
	})
)

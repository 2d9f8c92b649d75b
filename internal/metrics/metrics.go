package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger
	LedgerAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_appends_total",
			Help: "Transfer records appended to the ledger",
		},
		[]string{"kind"},
	)

	// Contests
	ContestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contest_operations_total",
			Help: "Contest operations by outcome",
		},
		[]string{"op", "outcome"}, // outcome: ok|validation|insufficient_balance|not_found|state|arithmetic|error
	)

	// Balance cache
	CacheRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_cache_refreshes_total",
			Help: "Balance cache rows recomputed from the ledger",
		},
		[]string{"scope"}, // user|feature
	)
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_cache_misses_total",
			Help: "Balance reads that had to materialise the cache row",
		},
		[]string{"scope"},
	)
	ReconcileDrift = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "balance_reconcile_drift_total",
			Help: "Cache rows whose stored value differed from the ledger during reconciliation",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// Handler serves /metrics.
var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(LedgerAppends)
		prometheus.MustRegister(ContestOps)
		prometheus.MustRegister(CacheRefreshes)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(ReconcileDrift)
		prometheus.MustRegister(WorkerQueueDepth)
	})
}

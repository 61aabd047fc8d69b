package process

import "github.com/prometheus/client_golang/prometheus"

var (
	inflightExecutions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anvil_exec_inflight",
			Help: "Number of process executions currently holding a slot.",
		},
	)

	queueWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anvil_exec_queue_wait_seconds",
			Help:    "Time spent waiting for an execution slot, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_exec_total",
			Help: "Total number of process executions.",
		},
		[]string{"strategy", "outcome"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anvil_exec_duration_seconds",
			Help:    "Process execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(inflightExecutions)
	prometheus.MustRegister(queueWait)
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(executionDuration)

	// Pre-initialize label combinations so they appear in /metrics at zero.
	for _, strategy := range []string{StrategyLocal, StrategyRemote} {
		for _, outcome := range []string{"ok", "error"} {
			executionsTotal.WithLabelValues(strategy, outcome)
		}
		executionDuration.WithLabelValues(strategy)
	}
}

package cas

import "github.com/prometheus/client_golang/prometheus"

var (
	rpcRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_cas_rpc_retries_total",
			Help: "Total number of remote CAS RPC retry attempts.",
		},
	)

	remoteRPCs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_cas_remote_rpcs_total",
			Help: "Total number of successful remote CAS RPCs.",
		},
		[]string{"kind"},
	)

	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_cas_uploads_total",
			Help: "Total number of remote CAS uploads.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(rpcRetries)
	prometheus.MustRegister(remoteRPCs)
	prometheus.MustRegister(uploadsTotal)

	// Pre-initialize label combinations so they appear in /metrics at zero.
	remoteRPCs.WithLabelValues("fetch")
	uploadsTotal.WithLabelValues("ok")
	uploadsTotal.WithLabelValues("error")
}

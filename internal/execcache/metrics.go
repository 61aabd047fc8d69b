package execcache

import "github.com/prometheus/client_golang/prometheus"

var cacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "anvil_execcache_lookups_total",
		Help: "Total number of process-result cache lookups.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(cacheLookups)
	cacheLookups.WithLabelValues("hit")
	cacheLookups.WithLabelValues("miss")
}

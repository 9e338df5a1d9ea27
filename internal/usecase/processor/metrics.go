package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinsettle_jobs_processed_total",
		Help: "Settlement jobs drained to a terminal status",
	}, []string{"kind", "status"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coinsettle_queue_depth",
		Help: "Jobs waiting in the settlement queue",
	})

	settlementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinsettle_settlement_call_duration_seconds",
		Help:    "Latency distribution of remote settlement calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"kind"})
)

package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callwatch_processor_runs_total",
		Help: "Calculation runs by kind and status",
	}, []string{"kind", "status"})

	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callwatch_processor_events_total",
		Help: "Events scored and committed by kind and catalogue version",
	}, []string{"kind", "version"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callwatch_processor_run_duration_seconds",
		Help:    "Calculation run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"kind"})
)

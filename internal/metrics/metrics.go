package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "isofuzz_runner_build_info",
			Help: "Build information of the fuzz runner",
		},
		[]string{"version", "commit", "date"},
	)

	IterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isofuzz_runner_iterations_total",
		Help: "Total number of fuzz iterations by classification",
	}, []string{"result"})

	IterationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "isofuzz_runner_iteration_duration_seconds",
		Help:    "Duration of a full fuzz iteration",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~8.5min
	})

	ServerReadyWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "isofuzz_runner_server_ready_wait_seconds",
		Help:    "Time spent waiting for the server to accept connections",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms .. 32s
	})

	MutationsToViolation = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "isofuzz_runner_mutations_to_violation",
		Help:    "Number of mutation rounds needed before a violation surfaced",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})
)

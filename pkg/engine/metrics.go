package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hybridagg"

type metrics struct {
	nativeRuns        prometheus.Counter
	localStages       *prometheus.CounterVec
	checkpointsMade   prometheus.Counter
	checkpointsDrop   prometheus.Counter
	cleanupFailures   prometheus.Counter
	aggregateDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		nativeRuns: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "native_runs_total",
			Help:      "Total number of native stage runs delegated to the database",
		})),
		localStages: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "local_stages_total",
			Help:      "Total number of stages evaluated locally",
		}, []string{"op"})),
		checkpointsMade: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoints_created_total",
			Help:      "Total number of checkpoint collections created",
		})),
		checkpointsDrop: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoints_dropped_total",
			Help:      "Total number of checkpoint collections dropped",
		})),
		cleanupFailures: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoint_cleanup_failures_total",
			Help:      "Total number of checkpoint collections that could not be dropped",
		})),
		aggregateDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "aggregate_duration_seconds",
			Help:      "Latency of aggregation calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"})),
	}
}

// register registers a collector, reusing an identical collector registered earlier by another
// engine on the same registerer.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Package metrics exposes the pack's Prometheus collectors. All collectors
// register on the default registry; cmd/depthqueue serves them via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplesInferred counts stochastic depth samples produced by the
	// inference adapter.
	SamplesInferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagetes_samples_inferred_total",
		Help: "Number of stochastic depth samples produced by inference.",
	})

	// EnsembleNonconverged counts ensemble runs that exhausted their
	// iteration budget without meeting tolerance.
	EnsembleNonconverged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagetes_ensemble_nonconverged_total",
		Help: "Number of ensemble fuses that returned a best-effort result without converging.",
	})

	// EnsembleDuration observes wall time per ensemble fuse.
	EnsembleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tagetes_ensemble_duration_seconds",
		Help:    "Wall time spent fusing one sample set.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	// NodeRuns counts node executions by node type and outcome.
	NodeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagetes_node_runs_total",
		Help: "Node executions by type and outcome.",
	}, []string{"node", "outcome"})

	// CheckpointFetchBytes counts bytes downloaded during checkpoint
	// resolution.
	CheckpointFetchBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagetes_checkpoint_fetch_bytes_total",
		Help: "Bytes downloaded while resolving model checkpoints.",
	})
)

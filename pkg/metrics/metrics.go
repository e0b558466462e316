// Package metrics registers the Prometheus collectors for warp step-count
// sampling. Import this package anywhere in the binary to ensure collectors
// are registered with the default registry before promhttp.Handler is called.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AvgStep is the mean per-thread step count of the latest sample run,
	// labelled by kernel name.
	AvgStep = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warpstat_avg_step",
			Help: "Mean per-thread step count of the latest sample run.",
		},
		[]string{"kernel"},
	)

	// AvgMaxWarp is the mean over warps of each warp's slowest lane in the
	// latest sample run.
	AvgMaxWarp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warpstat_avg_max_warp",
			Help: "Mean of per-warp maximum step count of the latest sample run.",
		},
		[]string{"kernel"},
	)

	// WarpEfficiency is avg_step / avg_max_warp. 1.0 means no lane ever waited
	// on a slower lane of its warp.
	WarpEfficiency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warpstat_warp_efficiency",
			Help: "Ratio of mean step count to mean per-warp maximum (1.0 = no divergence).",
		},
		[]string{"kernel"},
	)

	// KernelRunTime is a histogram of timed kernel run durations. Buckets
	// start at 100µs and double up to ~52s.
	KernelRunTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warpstat_kernel_run_time_seconds",
			Help:    "Wall-clock duration of timed kernel sample runs.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 20),
		},
		[]string{"kernel"},
	)

	// SampleRuns counts timed sample runs that produced a record.
	SampleRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpstat_sample_runs_total",
			Help: "Total number of timed kernel sample runs recorded.",
		},
		[]string{"kernel"},
	)

	// ContractViolations counts rejected inputs and timer misuse.
	//
	// Observed reason values:
	//   invalid_thread_count: thread count <= 0 or mismatched with the buffer
	//   empty_sample_set: averaging asked for zero records
	//   timer_misuse: stop without start, or a released handle reused
	//   other: remaining contract errors
	ContractViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warpstat_contract_violations_total",
			Help: "Total number of contract violations, by reason.",
		},
		[]string{"reason"},
	)
)

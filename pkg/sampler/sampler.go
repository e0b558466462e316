// Package sampler drives repeated timed runs of an instrumented kernel and
// reduces them to one averaged warp.Record.
//
// Runs are strictly sequential: a run is launched, timed, aggregated and
// recorded before the next one starts, because a timer must not share its
// stream with another live measurement.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justin-oleary/warpstat/pkg/metrics"
	"github.com/justin-oleary/warpstat/pkg/timer"
	"github.com/justin-oleary/warpstat/pkg/warp"
)

// Kernel launches the instrumented kernel once, waits for it, and returns
// the per-thread step counts it wrote. The sampler reads the slice only until
// the next launch.
type Kernel func(ctx context.Context) ([]uint32, error)

// Report is the outcome of a sampling session.
type Report struct {
	Kernel   string        `json:"kernel"`
	Threads  int           `json:"threads"`
	Warps    int           `json:"warps"`
	WarpSize int           `json:"warp_size"`
	Runs     []warp.Record `json:"runs"`
	Mean     warp.Record   `json:"mean"`

	Efficiency    float64 `json:"warp_efficiency"`
	RunTimeStdDev float64 `json:"run_time_stddev_ms"`
	RunTimeCV     float64 `json:"run_time_cv"`
	RunTimeP50    float64 `json:"run_time_p50_ms"`
	RunTimeP99    float64 `json:"run_time_p99_ms"`
}

// Sampler runs sessions of a kernel on one timing stream.
type Sampler struct {
	stream timer.Stream
	cfg    Config
	logger *slog.Logger
}

// New returns a Sampler that times launches on stream.
func New(stream timer.Stream, cfg Config) *Sampler {
	return &Sampler{stream: stream, cfg: cfg, logger: slog.Default()}
}

// withLogger swaps the sampler's logger. Used in tests to capture structured
// log output without touching the global default logger.
func (s *Sampler) withLogger(l *slog.Logger) *Sampler {
	s.logger = l
	return s
}

// Run executes the configured warmup launches, then Runs timed launches, and
// returns their records together with the averaged record. The context is
// checked between launches; a launch in progress is never interrupted.
func (s *Sampler) Run(ctx context.Context, k Kernel) (Report, error) {
	cfg := s.cfg
	if cfg.Runs < 1 {
		return Report{}, s.violation(fmt.Errorf("%s: %w: runs=%d", cfg.Name, warp.ErrEmptySampleSet, cfg.Runs))
	}
	if cfg.Threads < 1 {
		return Report{}, s.violation(fmt.Errorf("%s: %w: threads=%d", cfg.Name, warp.ErrInvalidThreadCount, cfg.Threads))
	}

	for i := 1; i <= cfg.Warmup; i++ {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		if _, err := k(ctx); err != nil {
			return Report{}, fmt.Errorf("%s: warmup run %d: %w", cfg.Name, i, err)
		}
	}

	s.logger.Info("sampling kernel", "kernel", cfg.Name, "threads", cfg.Threads, "runs", cfg.Runs, "warmup", cfg.Warmup)

	records := make([]warp.Record, 0, cfg.Runs)
	times := newRunTimeRecorder(cfg.Runs)

	for i := 1; i <= cfg.Runs; i++ {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		rec, err := s.runOnce(ctx, k)
		if err != nil {
			return Report{}, s.violation(fmt.Errorf("%s: run %d: %w", cfg.Name, i, err))
		}
		if err := times.record(rec.RunTime); err != nil {
			return Report{}, err
		}
		records = append(records, rec)

		metrics.SampleRuns.WithLabelValues(cfg.Name).Inc()
		metrics.KernelRunTime.WithLabelValues(cfg.Name).Observe(rec.RunTime / 1000)
		s.logger.Debug("sample run recorded",
			"kernel", cfg.Name,
			"run", i,
			"avg_step", rec.AvgStep,
			"avg_max_warp", rec.AvgMaxWarp,
			"run_time_ms", rec.RunTime,
		)
	}

	mean, err := warp.Average(records, len(records))
	if err != nil {
		return Report{}, s.violation(fmt.Errorf("%s: %w", cfg.Name, err))
	}

	spread := times.stats()
	r := Report{
		Kernel:        cfg.Name,
		Threads:       cfg.Threads,
		Warps:         warp.Warps(cfg.Threads, warp.WarpSize),
		WarpSize:      warp.WarpSize,
		Runs:          records,
		Mean:          mean,
		Efficiency:    mean.Efficiency(),
		RunTimeStdDev: spread.StdDev,
		RunTimeCV:     spread.CV,
		RunTimeP50:    spread.P50,
		RunTimeP99:    spread.P99,
	}

	metrics.AvgStep.WithLabelValues(cfg.Name).Set(mean.AvgStep)
	metrics.AvgMaxWarp.WithLabelValues(cfg.Name).Set(mean.AvgMaxWarp)
	metrics.WarpEfficiency.WithLabelValues(cfg.Name).Set(r.Efficiency)

	s.logger.Info("sampling complete",
		"kernel", cfg.Name,
		"avg_step", mean.AvgStep,
		"avg_max_warp", mean.AvgMaxWarp,
		"run_time_ms", mean.RunTime,
		"warp_efficiency", r.Efficiency,
		"run_time_cv", r.RunTimeCV,
	)
	return r, nil
}

// runOnce times a single launch and aggregates its step counts.
func (s *Sampler) runOnce(ctx context.Context, k Kernel) (warp.Record, error) {
	var counts []uint32
	ms, err := timer.Measure(s.stream, func() error {
		c, err := k(ctx)
		counts = c
		return err
	})
	if err != nil {
		return warp.Record{}, err
	}

	rec, err := warp.Aggregate(counts, s.cfg.Threads)
	if err != nil {
		return warp.Record{}, err
	}
	return rec.WithRunTime(ms), nil
}

// violation counts err against the contract-violation metric when it is a
// caller contract failure, logs it, and returns it unchanged.
func (s *Sampler) violation(err error) error {
	reason := ""
	switch {
	case errors.Is(err, warp.ErrInvalidThreadCount):
		reason = "invalid_thread_count"
	case errors.Is(err, warp.ErrEmptySampleSet):
		reason = "empty_sample_set"
	case errors.Is(err, timer.ErrTimerMisuse):
		reason = "timer_misuse"
	case warp.IsContractErr(err):
		reason = "other"
	}
	if reason != "" {
		metrics.ContractViolations.WithLabelValues(reason).Inc()
		s.logger.Error("contract violation", "kernel", s.cfg.Name, "reason", reason, "err", err)
	}
	return err
}

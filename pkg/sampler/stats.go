package sampler

import (
	"fmt"

	"github.com/HdrHistogram/hdrhistogram-go"
	"gonum.org/v1/gonum/stat"
)

// Run times are histogrammed in microseconds from 1µs to 1h with three
// significant figures.
const (
	histMinMicros = 1
	histMaxMicros = 3_600_000_000
	histSigFigs   = 3
)

// runTimeStats holds the run-to-run spread of kernel time across a session.
type runTimeStats struct {
	StdDev float64 // ms, sample standard deviation
	CV     float64 // StdDev / mean
	P50    float64 // ms
	P99    float64 // ms
}

// runTimeRecorder collects per-run kernel times for spread statistics.
type runTimeRecorder struct {
	hist *hdrhistogram.Histogram
	ms   []float64
}

func newRunTimeRecorder(capacity int) *runTimeRecorder {
	return &runTimeRecorder{
		hist: hdrhistogram.New(histMinMicros, histMaxMicros, histSigFigs),
		ms:   make([]float64, 0, capacity),
	}
}

func (r *runTimeRecorder) record(ms float64) error {
	us := min(max(int64(ms*1000), histMinMicros), histMaxMicros)
	if err := r.hist.RecordValue(us); err != nil {
		return fmt.Errorf("record run time %.3fms: %w", ms, err)
	}
	r.ms = append(r.ms, ms)
	return nil
}

// stats returns the spread of the recorded run times. Standard deviation
// and CV stay zero below two samples or at a zero mean.
func (r *runTimeRecorder) stats() runTimeStats {
	var s runTimeStats
	if len(r.ms) == 0 {
		return s
	}
	s.P50 = float64(r.hist.ValueAtQuantile(50)) / 1000
	s.P99 = float64(r.hist.ValueAtQuantile(99)) / 1000

	if len(r.ms) < 2 {
		return s
	}
	mean, std := stat.MeanStdDev(r.ms, nil)
	s.StdDev = std
	if mean > 0 {
		s.CV = std / mean
	}
	return s
}

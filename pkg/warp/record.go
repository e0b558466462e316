// Package warp reduces per-thread step counters from a warp-synchronous
// kernel run into scalar summaries, and averages those summaries across
// repeated sample runs.
//
// Lanes of a warp execute in lockstep, so a warp only retires once its
// slowest lane does. AvgMaxWarp captures that bound; AvgStep is the work
// the threads actually asked for. The gap between them is divergence.
package warp

// WarpSize is the number of lanes that execute in lockstep on the target
// hardware. AggregateWidth takes other widths (e.g. 64-lane wavefronts).
const WarpSize = 32

// Record is the summary of one kernel run. Values are copied, never shared.
type Record struct {
	AvgStep    float64 `json:"avg_step"`
	AvgMaxWarp float64 `json:"avg_max_warp"`
	RunTime    float64 `json:"run_time_ms"`
}

// WithRunTime returns a copy of r carrying the given kernel run time in
// milliseconds.
func (r Record) WithRunTime(ms float64) Record {
	r.RunTime = ms
	return r
}

// Efficiency is AvgStep / AvgMaxWarp: the fraction of lockstep lane-steps
// that did useful work. A run where no warp executed any step reports 1.
func (r Record) Efficiency() float64 {
	if r.AvgMaxWarp == 0 {
		return 1
	}
	return r.AvgStep / r.AvgMaxWarp
}

package warp

import "fmt"

// Aggregate reduces the per-thread step counts of one kernel run into
// AvgStep and AvgMaxWarp using WarpSize-lane warps. RunTime is left zero;
// the caller fills it from the kernel timer.
//
// threadCount must be positive and equal len(stepCounts). It is passed
// separately so a launch that wrote fewer counters than it had threads is
// caught here instead of silently skewing the averages.
func Aggregate(stepCounts []uint32, threadCount int) (Record, error) {
	return AggregateWidth(stepCounts, threadCount, WarpSize)
}

// AggregateWidth is Aggregate for an arbitrary lane-group width.
//
// Threads are grouped into warps in index order. The last warp may hold
// fewer than width threads; it is averaged as a full warp with its own
// maximum, neither padded with zeros nor dropped.
func AggregateWidth(stepCounts []uint32, threadCount, width int) (Record, error) {
	if threadCount < 1 || threadCount != len(stepCounts) {
		return Record{}, fmt.Errorf("%w: threadCount=%d, len(stepCounts)=%d",
			ErrInvalidThreadCount, threadCount, len(stepCounts))
	}
	if width < 1 {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidWarpWidth, width)
	}

	var sumStep, sumMax uint64
	for lo := 0; lo < threadCount; lo += width {
		hi := min(lo+width, threadCount)
		var warpMax uint32
		for _, c := range stepCounts[lo:hi] {
			sumStep += uint64(c)
			warpMax = max(warpMax, c)
		}
		sumMax += uint64(warpMax)
	}

	warps := Warps(threadCount, width)
	return Record{
		AvgStep:    float64(sumStep) / float64(threadCount),
		AvgMaxWarp: float64(sumMax) / float64(warps),
	}, nil
}

// WarpMaxima returns the maximum step count of each width-lane warp in
// warp order. It returns nil for an empty buffer or a width below 1.
func WarpMaxima(stepCounts []uint32, width int) []uint32 {
	if len(stepCounts) == 0 || width < 1 {
		return nil
	}
	out := make([]uint32, 0, Warps(len(stepCounts), width))
	for lo := 0; lo < len(stepCounts); lo += width {
		hi := min(lo+width, len(stepCounts))
		var m uint32
		for _, c := range stepCounts[lo:hi] {
			m = max(m, c)
		}
		out = append(out, m)
	}
	return out
}

// Warps returns how many width-lane warps threads occupy, counting a
// trailing partial warp as a whole one. It returns 0 when either argument
// is below 1.
func Warps(threads, width int) int {
	if threads < 1 || width < 1 {
		return 0
	}
	return (threads + width - 1) / width
}

package warp

import "errors"

var (
	// ErrInvalidThreadCount is returned by Aggregate when the thread count is
	// not positive or disagrees with the length of the step-count buffer.
	// No partial result accompanies it.
	ErrInvalidThreadCount = errors.New("invalid thread count")

	// ErrInvalidWarpWidth is returned when a lane-group width below 1 is
	// requested from AggregateWidth.
	ErrInvalidWarpWidth = errors.New("invalid warp width")

	// ErrEmptySampleSet is returned by Average when asked to average zero
	// (or a negative number of) records. Raised before any division so the
	// caller never sees NaN or Inf.
	ErrEmptySampleSet = errors.New("empty sample set")

	// ErrSampleCountMismatch is returned by Average when the declared record
	// count differs from the number of records supplied.
	ErrSampleCountMismatch = errors.New("sample count does not match records")
)

// IsContractErr reports whether err is one of the input contract failures
// raised by this package. Callers use it to tell caller bugs apart from
// device or launch failures.
func IsContractErr(err error) bool {
	return errors.Is(err, ErrInvalidThreadCount) ||
		errors.Is(err, ErrInvalidWarpWidth) ||
		errors.Is(err, ErrEmptySampleSet) ||
		errors.Is(err, ErrSampleCountMismatch)
}

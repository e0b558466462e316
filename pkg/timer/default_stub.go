//go:build !cuda

package timer

// DefaultStream returns a host-clock stream when building without the cuda
// tag. Compile with -tags cuda on a GPU host to time with device events.
func DefaultStream() (Stream, error) {
	return NewHostStream(), nil
}

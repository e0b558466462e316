//go:build cuda

package timer

/*
#cgo LDFLAGS: -lcudart -Wl,-rpath,/usr/local/cuda/lib64
#include <cuda_runtime_api.h>
*/
import "C"
import (
	"fmt"
	"sync"
)

// CUDAStream records timing events on the device's default stream through
// the CUDA runtime event API.
type CUDAStream struct {
	mu     sync.Mutex
	next   Event
	events map[Event]C.cudaEvent_t
}

// NewCUDAStream returns a stream bound to the current CUDA device.
func NewCUDAStream() *CUDAStream {
	return &CUDAStream{events: make(map[Event]C.cudaEvent_t)}
}

// DefaultStream returns a CUDA event stream. It fails when no device is
// visible so callers do not silently fall back to host timing.
func DefaultStream() (Stream, error) {
	var n C.int
	if rc := C.cudaGetDeviceCount(&n); rc != C.cudaSuccess {
		return nil, cudaErr("cudaGetDeviceCount", rc)
	}
	if n < 1 {
		return nil, fmt.Errorf("no CUDA device visible")
	}
	return NewCUDAStream(), nil
}

func (s *CUDAStream) CreateEvent() (Event, error) {
	var ev C.cudaEvent_t
	if rc := C.cudaEventCreate(&ev); rc != C.cudaSuccess {
		return 0, cudaErr("cudaEventCreate", rc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.events[s.next] = ev
	return s.next, nil
}

func (s *CUDAStream) Record(ev Event) error {
	e, err := s.lookup(ev)
	if err != nil {
		return err
	}
	if rc := C.cudaEventRecord(e, nil); rc != C.cudaSuccess {
		return cudaErr("cudaEventRecord", rc)
	}
	return nil
}

func (s *CUDAStream) Synchronize(ev Event) error {
	e, err := s.lookup(ev)
	if err != nil {
		return err
	}
	if rc := C.cudaEventSynchronize(e); rc != C.cudaSuccess {
		return cudaErr("cudaEventSynchronize", rc)
	}
	return nil
}

func (s *CUDAStream) Elapsed(start, stop Event) (float64, error) {
	a, err := s.lookup(start)
	if err != nil {
		return 0, err
	}
	b, err := s.lookup(stop)
	if err != nil {
		return 0, err
	}
	var ms C.float
	if rc := C.cudaEventElapsedTime(&ms, a, b); rc != C.cudaSuccess {
		return 0, cudaErr("cudaEventElapsedTime", rc)
	}
	return float64(ms), nil
}

func (s *CUDAStream) Destroy(ev Event) error {
	s.mu.Lock()
	e, ok := s.events[ev]
	delete(s.events, ev)
	s.mu.Unlock()
	if !ok {
		return unknownEvent(ev)
	}
	if rc := C.cudaEventDestroy(e); rc != C.cudaSuccess {
		return cudaErr("cudaEventDestroy", rc)
	}
	return nil
}

// Live returns the number of events created and not yet destroyed.
func (s *CUDAStream) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *CUDAStream) lookup(ev Event) (C.cudaEvent_t, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[ev]
	if !ok {
		return nil, unknownEvent(ev)
	}
	return e, nil
}

func cudaErr(call string, rc C.cudaError_t) error {
	return fmt.Errorf("%s: %s (rc=%d)", call, C.GoString(C.cudaGetErrorString(rc)), int(rc))
}

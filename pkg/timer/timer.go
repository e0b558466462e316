// Package timer measures kernel wall-clock time with paired device events.
//
// Timing anchors are recorded into the device's execution stream rather than
// read from the host clock at launch and return, so the elapsed time starts
// after any prior work in the stream has drained and ends when the kernel
// itself retires. The event API is an external capability; this package only
// guarantees the two handles it acquires are released exactly once.
package timer

import (
	"errors"
	"fmt"
)

// ErrTimerMisuse is returned when Stop is called without a live Start, when
// Start is called on a timer that is already running, or when a stream is
// handed an event it does not own.
var ErrTimerMisuse = errors.New("kernel timer misuse")

// Event is an opaque handle to a device timing event.
type Event uint64

// Stream is the device event-pair capability a KernelTimer drives.
// Implementations must allow Destroy on an event that was created but never
// recorded.
type Stream interface {
	CreateEvent() (Event, error)
	// Record inserts ev into the execution stream after all prior work.
	Record(ev Event) error
	// Synchronize blocks until the device has reached ev.
	Synchronize(ev Event) error
	// Elapsed returns milliseconds between two recorded events.
	Elapsed(start, stop Event) (float64, error)
	Destroy(ev Event) error
}

// KernelTimer times one kernel invocation at a time on a Stream. It is not
// safe for concurrent use and must not share its stream with another live
// timer. A timer can be reused for consecutive Start/Stop pairs.
type KernelTimer struct {
	stream      Stream
	start, stop Event
	live        bool
}

// New returns an idle timer bound to s.
func New(s Stream) *KernelTimer {
	return &KernelTimer{stream: s}
}

// Start creates the two boundary events and records the start anchor.
// Call it immediately before issuing the kernel.
func (t *KernelTimer) Start() error {
	if t.stream == nil {
		return fmt.Errorf("%w: timer has no stream", ErrTimerMisuse)
	}
	if t.live {
		return fmt.Errorf("%w: Start called on a running timer", ErrTimerMisuse)
	}

	start, err := t.stream.CreateEvent()
	if err != nil {
		return fmt.Errorf("create start event: %w", err)
	}
	stop, err := t.stream.CreateEvent()
	if err != nil {
		return errors.Join(fmt.Errorf("create stop event: %w", err), t.stream.Destroy(start))
	}

	t.start, t.stop, t.live = start, stop, true

	if err := t.stream.Record(t.start); err != nil {
		return errors.Join(fmt.Errorf("record start event: %w", err), t.release())
	}
	return nil
}

// Stop records the end anchor, blocks until the device reaches it, and
// returns the elapsed kernel time in milliseconds. Both events are released
// before Stop returns, whether or not the measurement succeeded.
func (t *KernelTimer) Stop() (float64, error) {
	if !t.live {
		return 0, fmt.Errorf("%w: Stop called without a matching Start", ErrTimerMisuse)
	}

	ms, err := t.measure()
	if relErr := t.release(); relErr != nil {
		err = errors.Join(err, relErr)
	}
	if err != nil {
		return 0, err
	}
	return max(ms, 0), nil
}

// Close releases the timer's events if a measurement is in flight and is a
// no-op otherwise. Deferring Close right after a successful Start covers
// early returns and error exits between Start and Stop.
func (t *KernelTimer) Close() error {
	if !t.live {
		return nil
	}
	return t.release()
}

func (t *KernelTimer) measure() (float64, error) {
	if err := t.stream.Record(t.stop); err != nil {
		return 0, fmt.Errorf("record stop event: %w", err)
	}
	if err := t.stream.Synchronize(t.stop); err != nil {
		return 0, fmt.Errorf("synchronize stop event: %w", err)
	}
	ms, err := t.stream.Elapsed(t.start, t.stop)
	if err != nil {
		return 0, fmt.Errorf("read elapsed time: %w", err)
	}
	return ms, nil
}

// release destroys both events exactly once. The timer is idle afterwards
// even if a destroy call fails.
func (t *KernelTimer) release() error {
	t.live = false
	return errors.Join(t.stream.Destroy(t.start), t.stream.Destroy(t.stop))
}

// Measure times fn on s. Both events are released on every exit path,
// including an error or panic from fn. When fn fails its error is returned
// and no time is reported.
func Measure(s Stream, fn func() error) (ms float64, err error) {
	t := New(s)
	if err := t.Start(); err != nil {
		return 0, err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := fn(); err != nil {
		return 0, err
	}
	return t.Stop()
}

package timer

import (
	"fmt"
	"sync"
	"time"
)

// HostStream is a Stream backed by the host monotonic clock. Recording an
// event stamps time.Now(); Synchronize returns at once. It is the default
// stream in builds without the cuda tag, and its live-event count makes it
// the leak check in tests.
//
// HostStream is safe for concurrent use.
type HostStream struct {
	mu     sync.Mutex
	next   Event
	events map[Event]hostEvent
}

type hostEvent struct {
	at       time.Time
	recorded bool
}

// NewHostStream returns an empty host-clock stream.
func NewHostStream() *HostStream {
	return &HostStream{events: make(map[Event]hostEvent)}
}

func (s *HostStream) CreateEvent() (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.events[s.next] = hostEvent{}
	return s.next, nil
}

func (s *HostStream) Record(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev]; !ok {
		return unknownEvent(ev)
	}
	s.events[ev] = hostEvent{at: time.Now(), recorded: true}
	return nil
}

func (s *HostStream) Synchronize(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[ev]
	if !ok {
		return unknownEvent(ev)
	}
	if !e.recorded {
		return fmt.Errorf("%w: event %d synchronized before record", ErrTimerMisuse, ev)
	}
	return nil
}

func (s *HostStream) Elapsed(start, stop Event) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.events[start]
	if !ok {
		return 0, unknownEvent(start)
	}
	b, ok := s.events[stop]
	if !ok {
		return 0, unknownEvent(stop)
	}
	if !a.recorded || !b.recorded {
		return 0, fmt.Errorf("%w: elapsed read on unrecorded event", ErrTimerMisuse)
	}
	return float64(b.at.Sub(a.at)) / float64(time.Millisecond), nil
}

func (s *HostStream) Destroy(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev]; !ok {
		return unknownEvent(ev)
	}
	delete(s.events, ev)
	return nil
}

// Live returns the number of events created and not yet destroyed.
func (s *HostStream) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func unknownEvent(ev Event) error {
	return fmt.Errorf("%w: event %d is not live on this stream", ErrTimerMisuse, ev)
}

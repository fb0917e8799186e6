package link

import (
	"context"
	"sync"

	"github.com/Iron-Ham/poolminer/internal/errors"
)

// Outcome is the terminal result of a Connect call.
type Outcome int

const (
	// OutcomeUnknown means neither connected nor failed was observed.
	OutcomeUnknown Outcome = iota
	OutcomeConnected
	OutcomeFailed
)

// String returns the lower-case name used in logs and events.
func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "connected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Signal hands a single Outcome from the radio dispatch goroutine to the
// goroutine blocked in Connect. Only the first Publish is delivered; later
// ones, and any Publish after Close, are dropped.
type Signal struct {
	ch chan Outcome

	mu        sync.Mutex
	published bool
	closed    bool
	closeOnce sync.Once
}

// NewSignal creates an empty Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan Outcome, 1)}
}

// Publish records o if no outcome has been recorded yet. It never blocks and
// reports whether o was accepted.
func (s *Signal) Publish(o Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.published {
		return false
	}
	s.published = true
	s.ch <- o
	return true
}

// Published reports whether an outcome has been recorded.
func (s *Signal) Published() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

// Wait blocks until an outcome is published, the Signal is closed, or ctx
// is done. A Signal closed without an outcome yields ErrLinkUndetermined.
func (s *Signal) Wait(ctx context.Context) (Outcome, error) {
	select {
	case o, ok := <-s.ch:
		if !ok {
			return OutcomeUnknown, errors.ErrLinkUndetermined
		}
		return o, nil
	case <-ctx.Done():
		return OutcomeUnknown, ctx.Err()
	}
}

// Close releases the Signal. It is safe to call more than once.
func (s *Signal) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		close(s.ch)
	})
}

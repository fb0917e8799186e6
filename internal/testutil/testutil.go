// Package testutil provides shared fakes for poolminer tests.
package testutil

import (
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/poolminer/internal/event"
)

// EventRecorder captures every event published on a bus.
type EventRecorder struct {
	mu     sync.Mutex
	events []event.Event
	notify chan struct{}
}

// RecordEvents subscribes a recorder to all events on bus.
func RecordEvents(bus *event.Bus) *EventRecorder {
	r := &EventRecorder{notify: make(chan struct{}, 1)}
	bus.SubscribeAll(func(e event.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
		select {
		case r.notify <- struct{}{}:
		default:
		}
	})
	return r
}

// Events returns a copy of the recorded events in publish order.
func (r *EventRecorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *EventRecorder) OfType(eventType string) []event.Event {
	var out []event.Event
	for _, e := range r.Events() {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of eventType were recorded.
func (r *EventRecorder) Count(eventType string) int {
	return len(r.OfType(eventType))
}

// WaitFor blocks until at least n events of eventType were recorded and
// returns them. The test fails after timeout.
func (r *EventRecorder) WaitFor(t *testing.T, eventType string, n int, timeout time.Duration) []event.Event {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if got := r.OfType(eventType); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			t.Fatalf("timed out waiting for %d %s event(s); got %d", n, eventType, r.Count(eventType))
			return nil
		}
	}
}

// Eventually polls cond until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// SkipIfNoCommand skips the test if name is not in PATH.
func SkipIfNoCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found in PATH, skipping test", name)
	}
}

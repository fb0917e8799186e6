package link

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/poolminer/internal/errors"
)

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{OutcomeUnknown, "unknown"},
		{OutcomeConnected, "connected"},
		{OutcomeFailed, "failed"},
		{Outcome(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.o, got, tt.want)
		}
	}
}

func TestSignal_FirstPublishWins(t *testing.T) {
	s := NewSignal()

	if !s.Publish(OutcomeConnected) {
		t.Fatal("first Publish() = false, want true")
	}
	if s.Publish(OutcomeFailed) {
		t.Error("second Publish() = true, want false")
	}
	if !s.Published() {
		t.Error("Published() = false after Publish")
	}

	got, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got != OutcomeConnected {
		t.Errorf("Wait() = %v, want %v", got, OutcomeConnected)
	}
}

func TestSignal_PublishFromOtherGoroutine(t *testing.T) {
	s := NewSignal()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Publish(OutcomeFailed)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := s.Wait(ctx)
	if err != nil || got != OutcomeFailed {
		t.Errorf("Wait() = %v, %v; want %v, nil", got, err, OutcomeFailed)
	}
}

func TestSignal_ValueSurvivesClose(t *testing.T) {
	s := NewSignal()
	s.Publish(OutcomeConnected)
	s.Close()

	got, err := s.Wait(context.Background())
	if err != nil || got != OutcomeConnected {
		t.Errorf("Wait() = %v, %v; want connected, nil", got, err)
	}
}

func TestSignal_CloseWithoutValue(t *testing.T) {
	s := NewSignal()
	s.Close()
	s.Close()

	if s.Publish(OutcomeConnected) {
		t.Error("Publish() after Close = true, want false")
	}

	got, err := s.Wait(context.Background())
	if got != OutcomeUnknown {
		t.Errorf("Wait() outcome = %v, want unknown", got)
	}
	if !errors.Is(err, errors.ErrLinkUndetermined) {
		t.Errorf("Wait() error = %v, want ErrLinkUndetermined", err)
	}
}

func TestSignal_WaitCanceled(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := s.Wait(ctx)
	if got != OutcomeUnknown || !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, %v; want unknown, context.Canceled", got, err)
	}
}

func TestState(t *testing.T) {
	tests := []struct {
		s        State
		name     string
		terminal bool
	}{
		{StateIdle, "idle", false},
		{StateAssociating, "associating", false},
		{StateAssociated, "associated", true},
		{StateFailed, "failed", true},
		{State(9), "unknown", false},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
		if got := tt.s.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.name, got, tt.terminal)
		}
	}
}

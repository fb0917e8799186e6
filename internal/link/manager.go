// Package link establishes the wireless link with a bounded retry budget.
//
// A Radio driver reports notifications on the event bus from its own
// dispatch goroutine. Manager.Connect subscribes to them, drives the
// Idle → Associating → Associated | Failed state machine, and blocks the
// caller on a Signal until a terminal outcome is known.
package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/poolminer/internal/errors"
	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/logging"
)

// Radio is the driver underneath the state machine. Start and Associate
// must not block on notification delivery: notifications are published on
// the bus, normally from a dispatch goroutine owned by the driver.
type Radio interface {
	// Start brings the station interface up with creds and publishes
	// radio.started once it is ready.
	Start(ctx context.Context, creds Credentials) error
	// Associate requests one association attempt. The driver later
	// publishes radio.got_address or radio.disconnected.
	Associate(ctx context.Context) error
}

// Manager runs Connect calls against one radio. Calls are serialized.
type Manager struct {
	bus    *event.Bus
	radio  Radio
	logger *logging.Logger

	mu      sync.Mutex
	state   atomic.Int32
	retries atomic.Int32
}

// NewManager creates a Manager. A nil logger disables logging.
func NewManager(bus *event.Bus, radio Radio, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		bus:    bus,
		radio:  radio,
		logger: logger.WithComponent("link"),
	}
}

// State returns the state of the current or most recent Connect call.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Retries returns the retry counter of the current or most recent Connect call.
func (m *Manager) Retries() int {
	return int(m.retries.Load())
}

// Connect starts the radio and blocks until the link is associated, the
// retry budget is exhausted, or ctx is done.
//
// Up to maxRetries disconnect notifications are answered with a new
// association attempt; the next one fails the link. Acquiring an address
// resets the counter. Each call starts from a fresh counter and Signal, and
// all bus subscriptions are removed before Connect returns.
//
// The returned error is nil only for OutcomeConnected. OutcomeFailed comes
// with a *errors.LinkError wrapping ErrLinkFailed; OutcomeUnknown with a
// *errors.TimeoutError or the context error.
func (m *Manager) Connect(ctx context.Context, creds Credentials, maxRetries int) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	started := time.Now()
	m.retries.Store(0)
	m.state.Store(int32(StateIdle))

	a := &attempt{
		ctx:        ctx,
		m:          m,
		creds:      creds,
		maxRetries: int32(maxRetries),
		signal:     NewSignal(),
	}
	a.subscribe()
	defer a.shutdown()

	m.logger.Info("starting radio", "ssid", creds.SSID, "max_retries", maxRetries)
	if err := m.radio.Start(ctx, creds); err != nil {
		a.shutdown()
		m.logger.Error("radio start failed", "error", err.Error())
		return OutcomeUnknown, errors.NewLinkError("start radio", errors.Join(errors.ErrRadioUnavailable, err)).
			WithSSID(creds.SSID)
	}

	outcome, waitErr := a.signal.Wait(ctx)
	a.shutdown()

	attempts := int(a.requests.Load())
	addr := a.address()
	m.bus.Publish(event.NewLinkOutcomeEvent(outcome.String(), creds.SSID, attempts, addr))

	switch outcome {
	case OutcomeConnected:
		m.logger.Info("connected to access point", "ssid", creds.SSID, "address", addr)
		return outcome, nil
	case OutcomeFailed:
		m.logger.Error("failed to connect to access point", "ssid", creds.SSID, "attempts", attempts)
		return outcome, errors.NewLinkError("retry budget exhausted", errors.ErrLinkFailed).
			WithSSID(creds.SSID).
			WithAttempts(attempts)
	default:
		m.logger.Error("link outcome undetermined", "ssid", creds.SSID, "state", m.State().String())
		if errors.Is(waitErr, context.DeadlineExceeded) {
			return outcome, errors.NewTimeoutError("waiting for link outcome", time.Since(started).Round(time.Millisecond)).
				WithCause(waitErr)
		}
		if waitErr == nil {
			waitErr = errors.ErrLinkUndetermined
		}
		return outcome, errors.Wrap(waitErr, "waiting for link outcome")
	}
}

// attempt holds the per-Connect state touched by notification handlers.
// Handlers run on the radio's dispatch goroutine.
type attempt struct {
	ctx        context.Context
	m          *Manager
	creds      Credentials
	maxRetries int32
	signal     *Signal

	subs     []string
	addr     atomic.Value // string
	requests atomic.Int32
	stopped  atomic.Bool
	stopOnce sync.Once
}

func (a *attempt) subscribe() {
	bus := a.m.bus
	a.subs = []string{
		bus.Subscribe(event.TypeRadioStarted, a.onStarted),
		bus.Subscribe(event.TypeRadioDisconnected, a.onDisconnected),
		bus.Subscribe(event.TypeRadioGotAddress, a.onGotAddress),
	}
}

// shutdown unregisters the handlers and closes the Signal exactly once.
func (a *attempt) shutdown() {
	a.stopOnce.Do(func() {
		a.stopped.Store(true)
		for _, id := range a.subs {
			a.m.bus.Unsubscribe(id)
		}
		a.signal.Close()
	})
}

func (a *attempt) address() string {
	if v, ok := a.addr.Load().(string); ok {
		return v
	}
	return ""
}

// finished reports whether a terminal outcome was already handed off or
// the caller stopped waiting. Late notifications are ignored.
func (a *attempt) finished() bool {
	return a.stopped.Load() || a.signal.Published()
}

func (a *attempt) transition(to State) {
	from := State(a.m.state.Swap(int32(to)))
	if from == to {
		return
	}
	a.m.bus.Publish(event.NewLinkStateChangedEvent(from.String(), to.String(), int(a.m.retries.Load())))
}

func (a *attempt) onStarted(event.Event) {
	if a.finished() {
		return
	}
	a.transition(StateAssociating)
	a.associate()
}

func (a *attempt) onDisconnected(e event.Event) {
	if a.finished() {
		return
	}
	reason := ""
	if d, ok := e.(event.RadioDisconnectedEvent); ok {
		reason = d.Reason
	}
	a.retry(reason)
}

// retry spends one unit of the budget on a new association, or fails the
// link when the budget is gone.
func (a *attempt) retry(reason string) {
	retries := a.m.retries.Load()
	if retries >= a.maxRetries {
		a.transition(StateFailed)
		a.signal.Publish(OutcomeFailed)
		return
	}
	a.m.retries.Store(retries + 1)
	a.m.logger.Info("retry to connect to the access point",
		"attempt", retries+1,
		"max_retries", a.maxRetries,
		"reason", reason,
	)
	a.transition(StateAssociating)
	a.associate()
}

// associate asks the radio for an attempt. A request the driver rejects
// outright counts as a failed attempt.
func (a *attempt) associate() {
	a.requests.Add(1)
	if err := a.m.radio.Associate(a.ctx); err != nil {
		a.m.logger.Warn("association request rejected", "error", err.Error())
		if !a.finished() {
			a.retry(err.Error())
		}
	}
}

func (a *attempt) onGotAddress(e event.Event) {
	if a.finished() {
		return
	}
	if g, ok := e.(event.RadioGotAddressEvent); ok {
		a.addr.Store(g.Address)
		a.m.logger.Info("got address", "address", g.Address)
	}
	a.m.retries.Store(0)
	a.transition(StateAssociated)
	a.signal.Publish(OutcomeConnected)
}

package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier such as "radio.started".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeRadioStarted      = "radio.started"
	TypeRadioDisconnected = "radio.disconnected"
	TypeRadioGotAddress   = "radio.got_address"

	TypeLinkStateChanged = "link.state_changed"
	TypeLinkOutcome      = "link.outcome"

	TypeSessionConnected = "session.connected"
	TypeSessionDropped   = "session.dropped"
	TypeJobReceived      = "job.received"
	TypeJobExhausted     = "job.exhausted"
	TypeShareSubmitted   = "share.submitted"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Radio Notifications
// -----------------------------------------------------------------------------

// RadioStartedEvent is published by a radio driver once the station
// interface is up and ready to associate.
type RadioStartedEvent struct {
	baseEvent
	Interface string
}

// NewRadioStartedEvent creates a RadioStartedEvent.
func NewRadioStartedEvent(iface string) RadioStartedEvent {
	return RadioStartedEvent{
		baseEvent: newBaseEvent(TypeRadioStarted),
		Interface: iface,
	}
}

// RadioDisconnectedEvent is published when an association attempt fails or
// an established association is lost.
type RadioDisconnectedEvent struct {
	baseEvent
	Reason string
}

// NewRadioDisconnectedEvent creates a RadioDisconnectedEvent.
func NewRadioDisconnectedEvent(reason string) RadioDisconnectedEvent {
	return RadioDisconnectedEvent{
		baseEvent: newBaseEvent(TypeRadioDisconnected),
		Reason:    reason,
	}
}

// RadioGotAddressEvent is published when the interface acquires a network
// address.
type RadioGotAddressEvent struct {
	baseEvent
	Address string
}

// NewRadioGotAddressEvent creates a RadioGotAddressEvent.
func NewRadioGotAddressEvent(addr string) RadioGotAddressEvent {
	return RadioGotAddressEvent{
		baseEvent: newBaseEvent(TypeRadioGotAddress),
		Address:   addr,
	}
}

// -----------------------------------------------------------------------------
// Link Events
// -----------------------------------------------------------------------------

// LinkStateChangedEvent is published on every connectivity state transition.
type LinkStateChangedEvent struct {
	baseEvent
	From    string
	To      string
	Retries int
}

// NewLinkStateChangedEvent creates a LinkStateChangedEvent.
func NewLinkStateChangedEvent(from, to string, retries int) LinkStateChangedEvent {
	return LinkStateChangedEvent{
		baseEvent: newBaseEvent(TypeLinkStateChanged),
		From:      from,
		To:        to,
		Retries:   retries,
	}
}

// LinkOutcomeEvent is published once per Connect call with the final outcome.
type LinkOutcomeEvent struct {
	baseEvent
	Outcome  string // "connected", "failed" or "unknown"
	SSID     string
	Attempts int
	Address  string
}

// NewLinkOutcomeEvent creates a LinkOutcomeEvent.
func NewLinkOutcomeEvent(outcome, ssid string, attempts int, addr string) LinkOutcomeEvent {
	return LinkOutcomeEvent{
		baseEvent: newBaseEvent(TypeLinkOutcome),
		Outcome:   outcome,
		SSID:      ssid,
		Attempts:  attempts,
		Address:   addr,
	}
}

// -----------------------------------------------------------------------------
// Pool Session Events
// -----------------------------------------------------------------------------

// SessionConnectedEvent is published after the pool banner has been read.
type SessionConnectedEvent struct {
	baseEvent
	SessionID string
	Endpoint  string
	Banner    string
}

// NewSessionConnectedEvent creates a SessionConnectedEvent.
func NewSessionConnectedEvent(sessionID, endpoint, banner string) SessionConnectedEvent {
	return SessionConnectedEvent{
		baseEvent: newBaseEvent(TypeSessionConnected),
		SessionID: sessionID,
		Endpoint:  endpoint,
		Banner:    banner,
	}
}

// SessionDroppedEvent is published when a session attempt ends with an error.
type SessionDroppedEvent struct {
	baseEvent
	SessionID string
	Phase     string
	Err       string
	Backoff   time.Duration
}

// NewSessionDroppedEvent creates a SessionDroppedEvent.
func NewSessionDroppedEvent(sessionID, phase, errMsg string, backoff time.Duration) SessionDroppedEvent {
	return SessionDroppedEvent{
		baseEvent: newBaseEvent(TypeSessionDropped),
		SessionID: sessionID,
		Phase:     phase,
		Err:       errMsg,
		Backoff:   backoff,
	}
}

// JobReceivedEvent is published for every parsed job record.
type JobReceivedEvent struct {
	baseEvent
	SessionID string
	Seed      string
	Target    string
	Limit     uint64
}

// NewJobReceivedEvent creates a JobReceivedEvent.
func NewJobReceivedEvent(sessionID, seed, target string, limit uint64) JobReceivedEvent {
	return JobReceivedEvent{
		baseEvent: newBaseEvent(TypeJobReceived),
		SessionID: sessionID,
		Seed:      seed,
		Target:    target,
		Limit:     limit,
	}
}

// JobExhaustedEvent is published when a search finishes without a match.
type JobExhaustedEvent struct {
	baseEvent
	SessionID string
	Seed      string
	Evaluated uint64
}

// NewJobExhaustedEvent creates a JobExhaustedEvent.
func NewJobExhaustedEvent(sessionID, seed string, evaluated uint64) JobExhaustedEvent {
	return JobExhaustedEvent{
		baseEvent: newBaseEvent(TypeJobExhausted),
		SessionID: sessionID,
		Seed:      seed,
		Evaluated: evaluated,
	}
}

// ShareSubmittedEvent is published once the pool has acknowledged a share.
type ShareSubmittedEvent struct {
	baseEvent
	SessionID string
	Seed      string
	Nonce     uint64
	Accepted  bool
	Reason    string
	Elapsed   time.Duration // search time up to the match
}

// NewShareSubmittedEvent creates a ShareSubmittedEvent.
func NewShareSubmittedEvent(sessionID, seed string, nonce uint64, accepted bool, reason string, elapsed time.Duration) ShareSubmittedEvent {
	return ShareSubmittedEvent{
		baseEvent: newBaseEvent(TypeShareSubmitted),
		SessionID: sessionID,
		Seed:      seed,
		Nonce:     nonce,
		Accepted:  accepted,
		Reason:    reason,
		Elapsed:   elapsed,
	}
}

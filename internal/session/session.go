// Package session runs the mining loop against the pool.
//
// Each loop iteration owns one connection: it dials, reads the banner, and
// then repeatedly requests a job, searches its nonce range and submits the
// first match. Any failure closes the connection and the loop reconnects
// after a capped exponential backoff. Run returns only when its context is
// cancelled.
package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Iron-Ham/poolminer/internal/config"
	"github.com/Iron-Ham/poolminer/internal/errors"
	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/indicator"
	"github.com/Iron-Ham/poolminer/internal/logging"
	"github.com/Iron-Ham/poolminer/internal/miner"
	"github.com/Iron-Ham/poolminer/internal/pool"
	"github.com/Iron-Ham/poolminer/internal/shares"
	"github.com/Iron-Ham/poolminer/internal/storage"
)

// ConnectSignal is the number of indicator pulses for each pool connection.
const ConnectSignal = 3

// Backoff shape between reconnects.
const (
	backoffMultiplier = 2.0
	backoffJitter     = 0.2
)

// Config holds the session's pool settings.
type Config struct {
	Endpoint       string
	Identity       string
	DeviceTag      string
	Difficulty     int
	DialTimeout    time.Duration
	IOTimeout      time.Duration
	MaxRecordBytes int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// FromConfig extracts the session settings from the application config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Endpoint:       cfg.Pool.Endpoint(),
		Identity:       cfg.Pool.Identity,
		DeviceTag:      cfg.Pool.DeviceTag,
		Difficulty:     cfg.Miner.Difficulty,
		DialTimeout:    cfg.Pool.DialTimeout(),
		IOTimeout:      cfg.Pool.IOTimeout(),
		MaxRecordBytes: cfg.Pool.MaxRecordBytes,
		BackoffInitial: cfg.Pool.BackoffInitial(),
		BackoffMax:     cfg.Pool.BackoffMax(),
	}
}

// Ledger persists submitted shares.
type Ledger interface {
	RecordShare(ctx context.Context, sh storage.Share) error
}

// Session is the mining loop. It is run by a single goroutine.
type Session struct {
	cfg      Config
	searcher *miner.Searcher
	acct     *shares.Accountant

	bus       *event.Bus
	indicator indicator.Indicator
	ledger    Ledger
	bootID    int64
	dial      pool.Dialer
	logger    *logging.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithBus publishes session events on bus.
func WithBus(bus *event.Bus) Option {
	return func(s *Session) { s.bus = bus }
}

// WithIndicator pulses ind on every pool connection.
func WithIndicator(ind indicator.Indicator) Option {
	return func(s *Session) { s.indicator = ind }
}

// WithLedger records every submitted share under bootID.
func WithLedger(l Ledger, bootID int64) Option {
	return func(s *Session) {
		s.ledger = l
		s.bootID = bootID
	}
}

// WithDialer replaces the TCP dialer.
func WithDialer(d pool.Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a Session. The searcher and accountant are owned by the
// caller; the session only increments the accountant.
func New(cfg Config, searcher *miner.Searcher, acct *shares.Accountant, opts ...Option) *Session {
	s := &Session{
		cfg:       cfg,
		searcher:  searcher,
		acct:      acct,
		bus:       event.NewBus(),
		indicator: indicator.Nop{},
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dial == nil {
		s.dial = pool.TCPDialer(cfg.DialTimeout)
	}
	s.logger = s.logger.WithComponent("session").With("endpoint", cfg.Endpoint)
	return s
}

func (s *Session) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.BackoffInitial
	b.MaxInterval = s.cfg.BackoffMax
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = backoffJitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run mines until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	b := s.newBackOff()
	s.logger.Info("mining session started",
		"identity", s.cfg.Identity,
		"difficulty", s.cfg.Difficulty,
	)

	for {
		if ctx.Err() != nil {
			s.logger.Info("mining session stopped")
			return
		}

		id := uuid.NewString()
		handshaken, err := s.runOnce(ctx, id)
		if ctx.Err() != nil {
			s.logger.Info("mining session stopped")
			return
		}
		if handshaken {
			b.Reset()
		}

		delay := b.NextBackOff()
		logger := s.logger.WithSession(id).WithPhase(string(errors.PhaseOf(err)))
		logEnded := logger.Warn
		if errors.GetSeverity(err) >= errors.SeverityError {
			logEnded = logger.Error
		}
		logEnded("pool session ended",
			"error", err.Error(),
			"retry_in", delay.String(),
		)
		s.bus.Publish(event.NewSessionDroppedEvent(id, string(errors.PhaseOf(err)), err.Error(), delay))

		if !sleep(ctx, delay) {
			s.logger.Info("mining session stopped")
			return
		}
	}
}

// runOnce runs one connection until it fails. handshaken reports whether
// the banner was received.
func (s *Session) runOnce(ctx context.Context, id string) (handshaken bool, err error) {
	logger := s.logger.WithSession(id)
	fail := func(phase errors.Phase, msg string, cause error) error {
		err := errors.NewSessionError(phase, msg, cause).
			WithEndpoint(s.cfg.Endpoint).
			WithSessionID(id)
		if violatesProtocol(cause) {
			err = err.WithSeverity(errors.SeverityError)
		}
		return err
	}

	logger.Debug("connecting to pool")
	nc, err := s.dial(ctx, s.cfg.Endpoint)
	if err != nil {
		return false, fail(errors.PhaseConnect, "dial pool", err)
	}
	conn := pool.NewConn(nc, s.cfg.IOTimeout, s.cfg.MaxRecordBytes)
	defer conn.Close()

	// Unblock any pending read or write on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.indicator.Signal(ConnectSignal)

	banner, err := conn.ReadBanner()
	if err != nil {
		return false, fail(errors.PhaseHandshake, "read banner", err)
	}
	logger.Info("connected to pool", "banner", banner)
	s.bus.Publish(event.NewSessionConnectedEvent(id, s.cfg.Endpoint, banner))

	for {
		if err := conn.RequestJob(s.cfg.Identity, s.cfg.DeviceTag); err != nil {
			return true, fail(errors.PhaseJobRequest, "send job request", err)
		}

		job, err := conn.ReceiveJob(s.cfg.Difficulty)
		if err != nil {
			return true, fail(errors.PhaseJobReceive, "receive job", err)
		}
		logger.Debug("job received", "seed", job.Seed, "target", job.Target, "limit", job.Limit())
		s.bus.Publish(event.NewJobReceivedEvent(id, job.Seed, job.Target, job.Limit()))

		res, err := s.searcher.Search(ctx, job)
		if err != nil {
			return true, fail(errors.PhaseSearch, "search nonce range", err)
		}
		if !res.Found {
			logger.Debug("nonce range exhausted", "seed", job.Seed, "evaluated", res.Evaluated)
			s.bus.Publish(event.NewJobExhaustedEvent(id, job.Seed, res.Evaluated))
			continue
		}

		ack, err := conn.SubmitShare(s.cfg.Identity, job.Seed, res.Nonce)
		if err != nil {
			return true, fail(errors.PhaseSubmit, "submit share", err)
		}
		s.settle(ctx, logger, id, job, res, ack)
	}
}

// settle applies a verdict: the accountant is updated exactly once, then
// the ledger and the bus are told.
func (s *Session) settle(ctx context.Context, logger *logging.Logger, id string, job pool.Job, res miner.Result, ack pool.Ack) {
	s.acct.Record(ack.Accepted)

	verdict := "accepted"
	if !ack.Accepted {
		verdict = "rejected"
	}
	logger.Info("share "+verdict,
		"seed", job.Seed,
		"nonce", res.Nonce,
		"reason", ack.Reason,
		"elapsed", res.Elapsed.String(),
	)

	if s.ledger != nil {
		// The verdict is already counted; keep the record across shutdown.
		err := s.ledger.RecordShare(context.WithoutCancel(ctx), storage.Share{
			BootID:    s.bootID,
			SessionID: id,
			Seed:      job.Seed,
			Target:    job.Target,
			Nonce:     res.Nonce,
			Accepted:  ack.Accepted,
			Reason:    ack.Reason,
		})
		if err != nil {
			logger.Warn("failed to record share", "error", err.Error())
		}
	}

	s.bus.Publish(event.NewShareSubmittedEvent(id, job.Seed, res.Nonce, ack.Accepted, ack.Reason, res.Elapsed))
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// violatesProtocol reports whether err means the pool broke the wire
// protocol rather than the connection failing.
func violatesProtocol(err error) bool {
	for _, target := range []error{
		errors.ErrMalformedRecord,
		errors.ErrRecordTooLong,
		errors.ErrUnexpectedAck,
		errors.ErrSeedTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

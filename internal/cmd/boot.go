package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Iron-Ham/poolminer/internal/config"
	"github.com/Iron-Ham/poolminer/internal/errors"
	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/indicator"
	"github.com/Iron-Ham/poolminer/internal/link"
	"github.com/Iron-Ham/poolminer/internal/logging"
	"github.com/Iron-Ham/poolminer/internal/storage"
)

// radio is a link.Radio that owns resources.
type radio interface {
	link.Radio
	io.Closer
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLoggerWithRotation(cfg.Logging.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

func newRadio(cfg *config.Config, bus *event.Bus, logger *logging.Logger) (radio, error) {
	switch cfg.Network.Driver {
	case config.DriverWatch:
		return link.NewWatchRadio(bus, cfg.Network.StatusFile, cfg.Network.AssociateCommand, logger)
	case config.DriverHost, "":
		return link.NewHostRadio(bus, cfg.Network.Interface, logger), nil
	default:
		return nil, errors.NewValidationError("unknown radio driver").
			WithField("network.driver").
			WithValue(cfg.Network.Driver)
	}
}

// newIndicator returns the status light and a function that switches it
// off for good.
func newIndicator(cfg *config.Config, logger *logging.Logger) (indicator.Indicator, func()) {
	if !cfg.Indicator.Enabled {
		return indicator.Nop{}, func() {}
	}
	var line indicator.Line = indicator.LogLine{Logger: logger.WithComponent("indicator")}
	if cfg.Indicator.Path != "" {
		line = indicator.FileLine{Path: cfg.Indicator.Path}
	}
	p := indicator.NewPulser(line, cfg.Indicator.PulseInterval(), logger)
	return p, func() { _ = p.Close() }
}

// ledger is an open share ledger and the lock that guards it.
type ledger struct {
	store *storage.Store
	lock  *storage.Lock
}

// openLedger locks and opens the ledger at path. A ledger that cannot be
// opened is fatal to boot.
func openLedger(path string, logger *logging.Logger) (*ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewStorageError("create ledger directory", err).WithPath(path)
	}
	lock, err := storage.AcquireLock(path, logger)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(path, logger)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	return &ledger{store: store, lock: lock}, nil
}

func (l *ledger) Close() error {
	err := l.store.Close()
	if rerr := l.lock.Release(); err == nil {
		err = rerr
	}
	return err
}

// outcomeCapture records the most recent link.outcome event.
type outcomeCapture struct {
	mu   sync.Mutex
	last *event.LinkOutcomeEvent
}

func captureOutcome(bus *event.Bus) (*outcomeCapture, func()) {
	c := &outcomeCapture{}
	id := bus.Subscribe(event.TypeLinkOutcome, func(e event.Event) {
		if ev, ok := e.(event.LinkOutcomeEvent); ok {
			c.mu.Lock()
			c.last = &ev
			c.mu.Unlock()
		}
	})
	return c, func() { bus.Unsubscribe(id) }
}

// get returns the captured event, or a zero event with outcome "unknown".
func (c *outcomeCapture) get() event.LinkOutcomeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return event.LinkOutcomeEvent{Outcome: link.OutcomeUnknown.String()}
	}
	return *c.last
}

// connectLink runs one Connect call, bounded by the configured connect
// timeout, and returns the outcome event it published.
func connectLink(ctx context.Context, cfg *config.Config, bus *event.Bus, r link.Radio, logger *logging.Logger) (link.Outcome, event.LinkOutcomeEvent, error) {
	if timeout := cfg.Network.ConnectTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	capture, stop := captureOutcome(bus)
	defer stop()

	mgr := link.NewManager(bus, r, logger)
	outcome, err := mgr.Connect(ctx, link.Credentials{
		SSID:       cfg.Network.SSID,
		Passphrase: cfg.Network.Passphrase,
	}, cfg.Network.MaxRetries)
	return outcome, capture.get(), err
}

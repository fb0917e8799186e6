// Package indicator drives the status light: it is held on while the link
// is negotiated and pulsed a fixed number of times at milestones.
package indicator

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Iron-Ham/poolminer/internal/logging"
)

// Indicator is the status light as seen by the boot sequence and the
// mining session.
type Indicator interface {
	// Signal pulses the light count times. It does not block the caller.
	Signal(count int)
	// Hold turns the light steadily on or off.
	Hold(on bool)
}

// Line is a single on/off output.
type Line interface {
	Set(on bool) error
}

// maxPending bounds queued Signal requests; extra requests are dropped.
const maxPending = 4

// Pulser implements Indicator over a Line. Pulse sequences run one at a
// time on a worker goroutine.
type Pulser struct {
	line     Line
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex // serializes Line access
	reqs    chan int
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewPulser starts a Pulser. Each pulse is interval on then interval off.
func NewPulser(line Line, interval time.Duration, logger *logging.Logger) *Pulser {
	if logger == nil {
		logger = logging.NopLogger()
	}
	p := &Pulser{
		line:     line,
		interval: interval,
		logger:   logger.WithComponent("indicator"),
		reqs:     make(chan int, maxPending),
		stopCh:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Signal implements Indicator.
func (p *Pulser) Signal(count int) {
	if count <= 0 {
		return
	}
	select {
	case <-p.stopCh:
	case p.reqs <- count:
	default:
		p.logger.Debug("dropping indicator signal", "count", count)
	}
}

// Hold implements Indicator.
func (p *Pulser) Hold(on bool) {
	p.set(on)
}

// Close stops pulsing and turns the line off.
func (p *Pulser) Close() error {
	p.stopped.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.set(false)
	return nil
}

func (p *Pulser) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case count := <-p.reqs:
			if !p.pulse(count) {
				return
			}
		}
	}
}

// pulse returns false if the Pulser was closed mid-sequence.
func (p *Pulser) pulse(count int) bool {
	for i := 0; i < count; i++ {
		p.set(true)
		if !p.sleep() {
			return false
		}
		p.set(false)
		if !p.sleep() {
			return false
		}
	}
	return true
}

func (p *Pulser) sleep() bool {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-p.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (p *Pulser) set(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.line.Set(on); err != nil {
		p.logger.Warn("failed to set indicator", "on", on, "error", err.Error())
	}
}

// FileLine writes "1" or "0" to a file, such as a Linux LED brightness
// attribute.
type FileLine struct {
	Path string
}

// Set implements Line.
func (f FileLine) Set(on bool) error {
	v := "0\n"
	if on {
		v = "1\n"
	}
	if err := os.WriteFile(f.Path, []byte(v), 0644); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	return nil
}

// LogLine records transitions in the log, for hosts without a light.
type LogLine struct {
	Logger *logging.Logger
}

// Set implements Line.
func (l LogLine) Set(on bool) error {
	if l.Logger != nil {
		l.Logger.Debug("indicator", "on", on)
	}
	return nil
}

// Nop is an Indicator that does nothing.
type Nop struct{}

// Signal implements Indicator.
func (Nop) Signal(int) {}

// Hold implements Indicator.
func (Nop) Hold(bool) {}

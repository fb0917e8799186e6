package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/shares"
)

// feedBuffer bounds the events queued for the dashboard. Events beyond it
// are dropped; counters are refreshed from the accountant on every tick.
const feedBuffer = 64

// App wraps the Bubbletea program.
type App struct {
	model Model
	bus   *event.Bus
	opts  []tea.ProgramOption
}

// New creates a dashboard fed by bus.
func New(bus *event.Bus, acct *shares.Accountant, info Info) *App {
	return &App{
		model: NewModel(info, acct),
		bus:   bus,
		opts:  []tea.ProgramOption{tea.WithAltScreen()},
	}
}

// WithIO redirects the program's input and output, and disables the
// alternate screen.
func (a *App) WithIO(in io.Reader, out io.Writer) *App {
	a.opts = []tea.ProgramOption{tea.WithInput(in), tea.WithOutput(out)}
	return a
}

// Run shows the dashboard until the user quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	program := tea.NewProgram(a.model, append(a.opts, tea.WithContext(ctx))...)

	fwd := newForwarder(feedBuffer)
	sub := a.bus.SubscribeAll(fwd.offer)
	defer a.bus.Unsubscribe(sub)

	done := make(chan struct{})
	defer close(done)
	go fwd.run(done, program.Send)

	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		// Shutdown requested elsewhere.
		return nil
	}
	return err
}

// forwarder decouples bus publishers from the program's message loop.
type forwarder struct {
	queue chan event.Event
}

func newForwarder(size int) *forwarder {
	return &forwarder{queue: make(chan event.Event, size)}
}

// offer is the bus handler. It never blocks the publisher.
func (f *forwarder) offer(e event.Event) {
	f.tryOffer(e)
}

// tryOffer queues e unless the queue is full.
func (f *forwarder) tryOffer(e event.Event) bool {
	select {
	case f.queue <- e:
		return true
	default:
		return false
	}
}

// run delivers queued events to send until done is closed.
func (f *forwarder) run(done <-chan struct{}, send func(tea.Msg)) {
	for {
		select {
		case <-done:
			return
		case e := <-f.queue:
			send(eventMsg{e: e})
		}
	}
}

package link

import (
	"sync"

	"github.com/Iron-Ham/poolminer/internal/event"
)

// dispatcher delivers radio notifications to the bus from a single
// goroutine, in the order they were posted.
type dispatcher struct {
	bus    *event.Bus
	queue  chan event.Event
	stopCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func newDispatcher(bus *event.Bus) *dispatcher {
	return &dispatcher{
		bus:    bus,
		queue:  make(chan event.Event, 16),
		stopCh: make(chan struct{}),
	}
}

func (d *dispatcher) start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.loop()
	})
}

func (d *dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case e := <-d.queue:
			d.bus.Publish(e)
		}
	}
}

// post enqueues e. It must not be called from the dispatch goroutine while
// the queue is full. Returns false once the dispatcher is stopped.
func (d *dispatcher) post(e event.Event) bool {
	select {
	case <-d.stopCh:
		return false
	case d.queue <- e:
		return true
	}
}

func (d *dispatcher) stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
}

// Package event provides the pub-sub bus that connects radio drivers, the
// link manager, the pool session and the dashboard.
//
// Radio drivers publish notifications ([RadioStartedEvent],
// [RadioDisconnectedEvent], [RadioGotAddressEvent]) from their own dispatch
// goroutine; the link manager subscribes to them for the duration of a
// Connect call. The pool session publishes [SessionConnectedEvent],
// [SessionDroppedEvent], [JobReceivedEvent], [JobExhaustedEvent] and
// [ShareSubmittedEvent] for observers such as the TUI.
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers are called synchronously on the
// publishing goroutine and are protected against panics: a panicking handler
// is logged and does not prevent other handlers from running.
//
// # Basic Usage
//
//	bus := event.NewBus().WithLogger(logger)
//
//	id := bus.Subscribe(event.TypeRadioGotAddress, func(e event.Event) {
//	    got := e.(event.RadioGotAddressEvent)
//	    logger.Info("address acquired", "addr", got.Address)
//	})
//	defer bus.Unsubscribe(id)
//
//	bus.Publish(event.NewRadioGotAddressEvent("192.168.1.20"))
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action" and are exported as
// Type* constants.
package event

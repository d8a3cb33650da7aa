// Package event provides domain events and an in-process event bus.
//
// # Events
//
// An Event is an immutable value: a name, a JSON payload, and a creation
// timestamp in milliseconds.
//
//	evt, err := event.New("ORDER_PLACED", map[string]any{"id": 1})
//
//	evt.Name()      // "ORDER_PLACED"
//	evt.Payload()   // map[string]any{"id": float64(1)}, a fresh copy each call
//	evt.CreatedAt() // 1718000000000
//
// A nil or falsy payload (false, 0, "") is stored as JSON null. Payloads
// are copied through their JSON encoding, so mutating the original value
// or a value returned by Payload never changes the event.
//
// Events serialize to a flat JSON document with exactly three fields:
//
//	text, _ := evt.Serialize()
//	// {"name":"ORDER_PLACED","payload":{"id":1},"createdAt":1718000000000}
//
//	restored, err := event.Deserialize(text) // keeps the original createdAt
//
// # Bus
//
// A Bus maps event names to handlers and keeps a separate list of wildcard
// handlers that receive every event:
//
//	bus := event.NewBus(event.DefaultBusConfig)
//	defer bus.Close()
//
//	bus.Register(orderProjection, "ORDER_PLACED")
//	bus.RegisterAll(auditLog)
//
//	done, err := bus.Dispatch(ctx, evt)
//	if err != nil {
//	    // evt was nil or the bus is closed
//	}
//	done.Wait()
//
// Dispatch takes a snapshot of the matching handlers (wildcard handlers
// first, then name-specific ones, each in registration order), hands each
// invocation to the bus Scheduler, and returns immediately. No handler
// runs on the caller's goroutine. The returned Completion resolves once
// every scheduled invocation has run.
//
// # Scheduling
//
// Handlers are always submitted wildcard first, then by name, each in
// registration order. GoroutineScheduler (the default) runs each
// invocation on its own goroutine, optionally bounded by MaxConcurrency,
// so invocations may overlap and finish in any order. QueueScheduler runs
// invocations one at a time in submission order on a single worker,
// which preserves the wildcard-then-named registration order end to end.
//
// # Handler Failures
//
// A handler error or panic never stops other handlers and never fails
// the Completion. Each failure is logged, counted in metrics, recorded on
// the handler span, passed to BusConfig.OnError, and saved to
// BusConfig.Failures when a failure store is configured.
package event

// Package event provides a pub-sub event bus that lets the CLI, tests and
// metrics observe bridge lifecycles without the bridge depending on them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Bridge lifecycle:
//   - [StateChangedEvent]: every state transition
//   - [BridgeFatalEvent]: the command channel failed and shutdown began
//   - [BridgeDestroyedEvent]: the bridge was deleted (exactly once per bridge)
//   - [PendingExecutedEvent]: the pending-work runner ran
//
// Application:
//   - [AppInitializedEvent], [AppDestroyedEvent], [AppQuitEvent]
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine. Bridge events are published from
// the loop thread, so a handler that blocks stalls the loop.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeBridgeDestroyed, func(e event.Event) {
//	    d := e.(event.BridgeDestroyedEvent)
//	    log.Printf("bridge %s gone (sync=%v)", d.BridgeID, d.Synchronous)
//	})
package event

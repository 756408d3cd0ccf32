// Package bridge lets any goroutine schedule work on, and request teardown
// of, an application hosted on a single event-loop thread.
//
// A Bridge owns a command channel whose read end is registered with the
// calling thread's loop. Worker goroutines write fixed-size commands into the
// channel; the loop's callback reads one command per invocation and
// dispatches it on the loop thread.
//
// The loop's RemoveFd may still deliver one more callback after it returns,
// so a Bridge never frees itself from an arbitrary goroutine while it is
// registered. Destruction requests are funneled through the same channel as
// a Destroy command and the callback is the only place that deletes a
// registered Bridge. Once the registration is gone, RequestDestruction
// deletes synchronously in the caller.
//
// Lifecycle:
//
//	// on the loop thread
//	b, err := bridge.Create(bridge.ThreadProvider{AppID: "heartbeat"})
//	// from any goroutine
//	b.CallInLoopThreadDeferred(fn)
//	b.RequestFunctionExecution()
//	// on the loop thread, once
//	b.OnOwnerDestroy()
//
// States move Uninitialized → Initializing → Active → ShuttingDown →
// Destroyed. A failed construction goes straight from Initializing to
// Destroyed after releasing everything it acquired, in reverse order.
package bridge

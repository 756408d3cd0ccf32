// Package looper implements a per-thread, poll(2) based event loop.
//
// A Looper belongs to one OS thread. [Prepare] locks the calling goroutine to
// its thread and returns that thread's Looper; [ForThread] looks it up again
// later from the same goroutine. Any goroutine may register descriptors,
// [Looper.Wake] the loop or [Looper.Post] a function to it, but only the
// owner thread may call [Looper.PollOnce] or [Looper.Loop].
//
// # Callback Semantics
//
// PollOnce collects every ready registration before it invokes any callback
// and runs them without holding internal locks. Consequently a callback for a
// descriptor removed by an earlier callback in the same step still runs. Code
// that tears down its own registration must tolerate one late invocation.
// A callback returning false drops exactly the registration it was invoked
// for; if the callback re-registered the descriptor, the new registration
// survives.
//
// # Reference Counting
//
// The thread association holds one reference. [Looper.Acquire] and
// [Looper.Release] let other owners keep the wake pipe open; the final
// Release closes it, deferring the close to the end of PollOnce when the
// owner is polling.
//
// The package builds on Linux only (it relies on gettid(2) for thread
// identity).
package looper

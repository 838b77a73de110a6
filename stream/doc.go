// Package stream coordinates a single cancellable streaming function call.
//
// Start launches a coordinator goroutine that owns the call's cancellation
// token and spawns one worker. The worker runs the blocking engine call,
// relays interim results to the caller's callback in order, re-injects the
// engine's terminal return value into the same relay path and then reports
// its exit to the coordinator. The coordinator decides the terminal status
// from the first message in its mailbox (worker exit or cancel request),
// fires the token, closes the delivery gate and releases the worker monitor
// on every exit path, including owner kill and internal panics.
//
// The returned Handle is the only control surface:
//
//	h, err := stream.Start(ctx, m, "Extract", args, cb, core.CallOptions{})
//	...
//	_ = h.Cancel()
//	status, err := h.Await(time.Second)
//
// Callbacks run on the stream's worker goroutine. A callback may call Cancel
// on its own handle but must not Await it.
package stream

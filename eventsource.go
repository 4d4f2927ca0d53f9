package loomrt

// EventSource is the two-method contract every suspending operation in this
// package (and in the net, syncx, and channel subpackages) implements:
// socket reads/writes/accepts/connects, UDP send/recv, timer sleeps,
// channel send/recv, mutex/semaphore acquires, and joins. It is exported
// so those subpackages can implement it directly against their own wait
// queues, rather than every blocking primitive having to live in this
// package.
//
// Subscribe registers the calling coroutine's interest (arming a reactor
// registration, a timer, or a wait queue entry, depending on the concrete
// source) and reports whether the operation is already satisfied — if true,
// the caller must not park, since there is nothing left to wake it. If
// Subscribe returns false, the caller parks (suspends back to its owning
// worker); whatever satisfies the operation (reactor readiness, a timer
// fire, a racing Send/Unlock) must call Wake on this same coroutine exactly
// once, so the wakeup goes through the scheduler's ready queue rather than
// resuming the coroutine's goroutine directly.
//
// Done is called after the park (or immediately, if Subscribe returned
// true) to retrieve the result and clear any armed registration. It must be
// safe to call Done without a prior Subscribe returning false, since the
// "already satisfied" fast path skips straight to Done.
type EventSource[T any] interface {
	Subscribe(co *Coroutine) bool
	Done() (T, error)
}

// AwaitEventSource runs the Subscribe/park/Done protocol for the current
// coroutine. It is the single place every blocking API funnels through, so
// the race-free contract only has to be gotten right once. Every net,
// syncx, and channel operation that can block calls this against its own
// EventSource implementation.
func AwaitEventSource[T any](co *Coroutine, src EventSource[T]) (T, error) {
	if !src.Subscribe(co) {
		co.park()
	}
	return src.Done()
}

// Wake re-enqueues co onto the scheduler's ready queue. Called by an
// EventSource implementation (in this package or a subpackage) once the
// condition a parked coroutine was waiting for becomes true — the single
// wakeup path every event source funnels through, so a coroutine is never
// resumed directly outside of a worker's own resume() call.
func Wake(co *Coroutine) {
	enqueueCoroutine(co)
}

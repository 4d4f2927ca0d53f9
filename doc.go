// Package loomrt provides a user-space M:N stackful-coroutine scheduling
// runtime combined with a non-blocking I/O reactor, grouping a large number
// of concurrent coroutines onto a small pool of worker goroutines and
// multiplexing their I/O through platform-native readiness/completion
// notification.
//
// # Architecture
//
// A [Coroutine] is a real goroutine gated by a pair of one-shot [Parker]s
// acting as a context-switch "ticket": a [worker] grants the ticket to run
// it, and parks until the coroutine yields ([YieldNow]), blocks on an
// [EventSource] (I/O, a [TimerWheel] deadline, a channel, a lock, another
// coroutine's completion), or finishes. The [Scheduler] drives a pool of
// such workers, each with its own local ready deque; idle workers fall
// back to the shared global queue, then steal from a sibling, and
// finally block in the platform [Reactor]'s poll call as their idle
// wait. [Spawn] starts a new coroutine and returns a [JoinHandle] for its
// result.
//
// # Platform Support
//
// I/O polling is implemented using platform-native mechanisms:
//   - Linux: epoll
//   - macOS: kqueue
//   - Windows: IOCP (I/O Completion Ports)
//
// These are unified behind the [Reactor] interface; every registration is
// tracked by an [IoData] record shared by whichever platform reactor is in
// use, and resolves the race between reactor readiness, a racing deadline,
// and cancellation with a single CAS.
//
// # Thread Safety
//
// The scheduler is designed for concurrent access from many goroutines:
//   - [Spawn] is safe to call from any goroutine, coroutine or not.
//   - [JoinHandle.Join] may be called from a coroutine (suspends it
//     cleanly) or from plain application code (blocks the calling OS
//     thread).
//   - [CancelToken]/[CancelSource] propagate cancellation across workers
//     and unstick any I/O a coroutine is currently parked on.
//
// # Execution Model
//
// Every worker iteration follows the same order:
//  1. Pop from its own local deque.
//  2. Pop from the global queue.
//  3. Steal from a sibling's local deque.
//  4. Fire any due timers, then block in the reactor's poll call (doubling
//     as the scheduler's idle wait) until woken by I/O, a timer, or an
//     explicit wake.
//
// # Usage
//
//	h := loomrt.Spawn(func(co *loomrt.Coroutine) int {
//	    loomrt.Sleep(100 * time.Millisecond)
//	    return 42
//	})
//	result, err := h.Join()
//
// # Error Types
//
// The package provides a small set of sentinel and wrapper errors:
//   - [ErrCancelled]: a coroutine observed its [CancelToken] cancelled.
//   - [ErrTimedOut]: an operation's deadline elapsed first.
//   - [ErrPoisoned]: a syncx lock was held by a coroutine that panicked.
//   - [ErrBrokenChannel]: a channel was closed (and, for a receive, drained).
//   - [JoinError]: wraps a panic recovered from a spawned coroutine.
//
// All error types implement the standard [error] interface and
// [errors.Unwrap] where they wrap a cause.
package loomrt

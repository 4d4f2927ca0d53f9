package loomrt

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// suspendReason tells the worker that resumed a Coroutine what to do with
// it once it hands control back.
type suspendReason int32

const (
	suspendNone suspendReason = iota
	// suspendYield means the coroutine cooperatively yielded and should be
	// placed back on a ready queue immediately.
	suspendYield
	// suspendBlocked means the coroutine is parked waiting on an event
	// source (I/O, timer, channel, lock); something else will re-enqueue
	// it once that source completes.
	suspendBlocked
	// suspendDone means the coroutine's entry function returned or
	// panicked; it will never be resumed again.
	suspendDone
)

// goroutineCoroutines maps the runtime goroutine id running a coroutine's
// trampoline to that Coroutine, so free functions like YieldNow and Sleep
// can find "the current coroutine" without threading it through every call.
var goroutineCoroutines sync.Map // map[uint64]*Coroutine

func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Current returns the Coroutine running on the calling goroutine, or nil if
// called from outside any coroutine (e.g. from a worker between turns, or
// from plain application code that never called Spawn).
func Current() *Coroutine {
	if v, ok := goroutineCoroutines.Load(getGoroutineID()); ok {
		return v.(*Coroutine)
	}
	return nil
}

// Coroutine is the Go-native rendition of a stackful coroutine: a real
// goroutine (it already owns a growable stack) gated by a pair of one-shot
// Parkers acting as a context-switch "ticket." A worker grants the ticket
// to let the coroutine run, then parks until the coroutine either yields,
// blocks on an event source, or finishes.
type Coroutine struct {
	id uint64

	ticketIn  *Parker // granted by a worker to resume this coroutine
	ticketOut *Parker // notified by the coroutine to hand control back

	pending atomic.Int32 // suspendReason

	cancel *CancelSource

	deque *dequeNode // intrusive node used by the scheduler's queues

	result    any
	panicVal  any
	finished  atomic.Bool
	joinWaker *Parker

	waitersMu     sync.Mutex
	waiters       []*joinWaiter
	selectWaiters []*joinSelectWaiter
}

// joinWaiter pairs a waiting coroutine with a one-shot guard so a waiter
// that gets cancelled while a competing finish (or vice versa) races it is
// only ever enqueued once.
type joinWaiter struct {
	co    *Coroutine
	fired atomic.Bool
}

func (w *joinWaiter) wake() {
	if w.fired.CompareAndSwap(false, true) {
		enqueueCoroutine(w.co)
	}
}

// joinSelectWaiter is one outstanding JoinHandle.SelectCase registration.
// cancelled lets Unarm suppress a losing branch's resolve call once the
// owning Select has already picked a winner, so a JoinHandle raced
// repeatedly against other branches doesn't accumulate stale callbacks
// that fire (harmlessly, but pointlessly) every time the coroutine
// eventually finishes.
type joinSelectWaiter struct {
	resolve   func(error)
	cancelled atomic.Bool
}

var coroutineIDs atomic.Uint64

func newCoroutine() *Coroutine {
	co := &Coroutine{
		id:        coroutineIDs.Add(1),
		ticketIn:  NewParker(),
		ticketOut: NewParker(),
		cancel:    NewCancelSource(),
		joinWaker: NewParker(),
	}
	co.deque = &dequeNode{co: co}
	return co
}

// ID returns a process-unique, monotonically increasing coroutine id.
func (co *Coroutine) ID() uint64 { return co.id }

// CancelToken returns the token coroutines and event sources check at
// safepoints to see whether this coroutine has been asked to stop.
func (co *Coroutine) CancelToken() *CancelToken { return co.cancel.Token() }

// Cancel requests cooperative cancellation of this coroutine.
func (co *Coroutine) Cancel(reason any) { co.cancel.Cancel(reason) }

// resume grants the ticket and blocks the calling worker until the
// coroutine yields, blocks, or finishes. It returns the reason for the
// handoff back.
func (co *Coroutine) resume() suspendReason {
	co.ticketIn.Notify()
	co.ticketOut.Park()
	return suspendReason(co.pending.Swap(int32(suspendNone)))
}

// suspend is the coroutine side of the ticket handoff: record why control
// is being handed back, notify the worker, and park until the next grant.
func (co *Coroutine) suspend(reason suspendReason) {
	co.pending.Store(int32(reason))
	co.ticketOut.Notify()
	if reason != suspendDone {
		co.ticketIn.Park()
	}
}

// park suspends the coroutine pending an external event source completion.
// Called by awaitEventSource; never called by application code directly.
func (co *Coroutine) park() {
	co.suspend(suspendBlocked)
}

// YieldNow cooperatively yields the current coroutine back to the
// scheduler, which places it at the back of a ready queue. Called outside
// a coroutine, it calls runtime.Gosched instead.
func YieldNow() {
	co := Current()
	if co == nil {
		runtime.Gosched()
		return
	}
	co.suspend(suspendYield)
}

// trampoline is the first thing run on a coroutine's goroutine: wait for
// the first ticket grant, run the entry closure under recover, stash the
// result, mark Done, and perform the final handoff that never returns.
func (co *Coroutine) trampoline(entry func() any) {
	goroutineCoroutines.Store(getGoroutineID(), co)
	defer goroutineCoroutines.Delete(getGoroutineID())

	co.ticketIn.Park() // wait for the first resume()

	func() {
		defer func() {
			if r := recover(); r != nil {
				co.panicVal = r
			}
		}()
		co.result = entry()
	}()

	co.finished.Store(true)
	co.joinWaker.Notify()

	co.waitersMu.Lock()
	waiters := co.waiters
	co.waiters = nil
	selectWaiters := co.selectWaiters
	co.selectWaiters = nil
	co.waitersMu.Unlock()
	for _, w := range waiters {
		w.wake()
	}
	for _, w := range selectWaiters {
		if !w.cancelled.Load() {
			w.resolve(nil)
		}
	}

	co.suspend(suspendDone)
}

// JoinHandle is returned by Spawn and lets the caller await a coroutine's
// result. A JoinHandle that is never joined is still reclaimed: see
// JoinRegistry.
type JoinHandle[T any] struct {
	co *Coroutine
}

// Cancel requests cooperative cancellation of the underlying coroutine.
func (h *JoinHandle[T]) Cancel(reason any) { h.co.Cancel(reason) }

// Cancelled reports whether the underlying coroutine's token was cancelled.
func (h *JoinHandle[T]) Cancelled() bool { return h.co.cancel.Token().Cancelled() }

// Join blocks the calling coroutine (or OS thread, if called from outside
// one) until the spawned coroutine finishes, returning its result or a
// *JoinError wrapping a recovered panic, or ErrCancelled if the token was
// cancelled before the coroutine produced a result. When T is error, a
// non-nil error returned by the coroutine is also returned as Join's error.
func (h *JoinHandle[T]) Join() (T, error) {
	var zero T
	if !h.co.finished.Load() {
		if caller := Current(); caller != nil {
			_, err := AwaitEventSource[struct{}](caller, &joinSource{target: h.co})
			if err != nil {
				return zero, err
			}
		} else {
			h.co.joinWaker.Park()
		}
	}
	if h.co.panicVal != nil {
		return zero, &JoinError{Value: h.co.panicVal}
	}
	if h.co.cancel.Token().Cancelled() && h.co.result == nil {
		return zero, ErrCancelled
	}
	if h.co.result == nil {
		return zero, nil
	}
	v := h.co.result.(T)
	if errp, ok := any(&v).(*error); ok && *errp != nil {
		return v, *errp
	}
	return v, nil
}

// SelectCase builds a Select branch that fires once the underlying
// coroutine finishes. The branch itself never surfaces the result (Select
// only returns a winner index); call Join afterward to retrieve it.
func (h *JoinHandle[T]) SelectCase() SelectCase {
	var w *joinSelectWaiter
	return SelectCase{
		Ready: func() (bool, error) { return h.co.finished.Load(), nil },
		Arm: func(co *Coroutine, resolve func(err error)) {
			h.co.waitersMu.Lock()
			if h.co.finished.Load() {
				h.co.waitersMu.Unlock()
				resolve(nil)
				return
			}
			w = &joinSelectWaiter{resolve: resolve}
			h.co.selectWaiters = append(h.co.selectWaiters, w)
			h.co.waitersMu.Unlock()
		},
		Unarm: func() {
			if w != nil {
				w.cancelled.Store(true)
			}
		},
	}
}

// joinSource adapts a Coroutine's completion into an EventSource so Join
// can suspend a *calling coroutine* (as opposed to an OS thread) cleanly
// through the same AwaitEventSource protocol as everything else: the caller
// is added to the target's waiter list, and the target's trampoline
// re-enqueues every waiter once it finishes. A cancelled caller is removed
// from the waiter list and woken immediately rather than waiting out the
// target's remaining lifetime.
type joinSource struct {
	target *Coroutine
	caller *Coroutine
	waiter *joinWaiter
}

func (j *joinSource) Subscribe(caller *Coroutine) bool {
	j.caller = caller
	if j.target.finished.Load() {
		return true
	}
	j.target.waitersMu.Lock()
	if j.target.finished.Load() {
		j.target.waitersMu.Unlock()
		return true
	}
	j.waiter = &joinWaiter{co: caller}
	j.target.waiters = append(j.target.waiters, j.waiter)
	j.target.waitersMu.Unlock()

	caller.CancelToken().OnCancel(func(reason any) {
		j.target.waitersMu.Lock()
		for i, w := range j.target.waiters {
			if w == j.waiter {
				j.target.waiters = append(j.target.waiters[:i], j.target.waiters[i+1:]...)
				break
			}
		}
		j.target.waitersMu.Unlock()
		j.waiter.wake()
	})
	return false
}

func (j *joinSource) Done() (struct{}, error) {
	if !j.target.finished.Load() && j.caller.CancelToken().Cancelled() {
		return struct{}{}, ErrCancelled
	}
	return struct{}{}, nil
}

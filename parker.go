package loomrt

import "sync/atomic"

// parker states. A Parker moves Empty -> Parked -> Empty when Park comes
// first, or Empty -> Notified -> Empty when Notify comes first. The state word is the single source
// of truth; the channel is only ever used to block the parking goroutine,
// never to carry data.
const (
	parkerEmpty int32 = iota
	parkerParked
	parkerNotified
)

// Parker is a one-shot park/unpark primitive: exactly one notify wakes
// exactly one park, regardless of which happens first. It is the building
// block every suspending operation in this package uses to put a coroutine
// to sleep without blocking the OS thread it was running on.
//
// A Parker is reusable: after Park returns, its state is Empty again and it
// can be parked/notified for the next suspension.
type Parker struct {
	state atomic.Int32
	wake  chan struct{}
}

// NewParker returns a ready-to-use Parker.
func NewParker() *Parker {
	return &Parker{wake: make(chan struct{}, 1)}
}

// Park blocks the calling goroutine until Notify is called. If Notify has
// already been called since the last Park, Park returns immediately.
func (p *Parker) Park() {
	if p.state.CompareAndSwap(parkerEmpty, parkerParked) {
		<-p.wake
		// Notify already reset the state to Empty before sending.
		return
	}
	// Notify raced ahead of us and is already in the Notified state.
	for {
		if p.state.CompareAndSwap(parkerNotified, parkerEmpty) {
			return
		}
	}
}

// Notify wakes a blocked Park call, or arms the Parker so the next Park
// returns immediately. Safe to call any number of times from any goroutine;
// excess notifications are coalesced into a single wakeup.
func (p *Parker) Notify() {
	for {
		switch p.state.Load() {
		case parkerParked:
			if p.state.CompareAndSwap(parkerParked, parkerEmpty) {
				p.wake <- struct{}{}
				return
			}
		case parkerNotified:
			return
		default: // parkerEmpty
			if p.state.CompareAndSwap(parkerEmpty, parkerNotified) {
				return
			}
		}
	}
}

// Reset forces the Parker back to its initial Empty state. Only safe to
// call when no goroutine is concurrently parked on it.
func (p *Parker) Reset() {
	p.state.Store(parkerEmpty)
	select {
	case <-p.wake:
	default:
	}
}

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package channel

import (
	"sync/atomic"

	"github.com/loomrt/loomrt"
)

// SPSC is a bounded single-producer, single-consumer channel. Unlike
// MPSC/MPMC it does not share chanCore's mutex-guarded sendQ/recvQ: with
// exactly one coroutine ever calling Send and exactly one ever calling
// Recv, the producer and consumer only ever touch opposite ends of a fixed
// ring, so the hot path needs no lock at all — just the head/tail
// atomics, which count up without wrapping so head == tail means empty and
// head-tail == capacity means full.
// There is exactly one producer-side and one consumer-side parking slot,
// since only one coroutine can ever be waiting on each side at a time.
//
// Using SPSC from more than one producer or consumer goroutine concurrently
// is a misuse this type does not defend against; reach for MPSC or MPMC
// when that guarantee doesn't hold.
type SPSC[T any] struct {
	buf  []T
	mask uint64

	head atomic.Uint64 // next write slot, advanced only by the producer
	tail atomic.Uint64 // next read slot, advanced only by the consumer

	closed atomic.Bool

	parkedSender   atomic.Pointer[spscSendOp[T]] // set while Send is blocked on a full ring
	parkedReceiver atomic.Pointer[spscRecvOp[T]] // set while Recv is blocked on an empty ring
}

// NewSPSC returns an SPSC channel with room for capacity values, rounded up
// to the next power of two (at least 2, so head==tail is unambiguously
// "empty" and never mistaken for "full").
func NewSPSC[T any](capacity int) *SPSC[T] {
	n := uint64(2)
	for n < uint64(capacity) {
		n <<= 1
	}
	return &SPSC[T]{buf: make([]T, n), mask: n - 1}
}

func (c *SPSC[T]) size() uint64 {
	return c.head.Load() - c.tail.Load()
}

func (c *SPSC[T]) cap() uint64 {
	return uint64(len(c.buf))
}

// spscSendOp parks the producer when the ring is full; Subscribe re-checks
// for space under the same sequencing the atomics already give us, so a
// slot freed between the fast-path check and Subscribe is never missed.
type spscSendOp[T any] struct {
	c     *SPSC[T]
	co    *loomrt.Coroutine
	value T
	err   error
}

func (s *spscSendOp[T]) Subscribe(co *loomrt.Coroutine) bool {
	s.co = co
	if s.c.closed.Load() {
		s.err = loomrt.ErrBrokenChannel
		return true
	}
	if s.c.size() < s.c.cap() {
		s.c.writeAndAdvance(s.value)
		return true
	}
	s.c.parkedSender.Store(s)
	// Re-check after publishing ourselves as the parked sender: Recv may
	// have freed a slot and already looked for (and not found) a parked
	// sender in the window before the Store above became visible.
	if s.c.size() < s.c.cap() && s.c.parkedSender.CompareAndSwap(s, nil) {
		s.c.writeAndAdvance(s.value)
		return true
	}
	// Whichever of {a receiver freeing a slot, Close, cancellation} claims
	// the parkedSender slot via CompareAndSwap is the only one that writes
	// s.err and wakes co — the single atomic slot already gives us the same
	// single-resolution guarantee the other primitives need a separate
	// CAS-guarded bool for.
	co.CancelToken().OnCancel(func(reason any) {
		if s.c.parkedSender.CompareAndSwap(s, nil) {
			s.err = loomrt.ErrCancelled
			loomrt.Wake(co)
		}
	})
	return false
}

func (s *spscSendOp[T]) Done() (struct{}, error) { return struct{}{}, s.err }

// writeAndAdvance completes a send. If a receiver is already parked waiting
// on an empty ring, the value is handed to it directly (it never touches
// the buffer at all); otherwise it's written into the ring in the normal
// way. Either way the receiver must come away with its value actually set
// before being woken, since a woken coroutine resumes straight into
// Done() — it never re-runs Subscribe to fetch anything itself.
func (c *SPSC[T]) writeAndAdvance(value T) {
	if receiver := c.parkedReceiver.Swap(nil); receiver != nil {
		receiver.value = value
		loomrt.Wake(receiver.co)
		return
	}
	h := c.head.Load()
	c.buf[h&c.mask] = value
	c.head.Store(h + 1)
}

// Send blocks co until the ring has room for value, or returns
// ErrBrokenChannel if Close was already called.
func (c *SPSC[T]) Send(co *loomrt.Coroutine, value T) error {
	op := &spscSendOp[T]{c: c, value: value}
	_, err := loomrt.AwaitEventSource[struct{}](co, op)
	return err
}

type spscRecvOp[T any] struct {
	c     *SPSC[T]
	co    *loomrt.Coroutine
	value T
	err   error
}

func (r *spscRecvOp[T]) Subscribe(co *loomrt.Coroutine) bool {
	r.co = co
	if r.c.size() > 0 {
		r.value = r.c.readAndAdvance()
		return true
	}
	if r.c.closed.Load() {
		var zero T
		r.value = zero
		r.err = loomrt.ErrBrokenChannel
		return true
	}
	r.c.parkedReceiver.Store(r)
	if r.c.size() > 0 && r.c.parkedReceiver.CompareAndSwap(r, nil) {
		r.value = r.c.readAndAdvance()
		return true
	}
	co.CancelToken().OnCancel(func(reason any) {
		if r.c.parkedReceiver.CompareAndSwap(r, nil) {
			r.err = loomrt.ErrCancelled
			loomrt.Wake(co)
		}
	})
	return false
}

func (r *spscRecvOp[T]) Done() (T, error) { return r.value, r.err }

// readAndAdvance completes a receive by freeing the slot at tail. If a
// sender was parked waiting for room, its pending value is written into
// that freed slot on its behalf (completing its send) before it's woken —
// same reasoning as writeAndAdvance: a woken coroutine never retries
// Subscribe, so the hand-off must already be done by the time Wake runs.
func (c *SPSC[T]) readAndAdvance() T {
	t := c.tail.Load()
	v := c.buf[t&c.mask]
	var zero T
	c.buf[t&c.mask] = zero
	c.tail.Store(t + 1)
	if sender := c.parkedSender.Swap(nil); sender != nil {
		h := c.head.Load()
		c.buf[h&c.mask] = sender.value
		c.head.Store(h + 1)
		loomrt.Wake(sender.co)
	}
	return v
}

// Recv blocks co until a value is available, or returns ErrBrokenChannel
// once the ring has been closed and fully drained.
func (c *SPSC[T]) Recv(co *loomrt.Coroutine) (T, error) {
	op := &spscRecvOp[T]{c: c}
	return loomrt.AwaitEventSource[T](co, op)
}

// TryRecv takes a value without blocking, reporting false if the ring is
// currently empty.
func (c *SPSC[T]) TryRecv() (T, bool) {
	if c.size() == 0 {
		var zero T
		return zero, false
	}
	return c.readAndAdvance(), true
}

// Close marks the ring closed and wakes whichever side is currently
// parked; a parked Send fails with ErrBrokenChannel immediately, while a
// parked Recv still drains whatever values remain before doing so.
func (c *SPSC[T]) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if sender := c.parkedSender.Swap(nil); sender != nil {
		sender.err = loomrt.ErrBrokenChannel
		loomrt.Wake(sender.co)
	}
	if receiver := c.parkedReceiver.Swap(nil); receiver != nil {
		receiver.err = loomrt.ErrBrokenChannel
		loomrt.Wake(receiver.co)
	}
}

// Len reports the number of currently buffered values.
func (c *SPSC[T]) Len() int { return int(c.size()) }

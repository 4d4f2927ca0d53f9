// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package channel provides bounded, generic, coroutine-aware channels —
// MPSC, MPMC, and SPSC — built on the loomrt EventSource protocol. A
// blocked Send (buffer full, no waiting receiver) or Recv (buffer empty, no
// waiting sender) parks the calling coroutine; it never blocks an OS
// thread.
package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/loomrt/loomrt"
)

// chanCore is the shared bounded-queue engine behind MPSC and MPMC: a fixed
// capacity ring buffer, a FIFO of parked senders for when the buffer is
// full, and a FIFO of parked receivers for when it's empty. Values hand off
// directly between a waiting sender and a waiting receiver whenever
// possible, so the buffer is only actually touched when supply and demand
// don't immediately match up.
type chanCore[T any] struct {
	mu       sync.Mutex
	buf      []T
	capacity int
	closed   bool
	sendQ    []*sendOp[T]
	recvQ    []*recvOp[T]
}

func newChanCore[T any](capacity int) *chanCore[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &chanCore[T]{capacity: capacity}
}

type sendOp[T any] struct {
	c     *chanCore[T]
	co    *loomrt.Coroutine
	value T
	err   error

	// resolve is set only when this op backs a Select branch (see
	// chanCore.sendCase); wake calls it instead of loomrt.Wake in that case,
	// since a Select branch must resolve through its own callback.
	resolve func(error)

	// resolved guards the plain (non-Select) Subscribe path, where a
	// natural hand-off can race a cancellation: whichever of the two wins
	// the CAS is the one that actually wakes co.
	resolved atomic.Bool
}

// wake unblocks whichever side is parked on this op: the normal
// coroutine-level Wake if this op was reached via Subscribe, or the Select
// branch's resolve callback if it was reached via sendCase's Arm. err is
// only actually stored into s.err by whichever caller wins the resolved
// CAS, so a natural hand-off racing a cancellation never data-races the
// field against the other's write.
func (s *sendOp[T]) wake(err error) {
	if s.resolve != nil {
		resolve := s.resolve
		s.resolve = nil
		s.err = err
		resolve(err)
		return
	}
	if s.co != nil && s.resolved.CompareAndSwap(false, true) {
		s.err = err
		loomrt.Wake(s.co)
	}
}

func (s *sendOp[T]) Subscribe(co *loomrt.Coroutine) bool {
	s.co = co
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		s.err = loomrt.ErrBrokenChannel
		return true
	}
	if len(c.recvQ) > 0 {
		r := c.recvQ[0]
		c.recvQ = c.recvQ[1:]
		r.value = s.value
		c.mu.Unlock()
		r.wake(nil)
		c.mu.Lock()
		return true
	}
	if len(c.buf) < c.capacity {
		c.buf = append(c.buf, s.value)
		return true
	}
	c.sendQ = append(c.sendQ, s)
	c.mu.Unlock()
	co.CancelToken().OnCancel(func(reason any) {
		c.mu.Lock()
		for i, q := range c.sendQ {
			if q == s {
				c.sendQ = append(c.sendQ[:i], c.sendQ[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		s.wake(loomrt.ErrCancelled)
	})
	c.mu.Lock()
	return false
}

func (s *sendOp[T]) Done() (struct{}, error) { return struct{}{}, s.err }

type recvOp[T any] struct {
	c     *chanCore[T]
	co    *loomrt.Coroutine
	value T
	err   error

	// resolve is set only when this op backs a Select branch (see
	// chanCore.recvCase); wake calls it instead of loomrt.Wake in that case.
	resolve func(error)

	// resolved guards the plain (non-Select) Subscribe path, where a
	// natural hand-off can race a cancellation: whichever of the two wins
	// the CAS is the one that actually wakes co.
	resolved atomic.Bool
}

// wake unblocks whichever side is parked on this op: the normal
// coroutine-level Wake if reached via Subscribe, or the Select branch's
// resolve callback if reached via recvCase's Arm. err is only actually
// stored into r.err by whichever caller wins the resolved CAS, so a natural
// hand-off racing a cancellation never data-races the field against the
// other's write.
func (r *recvOp[T]) wake(err error) {
	if r.resolve != nil {
		resolve := r.resolve
		r.resolve = nil
		r.err = err
		resolve(err)
		return
	}
	if r.co != nil && r.resolved.CompareAndSwap(false, true) {
		r.err = err
		loomrt.Wake(r.co)
	}
}

func (r *recvOp[T]) Subscribe(co *loomrt.Coroutine) bool {
	r.co = co
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) > 0 {
		r.value = c.buf[0]
		c.buf = c.buf[1:]
		if len(c.sendQ) > 0 {
			s := c.sendQ[0]
			c.sendQ = c.sendQ[1:]
			c.buf = append(c.buf, s.value)
			c.mu.Unlock()
			s.wake(nil)
			c.mu.Lock()
		}
		return true
	}
	if len(c.sendQ) > 0 {
		s := c.sendQ[0]
		c.sendQ = c.sendQ[1:]
		r.value = s.value
		c.mu.Unlock()
		s.wake(nil)
		c.mu.Lock()
		return true
	}
	if c.closed {
		var zero T
		r.value = zero
		r.err = loomrt.ErrBrokenChannel
		return true
	}
	c.recvQ = append(c.recvQ, r)
	c.mu.Unlock()
	co.CancelToken().OnCancel(func(reason any) {
		c.mu.Lock()
		for i, q := range c.recvQ {
			if q == r {
				c.recvQ = append(c.recvQ[:i], c.recvQ[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		r.wake(loomrt.ErrCancelled)
	})
	c.mu.Lock()
	return false
}

func (r *recvOp[T]) Done() (T, error) { return r.value, r.err }

func (c *chanCore[T]) send(co *loomrt.Coroutine, value T) error {
	op := &sendOp[T]{c: c, value: value}
	_, err := loomrt.AwaitEventSource[struct{}](co, op)
	return err
}

func (c *chanCore[T]) recv(co *loomrt.Coroutine) (T, error) {
	op := &recvOp[T]{c: c}
	return loomrt.AwaitEventSource[T](co, op)
}

// sendCase builds a Select branch for sending value on c, mirroring
// recvCase: Ready takes the non-blocking fast path (a waiting receiver or
// spare buffer room), Arm queues a sendOp that resolves through the Select
// callback, and Unarm dequeues it if some other branch wins first.
func (c *chanCore[T]) sendCase(value T) (loomrt.SelectCase, *sendOp[T]) {
	op := &sendOp[T]{c: c, value: value}
	return loomrt.SelectCase{
		Ready: func() (bool, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.closed {
				return true, loomrt.ErrBrokenChannel
			}
			if len(c.recvQ) > 0 {
				r := c.recvQ[0]
				c.recvQ = c.recvQ[1:]
				r.value = value
				c.mu.Unlock()
				r.wake(nil)
				c.mu.Lock()
				return true, nil
			}
			if len(c.buf) < c.capacity {
				c.buf = append(c.buf, value)
				return true, nil
			}
			return false, nil
		},
		Arm: func(co *loomrt.Coroutine, resolve func(error)) {
			op.co = co
			op.resolve = resolve
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				op.err = loomrt.ErrBrokenChannel
				resolve(op.err)
				return
			}
			c.sendQ = append(c.sendQ, op)
			c.mu.Unlock()
		},
		Unarm: func() {
			c.mu.Lock()
			for i, s := range c.sendQ {
				if s == op {
					c.sendQ = append(c.sendQ[:i], c.sendQ[i+1:]...)
					break
				}
			}
			c.mu.Unlock()
		},
	}, op
}

func (c *chanCore[T]) tryRecv() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if len(c.buf) > 0 {
		v := c.buf[0]
		c.buf = c.buf[1:]
		return v, true
	}
	if len(c.sendQ) > 0 {
		s := c.sendQ[0]
		c.sendQ = c.sendQ[1:]
		v := s.value
		c.mu.Unlock()
		s.wake(nil)
		c.mu.Lock()
		return v, true
	}
	return zero, false
}

// recvCase builds a Select branch for a receive on c: Ready takes the
// non-blocking fast path (buffer or a waiting sender), and Arm queues a
// recvOp that resolves via the Select machinery instead of loomrt.Wake,
// exactly like IoData.SelectCase does for reactor readiness. Unarm dequeues
// the op again if some other branch wins the race.
func (c *chanCore[T]) recvCase() (loomrt.SelectCase, *recvOp[T]) {
	op := &recvOp[T]{c: c}
	return loomrt.SelectCase{
		Ready: func() (bool, error) {
			if v, ok := c.tryRecv(); ok {
				op.value = v
				return true, nil
			}
			return false, nil
		},
		Arm: func(co *loomrt.Coroutine, resolve func(error)) {
			op.co = co
			op.resolve = resolve
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				op.err = loomrt.ErrBrokenChannel
				resolve(op.err)
				return
			}
			c.recvQ = append(c.recvQ, op)
			c.mu.Unlock()
		},
		Unarm: func() {
			c.mu.Lock()
			for i, r := range c.recvQ {
				if r == op {
					c.recvQ = append(c.recvQ[:i], c.recvQ[i+1:]...)
					break
				}
			}
			c.mu.Unlock()
		},
	}, op
}

// recvTimeout races a receive against a deadline via Select, so the
// suspend happens on co's own trampoline goroutine rather than a detached
// one — a raw goroutine calling c.recv(co) would park co's ticket from the
// wrong goroutine and break the scheduler's handoff model.
func (c *chanCore[T]) recvTimeout(co *loomrt.Coroutine, d time.Duration) (T, error) {
	if v, ok := c.tryRecv(); ok {
		return v, nil
	}
	recvCase, op := c.recvCase()
	idx, err := loomrt.Select(co, recvCase, loomrt.SleepCase(d))
	if err != nil {
		var zero T
		return zero, err
	}
	if idx == 1 {
		var zero T
		return zero, loomrt.ErrTimedOut
	}
	return op.value, op.err
}

func (c *chanCore[T]) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	recvQ := c.recvQ
	c.recvQ = nil
	sendQ := c.sendQ
	c.sendQ = nil
	c.mu.Unlock()

	var zero T
	for _, r := range recvQ {
		r.value = zero
		r.wake(loomrt.ErrBrokenChannel)
	}
	for _, s := range sendQ {
		s.wake(loomrt.ErrBrokenChannel)
	}
}

func (c *chanCore[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

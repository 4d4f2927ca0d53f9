// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncx

import (
	"sync"
	"sync/atomic"

	"github.com/loomrt/loomrt"
)

// Cond is a condition variable: coroutines park in Wait until another
// coroutine calls Signal or Broadcast. Unlike sync.Cond, it is not tied to
// one particular Locker at construction time — Wait takes whichever Guard
// the caller currently holds and releases it atomically with registering
// as a waiter, so a Signal racing the unlock can never be lost.
type Cond struct {
	mu      sync.Mutex
	waiters []*condWait
}

// NewCond returns a ready-to-use Cond.
func NewCond() *Cond { return &Cond{} }

type condWait struct {
	c       *Cond
	co      *loomrt.Coroutine
	release func()
	err     error

	// woken guards against Signal/Broadcast racing a cancellation.
	woken atomic.Bool
}

func (w *condWait) wake(err error) {
	if w.woken.CompareAndSwap(false, true) {
		w.err = err
		loomrt.Wake(w.co)
	}
}

func (w *condWait) Subscribe(co *loomrt.Coroutine) bool {
	w.co = co
	w.c.mu.Lock()
	w.c.waiters = append(w.c.waiters, w)
	w.c.mu.Unlock()
	// Release the associated lock only now that co is registered as a
	// waiter, so a Signal arriving between unlock and park can't be missed.
	w.release()

	co.CancelToken().OnCancel(func(reason any) {
		w.c.mu.Lock()
		for i, q := range w.c.waiters {
			if q == w {
				w.c.waiters = append(w.c.waiters[:i], w.c.waiters[i+1:]...)
				break
			}
		}
		w.c.mu.Unlock()
		w.wake(loomrt.ErrCancelled)
	})
	return false
}

func (w *condWait) Done() (struct{}, error) { return struct{}{}, w.err }

// Wait releases g, suspends co until Signal or Broadcast wakes it, then
// reacquires the same Mutex before returning a fresh Guard. The standard
// usage is a predicate loop:
//
//	g, _ := m.Lock(co)
//	for !ready {
//	    g, _ = cond.Wait(co, g)
//	}
//	defer g.Unlock()
func (c *Cond) Wait(co *loomrt.Coroutine, g *Guard) (*Guard, error) {
	if _, err := loomrt.AwaitEventSource[struct{}](co, &condWait{c: c, release: g.Unlock}); err != nil {
		return nil, err
	}
	return g.m.Lock(co)
}

// Signal wakes one waiting coroutine, if any.
func (c *Cond) Signal() {
	c.mu.Lock()
	if len(c.waiters) == 0 {
		c.mu.Unlock()
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	c.mu.Unlock()
	w.wake(nil)
}

// Broadcast wakes every waiting coroutine.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, w := range waiters {
		w.wake(nil)
	}
}

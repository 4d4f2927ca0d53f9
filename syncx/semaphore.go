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

// Semaphore is a counting semaphore. Release transfers a permit directly to
// the next waiter rather than incrementing the count and letting whoever
// notices first grab it, so waiters are served in FIFO order.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	waiters []*semAcquire
}

// NewSemaphore returns a Semaphore initialized with n available permits.
func NewSemaphore(n int) *Semaphore {
	if n < 0 {
		n = 0
	}
	return &Semaphore{permits: n}
}

type semAcquire struct {
	s   *Semaphore
	co  *loomrt.Coroutine
	err error

	// woken guards against Release racing a cancellation; wake reports
	// whether it actually claimed the wakeup, so Release can tell a
	// transferred permit was accepted rather than lost to a cancelled
	// waiter.
	woken atomic.Bool
}

func (a *semAcquire) wake(err error) bool {
	if a.woken.CompareAndSwap(false, true) {
		a.err = err
		loomrt.Wake(a.co)
		return true
	}
	return false
}

func (a *semAcquire) Subscribe(co *loomrt.Coroutine) bool {
	a.co = co
	a.s.mu.Lock()
	if a.s.permits > 0 {
		a.s.permits--
		a.s.mu.Unlock()
		return true
	}
	a.s.waiters = append(a.s.waiters, a)
	a.s.mu.Unlock()

	co.CancelToken().OnCancel(func(reason any) {
		a.s.mu.Lock()
		for i, w := range a.s.waiters {
			if w == a {
				a.s.waiters = append(a.s.waiters[:i], a.s.waiters[i+1:]...)
				break
			}
		}
		a.s.mu.Unlock()
		a.wake(loomrt.ErrCancelled)
	})
	return false
}

func (a *semAcquire) Done() (struct{}, error) { return struct{}{}, a.err }

// Acquire blocks co until a permit is available.
func (s *Semaphore) Acquire(co *loomrt.Coroutine) error {
	_, err := loomrt.AwaitEventSource[struct{}](co, &semAcquire{s: s})
	return err
}

// TryAcquire takes a permit without blocking, reporting whether one was
// available.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permits > 0 {
		s.permits--
		return true
	}
	return false
}

// Release returns a permit, handing it directly to the longest-waiting
// coroutine if one is parked, or incrementing the available count
// otherwise. If the chosen waiter was cancelled in the same instant, the
// permit moves on to the next one instead of vanishing.
func (s *Semaphore) Release() {
	for {
		s.mu.Lock()
		if len(s.waiters) == 0 {
			s.permits++
			s.mu.Unlock()
			return
		}
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		if next.wake(nil) {
			return
		}
	}
}

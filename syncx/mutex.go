// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package syncx provides coroutine-aware synchronization primitives —
// Mutex, RWMutex, Cond, Semaphore, Flag — built on loomrt.Parker and the
// EventSource protocol, so a blocked Lock/RLock/Acquire/Wait suspends the
// calling coroutine rather than the OS thread it happens to be running on.
//
// Mutex and RWMutex propagate poison: if the coroutine holding an exclusive
// lock panics before unlocking, the lock is marked poisoned and every
// subsequent (and currently waiting) Lock/RLock call fails with
// loomrt.ErrPoisoned, mirroring the stdlib sync.Mutex poisoning design
// discussed in the runtime's own sync/poison notes — a deliberately broken
// lock is safer than silently granting access to data a panic may have left
// half-mutated.
package syncx

import (
	"sync"
	"sync/atomic"

	"github.com/loomrt/loomrt"
)

// Mutex is a mutual-exclusion lock whose waiters park instead of spinning
// or blocking an OS thread. Ownership transfers directly from the unlocking
// holder to the next waiter (no barging), so FIFO order among waiters is
// exact.
type Mutex struct {
	mu       sync.Mutex
	locked   bool
	poisoned bool
	waiters  []*mutexAcquire
}

// NewMutex returns an unlocked Mutex. The zero value is also ready to use;
// this constructor exists to match the other syncx primitives.
func NewMutex() *Mutex { return &Mutex{} }

// Guard is returned by Mutex.Lock and released via Unlock. Callers should
// always `defer guard.Unlock()` immediately after a successful Lock, so a
// panicking holder poisons the mutex instead of leaving it silently locked
// forever.
type Guard struct {
	m *Mutex
}

type mutexAcquire struct {
	m   *Mutex
	co  *loomrt.Coroutine
	err error

	// woken guards against a natural wakeup racing a cancellation: only
	// whichever of the two wins the CAS actually re-enqueues co.
	woken atomic.Bool
}

// wake reports whether this call actually performed the wakeup: false
// means a.err/loomrt.Wake was already claimed by the other side of the
// natural-completion/cancellation race, so the caller (if it was offering
// ownership) must not assume it was accepted.
func (a *mutexAcquire) wake(err error) bool {
	if a.woken.CompareAndSwap(false, true) {
		a.err = err
		loomrt.Wake(a.co)
		return true
	}
	return false
}

func (a *mutexAcquire) Subscribe(co *loomrt.Coroutine) bool {
	a.co = co
	a.m.mu.Lock()
	if a.m.poisoned {
		a.err = loomrt.ErrPoisoned
		a.m.mu.Unlock()
		return true
	}
	if !a.m.locked {
		a.m.locked = true
		a.m.mu.Unlock()
		return true
	}
	a.m.waiters = append(a.m.waiters, a)
	a.m.mu.Unlock()

	co.CancelToken().OnCancel(func(reason any) {
		a.m.mu.Lock()
		for i, w := range a.m.waiters {
			if w == a {
				a.m.waiters = append(a.m.waiters[:i], a.m.waiters[i+1:]...)
				break
			}
		}
		a.m.mu.Unlock()
		a.wake(loomrt.ErrCancelled)
	})
	return false
}

func (a *mutexAcquire) Done() (struct{}, error) { return struct{}{}, a.err }

// Lock blocks co until the mutex is acquired, or returns loomrt.ErrPoisoned
// if the mutex was already poisoned, or the calling coroutine's
// CancelToken fires while waiting.
func (m *Mutex) Lock(co *loomrt.Coroutine) (*Guard, error) {
	a := &mutexAcquire{m: m}
	if _, err := loomrt.AwaitEventSource[struct{}](co, a); err != nil {
		return nil, err
	}
	return &Guard{m: m}, nil
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() (*Guard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poisoned || m.locked {
		return nil, false
	}
	m.locked = true
	return &Guard{m: m}, true
}

// Unlock releases the mutex, transferring ownership directly to the next
// waiter if one exists. Must be called via `defer guard.Unlock()`: if the
// calling goroutine is unwinding from a panic when Unlock runs, the panic
// is recovered just long enough to poison the mutex, then re-raised so the
// original panic still propagates to the coroutine's trampoline.
func (g *Guard) Unlock() {
	if r := recover(); r != nil {
		g.m.poisonAndWakeAll()
		panic(r)
	}
	g.m.unlock()
}

// unlock transfers ownership to the next waiter. If that waiter was
// cancelled in the same instant (it already claimed its own wake with
// ErrCancelled), the handoff wasn't accepted, so ownership moves on to the
// waiter after it instead of leaking the lock in a permanently-held state.
func (m *Mutex) unlock() {
	for {
		m.mu.Lock()
		if len(m.waiters) == 0 {
			m.locked = false
			m.mu.Unlock()
			return
		}
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.mu.Unlock()
		if next.wake(nil) {
			return
		}
	}
}

func (m *Mutex) poisonAndWakeAll() {
	m.mu.Lock()
	m.poisoned = true
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()
	for _, w := range waiters {
		w.wake(loomrt.ErrPoisoned)
	}
}

// Poisoned reports whether a previous holder panicked while holding this
// mutex.
func (m *Mutex) Poisoned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poisoned
}

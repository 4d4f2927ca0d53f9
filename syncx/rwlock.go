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

// RWMutex is a reader/writer lock. Writers are preferred over new readers
// (a reader arriving while a writer is queued joins the read-waiter queue
// behind it) so a steady stream of readers can't starve a writer.
//
// Only a panicking writer poisons the lock (see Mutex's doc comment for
// why): a panicking reader hasn't necessarily corrupted anything a write
// lock protects, and the stdlib's own RWMutex draws the same distinction
// implicitly by having no reader-side poisoning at all.
type RWMutex struct {
	mu           sync.Mutex
	poisoned     bool
	writer       bool
	readers      int
	writeWaiters []*rwAcquire
	readWaiters  []*rwAcquire
}

// NewRWMutex returns an unlocked RWMutex. The zero value is also ready to
// use; this constructor exists to match the other syncx primitives.
func NewRWMutex() *RWMutex { return &RWMutex{} }

// WriteGuard is returned by RWMutex.Lock.
type WriteGuard struct{ rw *RWMutex }

// ReadGuard is returned by RWMutex.RLock.
type ReadGuard struct{ rw *RWMutex }

type rwAcquire struct {
	rw    *RWMutex
	write bool
	co    *loomrt.Coroutine
	err   error

	// woken guards against a natural handoff racing a cancellation, same
	// pattern as mutexAcquire.
	woken atomic.Bool
}

func (a *rwAcquire) wake(err error) {
	if a.woken.CompareAndSwap(false, true) {
		a.err = err
		loomrt.Wake(a.co)
	}
}

func (a *rwAcquire) Subscribe(co *loomrt.Coroutine) bool {
	a.co = co
	rw := a.rw
	rw.mu.Lock()

	if rw.poisoned {
		a.err = loomrt.ErrPoisoned
		rw.mu.Unlock()
		return true
	}
	if a.write {
		if !rw.writer && rw.readers == 0 && len(rw.writeWaiters) == 0 {
			rw.writer = true
			rw.mu.Unlock()
			return true
		}
		rw.writeWaiters = append(rw.writeWaiters, a)
		rw.mu.Unlock()
		co.CancelToken().OnCancel(func(reason any) {
			rw.mu.Lock()
			for i, w := range rw.writeWaiters {
				if w == a {
					rw.writeWaiters = append(rw.writeWaiters[:i], rw.writeWaiters[i+1:]...)
					break
				}
			}
			rw.mu.Unlock()
			a.wake(loomrt.ErrCancelled)
		})
		return false
	}
	if !rw.writer && len(rw.writeWaiters) == 0 {
		rw.readers++
		rw.mu.Unlock()
		return true
	}
	rw.readWaiters = append(rw.readWaiters, a)
	rw.mu.Unlock()
	co.CancelToken().OnCancel(func(reason any) {
		rw.mu.Lock()
		for i, w := range rw.readWaiters {
			if w == a {
				rw.readWaiters = append(rw.readWaiters[:i], rw.readWaiters[i+1:]...)
				break
			}
		}
		rw.mu.Unlock()
		a.wake(loomrt.ErrCancelled)
	})
	return false
}

func (a *rwAcquire) Done() (struct{}, error) { return struct{}{}, a.err }

// Lock acquires exclusive access, blocking co until no reader or writer
// holds the lock.
func (rw *RWMutex) Lock(co *loomrt.Coroutine) (*WriteGuard, error) {
	a := &rwAcquire{rw: rw, write: true}
	if _, err := loomrt.AwaitEventSource[struct{}](co, a); err != nil {
		return nil, err
	}
	return &WriteGuard{rw: rw}, nil
}

// RLock acquires shared access, blocking co only if a writer holds or is
// waiting for the lock.
func (rw *RWMutex) RLock(co *loomrt.Coroutine) (*ReadGuard, error) {
	a := &rwAcquire{rw: rw, write: false}
	if _, err := loomrt.AwaitEventSource[struct{}](co, a); err != nil {
		return nil, err
	}
	return &ReadGuard{rw: rw}, nil
}

// Unlock releases exclusive access. See Mutex.Unlock's doc comment for the
// recover-then-repanic poisoning mechanism — identical here.
func (g *WriteGuard) Unlock() {
	if r := recover(); r != nil {
		g.rw.poisonAndWakeAll()
		panic(r)
	}
	g.rw.unlockWrite()
}

// RUnlock releases this reader's share of the lock.
func (g *ReadGuard) RUnlock() {
	g.rw.unlockRead()
}

func (rw *RWMutex) unlockWrite() {
	rw.mu.Lock()
	rw.writer = false
	if len(rw.writeWaiters) > 0 {
		next := rw.writeWaiters[0]
		rw.writeWaiters = rw.writeWaiters[1:]
		rw.writer = true
		rw.mu.Unlock()
		next.wake(nil)
		return
	}
	readers := rw.readWaiters
	rw.readWaiters = nil
	rw.readers = len(readers)
	rw.mu.Unlock()
	for _, r := range readers {
		r.wake(nil)
	}
}

func (rw *RWMutex) unlockRead() {
	rw.mu.Lock()
	rw.readers--
	if rw.readers == 0 && len(rw.writeWaiters) > 0 {
		next := rw.writeWaiters[0]
		rw.writeWaiters = rw.writeWaiters[1:]
		rw.writer = true
		rw.mu.Unlock()
		next.wake(nil)
		return
	}
	rw.mu.Unlock()
}

func (rw *RWMutex) poisonAndWakeAll() {
	rw.mu.Lock()
	rw.poisoned = true
	writers := rw.writeWaiters
	readers := rw.readWaiters
	rw.writeWaiters, rw.readWaiters = nil, nil
	rw.mu.Unlock()
	for _, w := range writers {
		w.wake(loomrt.ErrPoisoned)
	}
	for _, r := range readers {
		r.wake(loomrt.ErrPoisoned)
	}
}

// Poisoned reports whether a writer previously panicked while holding this
// lock.
func (rw *RWMutex) Poisoned() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.poisoned
}

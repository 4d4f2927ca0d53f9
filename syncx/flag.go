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

// Flag is a one-shot, manual-reset event: once Set, every past and future
// Wait call returns immediately. Useful for a "ready"/"shutdown" signal
// shared by many coroutines, where a WaitGroup-of-one would otherwise be
// reached for.
type Flag struct {
	mu      sync.Mutex
	set     bool
	waiters []*flagWait
}

// NewFlag returns an unset Flag.
func NewFlag() *Flag { return &Flag{} }

type flagWait struct {
	f   *Flag
	co  *loomrt.Coroutine
	err error

	// woken guards against Set racing a cancellation.
	woken atomic.Bool
}

func (w *flagWait) wake(err error) {
	if w.woken.CompareAndSwap(false, true) {
		w.err = err
		loomrt.Wake(w.co)
	}
}

func (w *flagWait) Subscribe(co *loomrt.Coroutine) bool {
	w.co = co
	w.f.mu.Lock()
	if w.f.set {
		w.f.mu.Unlock()
		return true
	}
	w.f.waiters = append(w.f.waiters, w)
	w.f.mu.Unlock()

	co.CancelToken().OnCancel(func(reason any) {
		w.f.mu.Lock()
		for i, q := range w.f.waiters {
			if q == w {
				w.f.waiters = append(w.f.waiters[:i], w.f.waiters[i+1:]...)
				break
			}
		}
		w.f.mu.Unlock()
		w.wake(loomrt.ErrCancelled)
	})
	return false
}

func (w *flagWait) Done() (struct{}, error) { return struct{}{}, w.err }

// Wait blocks co until the flag is set.
func (f *Flag) Wait(co *loomrt.Coroutine) error {
	_, err := loomrt.AwaitEventSource[struct{}](co, &flagWait{f: f})
	return err
}

// Set marks the flag and wakes every coroutine currently waiting. A no-op
// if already set.
func (f *Flag) Set() {
	f.mu.Lock()
	if f.set {
		f.mu.Unlock()
		return
	}
	f.set = true
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()
	for _, w := range waiters {
		w.wake(nil)
	}
}

// IsSet reports whether Set has been called.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

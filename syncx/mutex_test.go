// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncx

import (
	"errors"
	"testing"
	"time"

	"github.com/loomrt/loomrt"
)

type guardResult struct {
	g   *Guard
	err error
}

func lockAsync(m *Mutex) *loomrt.JoinHandle[guardResult] {
	return loomrt.Spawn(func(co *loomrt.Coroutine) guardResult {
		g, err := m.Lock(co)
		return guardResult{g, err}
	})
}

func TestMutexExclusion(t *testing.T) {
	m := NewMutex()
	const n = 6
	counter := 0
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		loomrt.Spawn(func(co *loomrt.Coroutine) error {
			g, err := m.Lock(co)
			if err != nil {
				return err
			}
			defer g.Unlock()
			local := counter
			_ = loomrt.Sleep(time.Millisecond)
			counter = local + 1
			done <- struct{}{}
			return nil
		})
	}
	for i := 0; i < n; i++ {
		<-done
	}
	if counter != n {
		t.Fatalf("counter = %d, want %d (lost update under concurrent Lock)", counter, n)
	}
}

func TestMutexFIFOHandoff(t *testing.T) {
	m := NewMutex()
	holder := lockAsync(m)
	res0, err := holder.Join()
	g0 := res0.g
	if err != nil {
		t.Fatalf("initial Lock err = %v", err)
	}

	var order []int
	const waiters = 3
	handles := make([]*loomrt.JoinHandle[error], waiters)
	for i := 0; i < waiters; i++ {
		i := i
		handles[i] = loomrt.Spawn(func(co *loomrt.Coroutine) error {
			g, err := m.Lock(co)
			if err != nil {
				return err
			}
			order = append(order, i)
			g.Unlock()
			return nil
		})
		loomrt.Sleep(time.Millisecond)
	}

	g0.Unlock()
	for i := 0; i < waiters; i++ {
		if _, err := handles[i].Join(); err != nil {
			t.Fatalf("waiter %d Join() err = %v", i, err)
		}
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("acquire order = %v, want FIFO 0..%d", order, waiters-1)
		}
	}
}

func TestMutexLockCancelUnsticks(t *testing.T) {
	m := NewMutex()
	holder := lockAsync(m)
	res, err := holder.Join()
	g := res.g
	if err != nil {
		t.Fatalf("initial Lock err = %v", err)
	}
	defer g.Unlock()

	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_, err := m.Lock(co)
		return err
	})
	h.Cancel("stop")
	if _, err := h.Join(); !errors.Is(err, loomrt.ErrCancelled) {
		t.Fatalf("Join() err = %v, want ErrCancelled", err)
	}
}

func TestMutexCancelDoesNotLosePermanentLock(t *testing.T) {
	m := NewMutex()
	holder := lockAsync(m)
	res, err := holder.Join()
	g := res.g
	if err != nil {
		t.Fatalf("initial Lock err = %v", err)
	}

	cancelled := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_, err := m.Lock(co)
		return err
	})
	survivor := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		lg, err := m.Lock(co)
		if err != nil {
			return err
		}
		lg.Unlock()
		return nil
	})

	cancelled.Cancel("stop")
	g.Unlock()

	if _, err := cancelled.Join(); !errors.Is(err, loomrt.ErrCancelled) {
		t.Fatalf("cancelled waiter Join() err = %v, want ErrCancelled", err)
	}
	if _, err := survivor.Join(); err != nil {
		t.Fatalf("survivor Join() err = %v, want nil (lock must not be lost to a cancelled waiter)", err)
	}
}

func TestMutexPanicPoisonsLock(t *testing.T) {
	m := NewMutex()
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		g, err := m.Lock(co)
		if err != nil {
			return err
		}
		defer g.Unlock()
		panic("boom")
	})
	if _, err := h.Join(); err == nil {
		t.Fatalf("Join() err = nil, want panic propagated as JoinError")
	}
	if !m.Poisoned() {
		t.Fatalf("Poisoned() = false, want true after panicking holder")
	}

	h2 := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_, err := m.Lock(co)
		return err
	})
	if _, err := h2.Join(); !errors.Is(err, loomrt.ErrPoisoned) {
		t.Fatalf("Lock() on poisoned mutex err = %v, want ErrPoisoned", err)
	}
}

func TestMutexTryLock(t *testing.T) {
	m := NewMutex()
	g, ok := m.TryLock()
	if !ok {
		t.Fatalf("TryLock() on unlocked mutex = false, want true")
	}
	if _, ok := m.TryLock(); ok {
		t.Fatalf("TryLock() on held mutex = true, want false")
	}
	g.Unlock()
	if _, ok := m.TryLock(); !ok {
		t.Fatalf("TryLock() after Unlock = false, want true")
	}
}

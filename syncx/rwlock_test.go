// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package syncx

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loomrt/loomrt"
)

type writeGuardResult struct {
	g   *WriteGuard
	err error
}

type readGuardResult struct {
	g   *ReadGuard
	err error
}

func lockWriteAsync(rw *RWMutex) *loomrt.JoinHandle[writeGuardResult] {
	return loomrt.Spawn(func(co *loomrt.Coroutine) writeGuardResult {
		g, err := rw.Lock(co)
		return writeGuardResult{g, err}
	})
}

func lockReadAsync(rw *RWMutex) *loomrt.JoinHandle[readGuardResult] {
	return loomrt.Spawn(func(co *loomrt.Coroutine) readGuardResult {
		g, err := rw.RLock(co)
		return readGuardResult{g, err}
	})
}

func TestRWMutexConcurrentReaders(t *testing.T) {
	rw := NewRWMutex()
	var active atomic.Int32
	var maxActive atomic.Int32
	const n = 5
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		loomrt.Spawn(func(co *loomrt.Coroutine) error {
			g, err := rw.RLock(co)
			if err != nil {
				return err
			}
			defer g.RUnlock()
			cur := active.Add(1)
			for {
				prev := maxActive.Load()
				if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
					break
				}
			}
			_ = loomrt.Sleep(2 * time.Millisecond)
			active.Add(-1)
			done <- struct{}{}
			return nil
		})
	}
	for i := 0; i < n; i++ {
		<-done
	}
	if maxActive.Load() < 2 {
		t.Fatalf("maxActive = %d, want concurrent readers to have overlapped", maxActive.Load())
	}
}

func TestRWMutexWriterExcludesReaders(t *testing.T) {
	rw := NewRWMutex()
	wh := lockWriteAsync(rw)
	wres, err := wh.Join()
	wg := wres.g
	if err != nil {
		t.Fatalf("Lock() err = %v", err)
	}

	rDone := make(chan struct{})
	rh := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		g, err := rw.RLock(co)
		if err != nil {
			return err
		}
		close(rDone)
		g.RUnlock()
		return nil
	})

	select {
	case <-rDone:
		t.Fatalf("RLock() succeeded while writer held the lock")
	case <-time.After(10 * time.Millisecond):
	}

	wg.Unlock()
	if _, err := rh.Join(); err != nil {
		t.Fatalf("reader Join() err = %v", err)
	}
}

func TestRWMutexWriterPreferredOverLateReader(t *testing.T) {
	rw := NewRWMutex()
	rh0 := lockReadAsync(rw)
	rres0, err := rh0.Join()
	rg0 := rres0.g
	if err != nil {
		t.Fatalf("initial RLock() err = %v", err)
	}

	var order []string
	wh := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		g, err := rw.Lock(co)
		if err != nil {
			return err
		}
		order = append(order, "writer")
		g.Unlock()
		return nil
	})
	loomrt.Sleep(2 * time.Millisecond)

	rh1 := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		g, err := rw.RLock(co)
		if err != nil {
			return err
		}
		order = append(order, "reader")
		g.RUnlock()
		return nil
	})
	loomrt.Sleep(2 * time.Millisecond)

	rg0.RUnlock()
	if _, err := wh.Join(); err != nil {
		t.Fatalf("writer Join() err = %v", err)
	}
	if _, err := rh1.Join(); err != nil {
		t.Fatalf("late reader Join() err = %v", err)
	}
	if len(order) != 2 || order[0] != "writer" {
		t.Fatalf("order = %v, want [writer reader] (writer should not be starved)", order)
	}
}

func TestRWMutexRLockCancelUnsticks(t *testing.T) {
	rw := NewRWMutex()
	wh := lockWriteAsync(rw)
	wres, err := wh.Join()
	wg := wres.g
	if err != nil {
		t.Fatalf("Lock() err = %v", err)
	}
	defer wg.Unlock()

	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_, err := rw.RLock(co)
		return err
	})
	h.Cancel("stop")
	if _, err := h.Join(); !errors.Is(err, loomrt.ErrCancelled) {
		t.Fatalf("Join() err = %v, want ErrCancelled", err)
	}
}

func TestRWMutexWriterPanicPoisons(t *testing.T) {
	rw := NewRWMutex()
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		g, err := rw.Lock(co)
		if err != nil {
			return err
		}
		defer g.Unlock()
		panic("boom")
	})
	if _, err := h.Join(); err == nil {
		t.Fatalf("Join() err = nil, want panic propagated")
	}
	if !rw.Poisoned() {
		t.Fatalf("Poisoned() = false, want true after panicking writer")
	}

	h2 := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_, err := rw.RLock(co)
		return err
	})
	if _, err := h2.Join(); !errors.Is(err, loomrt.ErrPoisoned) {
		t.Fatalf("RLock() on poisoned lock err = %v, want ErrPoisoned", err)
	}
}

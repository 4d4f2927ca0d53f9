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

func TestSemaphoreLimitsConcurrency(t *testing.T) {
	s := NewSemaphore(2)
	var active atomic.Int32
	var maxActive atomic.Int32
	const n = 6
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		loomrt.Spawn(func(co *loomrt.Coroutine) error {
			if err := s.Acquire(co); err != nil {
				return err
			}
			cur := active.Add(1)
			for {
				prev := maxActive.Load()
				if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
					break
				}
			}
			_ = loomrt.Sleep(3 * time.Millisecond)
			active.Add(-1)
			s.Release()
			done <- struct{}{}
			return nil
		})
	}
	for i := 0; i < n; i++ {
		<-done
	}
	if maxActive.Load() > 2 {
		t.Fatalf("maxActive = %d, want at most 2 concurrent holders", maxActive.Load())
	}
}

func TestSemaphoreTryAcquire(t *testing.T) {
	s := NewSemaphore(1)
	if !s.TryAcquire() {
		t.Fatalf("TryAcquire() on fresh semaphore = false, want true")
	}
	if s.TryAcquire() {
		t.Fatalf("TryAcquire() with no permits = true, want false")
	}
	s.Release()
	if !s.TryAcquire() {
		t.Fatalf("TryAcquire() after Release = false, want true")
	}
}

func TestSemaphoreAcquireCancelDoesNotLosePermit(t *testing.T) {
	s := NewSemaphore(1)
	if !s.TryAcquire() {
		t.Fatalf("TryAcquire() = false, want true")
	}

	cancelled := loomrt.Spawn(func(co *loomrt.Coroutine) error { return s.Acquire(co) })
	survivor := loomrt.Spawn(func(co *loomrt.Coroutine) error { return s.Acquire(co) })

	loomrt.Sleep(2 * time.Millisecond)
	cancelled.Cancel("stop")
	s.Release()

	if _, err := cancelled.Join(); !errors.Is(err, loomrt.ErrCancelled) {
		t.Fatalf("cancelled waiter Join() err = %v, want ErrCancelled", err)
	}
	if _, err := survivor.Join(); err != nil {
		t.Fatalf("survivor Join() err = %v, want nil (permit must not be lost to a cancelled waiter)", err)
	}
}

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

func TestFlagWaitBlocksUntilSet(t *testing.T) {
	f := NewFlag()
	const n = 4
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		loomrt.Spawn(func(co *loomrt.Coroutine) error {
			if err := f.Wait(co); err != nil {
				return err
			}
			done <- struct{}{}
			return nil
		})
	}

	select {
	case <-done:
		t.Fatalf("Wait() returned before Set()")
	case <-time.After(10 * time.Millisecond):
	}

	f.Set()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Set() did not wake all %d waiters (got %d)", n, i)
		}
	}
}

func TestFlagWaitAfterSetReturnsImmediately(t *testing.T) {
	f := NewFlag()
	f.Set()
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error { return f.Wait(co) })
	if _, err := h.Join(); err != nil {
		t.Fatalf("Wait() after Set() err = %v", err)
	}
}

func TestFlagSetIsIdempotent(t *testing.T) {
	f := NewFlag()
	f.Set()
	f.Set()
	if !f.IsSet() {
		t.Fatalf("IsSet() = false after Set(), want true")
	}
}

func TestFlagWaitCancelUnsticks(t *testing.T) {
	f := NewFlag()
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error { return f.Wait(co) })
	h.Cancel("stop")
	if _, err := h.Join(); !errors.Is(err, loomrt.ErrCancelled) {
		t.Fatalf("Join() err = %v, want ErrCancelled", err)
	}
}

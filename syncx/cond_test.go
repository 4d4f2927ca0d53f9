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

func TestCondSignalWakesOneWaiter(t *testing.T) {
	m := NewMutex()
	c := NewCond()
	ready := false

	woke := make(chan int, 2)
	for id := 0; id < 2; id++ {
		id := id
		loomrt.Spawn(func(co *loomrt.Coroutine) error {
			g, err := m.Lock(co)
			if err != nil {
				return err
			}
			for !ready {
				g, err = c.Wait(co, g)
				if err != nil {
					return err
				}
			}
			g.Unlock()
			woke <- id
			return nil
		})
	}
	loomrt.Sleep(5 * time.Millisecond)

	setter := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		g, err := m.Lock(co)
		if err != nil {
			return err
		}
		ready = true
		g.Unlock()
		c.Signal()
		return nil
	})
	if _, err := setter.Join(); err != nil {
		t.Fatalf("setter Join() err = %v", err)
	}

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatalf("Signal() did not wake any waiter")
	}
}

func TestCondBroadcastWakesAll(t *testing.T) {
	m := NewMutex()
	c := NewCond()
	ready := false
	const n = 4
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		loomrt.Spawn(func(co *loomrt.Coroutine) error {
			g, err := m.Lock(co)
			if err != nil {
				return err
			}
			for !ready {
				g, err = c.Wait(co, g)
				if err != nil {
					return err
				}
			}
			g.Unlock()
			done <- struct{}{}
			return nil
		})
	}
	loomrt.Sleep(5 * time.Millisecond)

	setter := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		g, err := m.Lock(co)
		if err != nil {
			return err
		}
		ready = true
		g.Unlock()
		c.Broadcast()
		return nil
	})
	if _, err := setter.Join(); err != nil {
		t.Fatalf("setter Join() err = %v", err)
	}
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Broadcast() did not wake all %d waiters (got %d)", n, i)
		}
	}
}

func TestCondWaitCancelUnsticks(t *testing.T) {
	m := NewMutex()
	c := NewCond()
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		g, err := m.Lock(co)
		if err != nil {
			return err
		}
		_, err = c.Wait(co, g)
		return err
	})
	loomrt.Sleep(5 * time.Millisecond)
	h.Cancel("stop")
	if _, err := h.Join(); !errors.Is(err, loomrt.ErrCancelled) {
		t.Fatalf("Join() err = %v, want ErrCancelled", err)
	}
}

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package channel

import (
	"errors"
	"testing"
	"time"

	"github.com/loomrt/loomrt"
)

func TestMPSCSendRecvFIFO(t *testing.T) {
	ch := NewMPSC[int](4)
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		for i := 0; i < 4; i++ {
			if err := ch.Send(co, i); err != nil {
				return err
			}
		}
		return nil
	})
	got := make([]int, 0, 4)
	r := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		for i := 0; i < 4; i++ {
			v, err := ch.Recv(co)
			if err != nil {
				return err
			}
			got = append(got, v)
		}
		return nil
	})
	if _, err := h.Join(); err != nil {
		t.Fatalf("sender Join() err = %v", err)
	}
	if _, err := r.Join(); err != nil {
		t.Fatalf("receiver Join() err = %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d (order: %v)", i, v, i, got)
		}
	}
}

func TestMPSCRecvTimeoutExpires(t *testing.T) {
	ch := NewMPSC[int](1)
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_, err := ch.RecvTimeout(co, 10*time.Millisecond)
		return err
	})
	_, err := h.Join()
	if !errors.Is(err, loomrt.ErrTimedOut) {
		t.Fatalf("Join() err = %v, want ErrTimedOut", err)
	}
}

type intResult struct {
	v   int
	err error
}

func TestMPSCRecvTimeoutBeatsLateSend(t *testing.T) {
	ch := NewMPSC[int](1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_ = loomrt.Sleep(50 * time.Millisecond)
		return ch.Send(co, 7)
	})
	h := loomrt.Spawn(func(co *loomrt.Coroutine) intResult {
		v, err := ch.RecvTimeout(co, 200*time.Millisecond)
		return intResult{v, err}
	})
	res, err := h.Join()
	if err != nil {
		t.Fatalf("Join() err = %v", err)
	}
	if res.err != nil {
		t.Fatalf("RecvTimeout() err = %v", res.err)
	}
	if res.v != 7 {
		t.Fatalf("RecvTimeout() = %d, want 7", res.v)
	}
}

func TestMPSCRecvCancelUnsticksEmptyChannel(t *testing.T) {
	ch := NewMPSC[int](1)
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_, err := ch.Recv(co)
		return err
	})
	h.Cancel("stop")
	_, err := h.Join()
	if !errors.Is(err, loomrt.ErrCancelled) {
		t.Fatalf("Join() err = %v, want ErrCancelled", err)
	}
}

func TestMPSCSendCancelUnsticksFullChannel(t *testing.T) {
	ch := NewMPSC[int](1)
	filler := loomrt.Spawn(func(co *loomrt.Coroutine) error { return ch.Send(co, 1) })
	if _, err := filler.Join(); err != nil {
		t.Fatalf("filler Join() err = %v", err)
	}
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		return ch.Send(co, 2)
	})
	h.Cancel("stop")
	_, err := h.Join()
	if !errors.Is(err, loomrt.ErrCancelled) {
		t.Fatalf("Join() err = %v, want ErrCancelled", err)
	}
}

func TestMPSCCloseWakesParkedRecv(t *testing.T) {
	ch := NewMPSC[int](1)
	h := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_, err := ch.Recv(co)
		return err
	})
	loomrt.Sleep(5 * time.Millisecond)
	ch.Close()
	_, err := h.Join()
	if !errors.Is(err, loomrt.ErrBrokenChannel) {
		t.Fatalf("Join() err = %v, want ErrBrokenChannel", err)
	}
}

func TestMPSCSelectRacesRecvAgainstSleep(t *testing.T) {
	ch := NewMPSC[int](1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		_ = loomrt.Sleep(10 * time.Millisecond)
		return ch.Send(co, 99)
	})
	h := loomrt.Spawn(func(co *loomrt.Coroutine) intResult {
		recvCase, result := ch.RecvCase()
		idx, err := loomrt.Select(co, recvCase, loomrt.SleepCase(time.Second))
		if err != nil {
			return intResult{0, err}
		}
		if idx != 0 {
			return intResult{0, errors.New("sleep branch won unexpectedly")}
		}
		return intResult{result.Value(), result.Err()}
	})
	res, err := h.Join()
	if err != nil {
		t.Fatalf("Join() err = %v", err)
	}
	if res.err != nil {
		t.Fatalf("select result err = %v", res.err)
	}
	if res.v != 99 {
		t.Fatalf("Join() = %d, want 99", res.v)
	}
}

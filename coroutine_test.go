package loomrt

import (
	"errors"
	"testing"
	"time"
)

func TestSpawnJoinReturnsResult(t *testing.T) {
	h := Spawn(func(co *Coroutine) int { return 21 * 2 })
	result, err := h.Join()
	if err != nil {
		t.Fatalf("Join() err = %v, want nil", err)
	}
	if result != 42 {
		t.Fatalf("Join() = %d, want 42", result)
	}
}

func TestSpawnPanicPropagatesAsJoinError(t *testing.T) {
	h := Spawn(func(co *Coroutine) int { panic("boom") })
	_, err := h.Join()
	var joinErr *JoinError
	if !errors.As(err, &joinErr) {
		t.Fatalf("Join() err = %v, want a *JoinError", err)
	}
	if joinErr.Value != "boom" {
		t.Fatalf("JoinError.Value = %v, want \"boom\"", joinErr.Value)
	}
}

func TestSpawnYieldNowInterleaves(t *testing.T) {
	var order []int
	done := make(chan struct{}, 2)
	Spawn(func(co *Coroutine) int {
		order = append(order, 1)
		YieldNow()
		order = append(order, 3)
		done <- struct{}{}
		return 0
	})
	Spawn(func(co *Coroutine) int {
		order = append(order, 2)
		done <- struct{}{}
		return 0
	})
	<-done
	<-done
	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 entries", order)
	}
}

func TestJoinFromOutsideCoroutineBlocksCallingThread(t *testing.T) {
	h := Spawn(func(co *Coroutine) int {
		_ = Sleep(10 * time.Millisecond)
		return 7
	})
	result, err := h.Join()
	if err != nil {
		t.Fatalf("Join() err = %v", err)
	}
	if result != 7 {
		t.Fatalf("Join() = %d, want 7", result)
	}
}

func TestJoinFromCoroutineAwaitsCompletion(t *testing.T) {
	inner := Spawn(func(co *Coroutine) int {
		_ = Sleep(20 * time.Millisecond)
		return 99
	})
	outer := Spawn(func(co *Coroutine) int {
		v, err := inner.Join()
		if err != nil {
			return -1
		}
		return v
	})
	result, err := outer.Join()
	if err != nil {
		t.Fatalf("Join() err = %v", err)
	}
	if result != 99 {
		t.Fatalf("outer Join() = %d, want 99", result)
	}
}

func TestCoroutineCancelUnsticksSleep(t *testing.T) {
	h := Spawn(func(co *Coroutine) error {
		return Sleep(time.Hour)
	})
	h.Cancel("stop")
	_, err := h.Join()
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Join() err = %v, want ErrCancelled", err)
	}
}

package loomrt

import (
	"testing"
	"time"
)

func TestTimerWheelFiresInOrder(t *testing.T) {
	w := NewTimerWheel(time.Millisecond)
	now := time.Now()

	var fired []int
	w.scheduleAt(now.Add(30*time.Millisecond), func() { fired = append(fired, 3) })
	w.scheduleAt(now.Add(10*time.Millisecond), func() { fired = append(fired, 1) })
	w.scheduleAt(now.Add(20*time.Millisecond), func() { fired = append(fired, 2) })

	deadline := now.Add(40 * time.Millisecond)
	for time.Now().Before(deadline) {
		w.fireDue(time.Now())
		time.Sleep(time.Millisecond)
	}
	w.fireDue(time.Now())

	if len(fired) != 3 {
		t.Fatalf("fired = %v, want 3 entries", fired)
	}
	for i, want := range []int{1, 2, 3} {
		if fired[i] != want {
			t.Fatalf("fired[%d] = %d, want %d (order: %v)", i, fired[i], want, fired)
		}
	}
}

func TestTimerWheelStopPreventsFire(t *testing.T) {
	w := NewTimerWheel(time.Millisecond)
	fired := false
	entry := w.scheduleAfter(5*time.Millisecond, func() { fired = true })
	entry.Stop()

	time.Sleep(20 * time.Millisecond)
	w.fireDue(time.Now())

	if fired {
		t.Fatal("stopped timer fired anyway")
	}
}

func TestTimerWheelNextDeadlineSkipsCancelled(t *testing.T) {
	w := NewTimerWheel(time.Millisecond)
	now := time.Now()
	first := w.scheduleAt(now.Add(5*time.Millisecond), func() {})
	w.scheduleAt(now.Add(50*time.Millisecond), func() {})
	first.Stop()

	when, ok := w.nextDeadline()
	if !ok {
		t.Fatal("nextDeadline() reported no pending timer")
	}
	if when.Before(now.Add(40 * time.Millisecond)) {
		t.Fatalf("nextDeadline() = %v, expected the later, uncancelled entry", when)
	}
}

func TestTimerWheelLenCountsLiveOnly(t *testing.T) {
	w := NewTimerWheel(time.Millisecond)
	e1 := w.scheduleAfter(time.Hour, func() {})
	w.scheduleAfter(time.Hour, func() {})
	if w.len() != 2 {
		t.Fatalf("len() = %d, want 2", w.len())
	}
	e1.Stop()
	if w.len() != 1 {
		t.Fatalf("len() = %d after Stop, want 1", w.len())
	}
}

package loomrt

import (
	"testing"
	"time"
)

func TestParkerNotifyThenPark(t *testing.T) {
	p := NewParker()
	p.Notify()

	done := make(chan struct{})
	go func() {
		p.Park()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park never returned after a prior Notify")
	}
}

func TestParkerParkThenNotify(t *testing.T) {
	p := NewParker()
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		p.Park()
		close(done)
	}()

	<-started
	// Give Park a chance to actually reach the blocking state before we
	// notify it, so this exercises the "Park already waiting" path rather
	// than the "Notify raced ahead" path covered above.
	time.Sleep(10 * time.Millisecond)
	p.Notify()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park never returned after Notify")
	}
}

func TestParkerCoalescesExcessNotify(t *testing.T) {
	p := NewParker()
	p.Notify()
	p.Notify()
	p.Notify()

	done := make(chan struct{})
	go func() {
		p.Park() // consumes the coalesced notify
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park never returned")
	}

	// A second Park must block until a fresh Notify, proving the three
	// earlier calls collapsed into exactly one wakeup.
	second := make(chan struct{})
	go func() {
		p.Park()
		close(second)
	}()
	select {
	case <-second:
		t.Fatal("second Park returned without a fresh Notify")
	case <-time.After(50 * time.Millisecond):
	}
	p.Notify()
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second Park never returned after its own Notify")
	}
}

func TestParkerReset(t *testing.T) {
	p := NewParker()
	p.Notify()
	p.Reset()

	done := make(chan struct{})
	go func() {
		p.Park()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Park returned despite Reset clearing the pending Notify")
	case <-time.After(50 * time.Millisecond):
	}
	p.Notify()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Park never returned after the post-Reset Notify")
	}
}

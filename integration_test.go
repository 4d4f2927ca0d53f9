//go:build linux || darwin

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loomrt_test

import (
	"errors"
	"testing"
	"time"

	"github.com/loomrt/loomrt"
	"github.com/loomrt/loomrt/channel"
	"github.com/loomrt/loomrt/net"
)

// TestIntegrationEchoServer drives a full listener/dial/read/write cycle
// through the reactor, exercising Listen, Accept, Dial, Read, and Write
// together the way a real TCP consumer would.
func TestIntegrationEchoServer(t *testing.T) {
	l, err := net.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() err = %v", err)
	}
	defer l.Close()

	serverErr := make(chan error, 1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		conn, err := l.Accept()
		if err != nil {
			serverErr <- err
			return err
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			serverErr <- err
			return err
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			serverErr <- err
			return err
		}
		serverErr <- nil
		return nil
	})

	type result struct {
		got string
		err error
	}
	clientDone := make(chan result, 1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		conn, err := net.Dial(l.Addr().String())
		if err != nil {
			clientDone <- result{err: err}
			return err
		}
		defer conn.Close()
		if _, err := conn.Write([]byte("ping")); err != nil {
			clientDone <- result{err: err}
			return err
		}
		buf := make([]byte, 4)
		n, err := conn.Read(buf)
		clientDone <- result{got: string(buf[:n]), err: err}
		return err
	})

	select {
	case res := <-clientDone:
		if res.err != nil {
			t.Fatalf("client err = %v", res.err)
		}
		if res.got != "ping" {
			t.Fatalf("client got %q, want %q", res.got, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for echo roundtrip")
	}
	select {
	case err := <-serverErr:
		if err != nil {
			t.Fatalf("server err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server")
	}
}

// TestIntegrationThreeBranchSelect races a join on a slow coroutine, a
// channel receive, and a timeout against each other, confirming Select fans
// in across completely different primitive families without favoring one.
func TestIntegrationThreeBranchSelect(t *testing.T) {
	ch := channel.NewMPSC[int](1)

	slow := loomrt.Spawn(func(co *loomrt.Coroutine) int {
		loomrt.Sleep(30 * time.Millisecond)
		return 99
	})

	h := loomrt.Spawn(func(co *loomrt.Coroutine) int {
		joinCase := slow.SelectCase()
		recvCase, _ := ch.RecvCase()
		idx, _ := loomrt.Select(co, joinCase, recvCase, loomrt.SleepCase(5*time.Millisecond))
		return idx
	})
	idx, err := h.Join()
	if err != nil {
		t.Fatalf("Join() err = %v", err)
	}
	if idx != 2 {
		t.Fatalf("Select() winner = %d, want 2 (the 5ms timeout, since slow takes 30ms and nothing is sent)", idx)
	}
	if _, err := slow.Join(); err != nil {
		t.Fatalf("slow.Join() err = %v", err)
	}
}

// TestIntegrationPanicIsolation confirms a panicking coroutine surfaces a
// *JoinError to its joiner without affecting an unrelated concurrent
// coroutine's successful completion.
func TestIntegrationPanicIsolation(t *testing.T) {
	panicker := loomrt.Spawn(func(co *loomrt.Coroutine) int {
		panic("boom")
	})
	survivor := loomrt.Spawn(func(co *loomrt.Coroutine) int {
		loomrt.Sleep(10 * time.Millisecond)
		return 42
	})

	_, err := panicker.Join()
	var joinErr *loomrt.JoinError
	if !errors.As(err, &joinErr) {
		t.Fatalf("panicker.Join() err = %v, want *JoinError", err)
	}
	if joinErr.Value != "boom" {
		t.Fatalf("JoinError.Value = %v, want %q", joinErr.Value, "boom")
	}

	v, err := survivor.Join()
	if err != nil {
		t.Fatalf("survivor.Join() err = %v", err)
	}
	if v != 42 {
		t.Fatalf("survivor.Join() = %d, want 42", v)
	}
}

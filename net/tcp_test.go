//go:build linux || darwin

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package net

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/loomrt/loomrt"
)

func TestTCPEchoRoundTrip(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() err = %v", err)
	}
	defer l.Close()

	serverDone := make(chan error, 1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		conn, err := l.Accept()
		if err != nil {
			serverDone <- err
			return err
		}
		defer conn.Close()
		buf := make([]byte, 5)
		n, err := conn.Read(buf)
		if err != nil {
			serverDone <- err
			return err
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			serverDone <- err
			return err
		}
		serverDone <- nil
		return nil
	})

	clientDone := make(chan struct {
		got string
		err error
	}, 1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		conn, err := Dial(l.Addr().String())
		if err != nil {
			clientDone <- struct {
				got string
				err error
			}{"", err}
			return err
		}
		defer conn.Close()
		if _, err := conn.Write([]byte("hello")); err != nil {
			clientDone <- struct {
				got string
				err error
			}{"", err}
			return err
		}
		buf := make([]byte, 5)
		n, err := conn.Read(buf)
		clientDone <- struct {
			got string
			err error
		}{string(buf[:n]), err}
		return err
	})

	select {
	case res := <-clientDone:
		if res.err != nil {
			t.Fatalf("client err = %v", res.err)
		}
		if res.got != "hello" {
			t.Fatalf("client got %q, want %q", res.got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for client roundtrip")
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("server err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server")
	}
}

func TestTCPReadTimeout(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() err = %v", err)
	}
	defer l.Close()

	accepted := make(chan *Stream, 1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		accepted <- conn
		return nil
	})

	dialDone := make(chan error, 1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		conn, err := Dial(l.Addr().String())
		if err != nil {
			dialDone <- err
			return err
		}
		defer conn.Close()
		conn.SetReadTimeout(20 * time.Millisecond)
		_, rerr := conn.Read(make([]byte, 1))
		dialDone <- rerr
		return rerr
	})

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for accept")
	}

	select {
	case err := <-dialDone:
		if !errors.Is(err, loomrt.ErrTimedOut) {
			t.Fatalf("Read() err = %v, want ErrTimedOut", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for read timeout")
	}
}

func TestTCPReadAfterPeerShutdownReturnsEOF(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() err = %v", err)
	}
	defer l.Close()

	serverDone := make(chan error, 1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		conn, err := l.Accept()
		if err != nil {
			serverDone <- err
			return err
		}
		// Closing immediately performs an orderly shutdown; the peer's
		// next Read should observe end-of-stream, not a local-close error.
		err = conn.Close()
		serverDone <- err
		return err
	})

	clientDone := make(chan error, 1)
	loomrt.Spawn(func(co *loomrt.Coroutine) error {
		conn, err := Dial(l.Addr().String())
		if err != nil {
			clientDone <- err
			return err
		}
		defer conn.Close()
		_, rerr := conn.Read(make([]byte, 1))
		clientDone <- rerr
		return rerr
	})

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server close")
	}

	select {
	case err := <-clientDone:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("Read() err = %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for client read")
	}
}

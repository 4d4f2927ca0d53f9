// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package channel

import (
	"time"

	"github.com/loomrt/loomrt"
)

// MPSC is a bounded multi-producer, single-consumer channel: any number of
// coroutines may Send, but only one is expected to Recv at a time. Nothing
// actually enforces the single-consumer half of the contract — chanCore's
// recvQ is a plain FIFO regardless of how many coroutines call Recv — but a
// second concurrent receiver will only ever observe values being handed out
// of order relative to a true SPSC ring, not corrupted data. Callers that
// need a hard single-consumer guarantee with in-order delivery should reach
// for SPSC instead.
type MPSC[T any] struct {
	core *chanCore[T]
}

// NewMPSC returns an MPSC channel buffering up to capacity values before
// Send blocks (capacity is clamped to at least 1).
func NewMPSC[T any](capacity int) *MPSC[T] {
	return &MPSC[T]{core: newChanCore[T](capacity)}
}

// Send blocks co until value is accepted — buffered, handed directly to a
// waiting Recv, or rejected with ErrBrokenChannel if Close was called first.
func (c *MPSC[T]) Send(co *loomrt.Coroutine, value T) error {
	return c.core.send(co, value)
}

// Recv blocks co until a value is available or the channel is closed and
// drained, in which case it returns ErrBrokenChannel.
func (c *MPSC[T]) Recv(co *loomrt.Coroutine) (T, error) {
	return c.core.recv(co)
}

// RecvTimeout is Recv with a deadline: it returns ErrTimedOut if d elapses
// before a value arrives.
func (c *MPSC[T]) RecvTimeout(co *loomrt.Coroutine, d time.Duration) (T, error) {
	return c.core.recvTimeout(co, d)
}

// TryRecv takes a buffered value without blocking, reporting false if none
// is immediately available.
func (c *MPSC[T]) TryRecv() (T, bool) {
	return c.core.tryRecv()
}

// SendCase builds a Select branch for sending value, paired with the op
// whose Err (once Select resolves this branch as the winner) reports
// whether the send actually completed.
func (c *MPSC[T]) SendCase(value T) (loomrt.SelectCase, *SendResult[T]) {
	sc, op := c.core.sendCase(value)
	return sc, &SendResult[T]{op: op}
}

// RecvCase builds a Select branch for receiving, paired with the op that
// holds the received value once Select resolves this branch as the winner.
func (c *MPSC[T]) RecvCase() (loomrt.SelectCase, *RecvResult[T]) {
	sc, op := c.core.recvCase()
	return sc, &RecvResult[T]{op: op}
}

// Close marks the channel closed: pending and future Recv calls drain the
// buffer and then fail with ErrBrokenChannel; pending and future Send calls
// fail immediately.
func (c *MPSC[T]) Close() { c.core.close() }

// Len reports the number of currently buffered values.
func (c *MPSC[T]) Len() int { return c.core.len() }

// SendResult is the handle returned by SendCase; read Err after Select
// names that branch as the winner.
type SendResult[T any] struct{ op *sendOp[T] }

// Err returns the error the send resolved with (nil on success,
// ErrBrokenChannel if the channel was closed).
func (r *SendResult[T]) Err() error { return r.op.err }

// RecvResult is the handle returned by RecvCase; read Value/Err after
// Select names that branch as the winner.
type RecvResult[T any] struct{ op *recvOp[T] }

// Value returns the value received, valid only once Select has resolved
// this branch as the winner.
func (r *RecvResult[T]) Value() T { return r.op.value }

// Err returns the error the receive resolved with (nil on success,
// ErrBrokenChannel if the channel was closed).
func (r *RecvResult[T]) Err() error { return r.op.err }

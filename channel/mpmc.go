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

// MPMC is a bounded multi-producer, multi-consumer channel: any number of
// coroutines may Send or Recv concurrently. It is the same chanCore engine
// as MPSC — recvQ and sendQ are already plain FIFOs safe for any number of
// waiters on either side — so MPMC exists as its own type purely to
// document the intended usage contract at the call site, not because the
// underlying mechanics differ.
type MPMC[T any] struct {
	core *chanCore[T]
}

// NewMPMC returns an MPMC channel buffering up to capacity values before
// Send blocks (capacity is clamped to at least 1).
func NewMPMC[T any](capacity int) *MPMC[T] {
	return &MPMC[T]{core: newChanCore[T](capacity)}
}

// Send blocks co until value is accepted.
func (c *MPMC[T]) Send(co *loomrt.Coroutine, value T) error {
	return c.core.send(co, value)
}

// Recv blocks co until a value is available or the channel is closed and
// drained.
func (c *MPMC[T]) Recv(co *loomrt.Coroutine) (T, error) {
	return c.core.recv(co)
}

// RecvTimeout is Recv with a deadline.
func (c *MPMC[T]) RecvTimeout(co *loomrt.Coroutine, d time.Duration) (T, error) {
	return c.core.recvTimeout(co, d)
}

// TryRecv takes a buffered value without blocking.
func (c *MPMC[T]) TryRecv() (T, bool) {
	return c.core.tryRecv()
}

// SendCase builds a Select branch for sending value.
func (c *MPMC[T]) SendCase(value T) (loomrt.SelectCase, *SendResult[T]) {
	sc, op := c.core.sendCase(value)
	return sc, &SendResult[T]{op: op}
}

// RecvCase builds a Select branch for receiving.
func (c *MPMC[T]) RecvCase() (loomrt.SelectCase, *RecvResult[T]) {
	sc, op := c.core.recvCase()
	return sc, &RecvResult[T]{op: op}
}

// Close marks the channel closed.
func (c *MPMC[T]) Close() { c.core.close() }

// Len reports the number of currently buffered values.
func (c *MPMC[T]) Len() int { return c.core.len() }

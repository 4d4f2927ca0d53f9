// Package loomrt provides a user-space M:N coroutine runtime with cause
// chain support on every error it returns.
package loomrt

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by event sources and synchronization primitives.
// All are comparable with [errors.Is]; operations that wrap a sentinel do so
// via [WrapError] or a typed wrapper (e.g. [JoinError]).
var (
	// ErrTimedOut is returned when a deadline-bearing operation (RecvTimeout,
	// a connect/read/write with a deadline set) expires before it could
	// complete. A Select won by a SleepCase branch returns that branch's
	// index with a nil error, not ErrTimedOut.
	ErrTimedOut = errors.New("loomrt: operation timed out")

	// ErrCancelled is returned when an operation observes its CancelToken
	// cancelled at a safepoint, or when a blocked I/O/park is unstuck by
	// cancellation instead of completing normally.
	ErrCancelled = errors.New("loomrt: operation cancelled")

	// ErrPoisoned is returned by Mutex.Lock / RWMutex.Lock / RWMutex.RLock
	// when a previous holder panicked while holding the lock.
	ErrPoisoned = errors.New("loomrt: lock poisoned by a panicking holder")

	// ErrBrokenChannel is returned by channel Send/Recv once the channel has
	// been closed and, for Recv, drained.
	ErrBrokenChannel = errors.New("loomrt: channel closed")

	// ErrSchedulerClosed is the cancellation reason Scheduler.Shutdown
	// passes to every still-tracked coroutine. Spawn does not check for
	// shutdown and never returns it.
	ErrSchedulerClosed = errors.New("loomrt: scheduler closed")

	// ErrWorkersAlreadySet is returned by SetWorkers when called after the
	// scheduler has already started running coroutines.
	ErrWorkersAlreadySet = errors.New("loomrt: worker count already fixed")

	// ErrIO is returned by IoData.WaitIO when the reactor reports an error
	// or hangup condition on the fd and no more specific errno was recorded
	// via IoData's error slot.
	ErrIO = errors.New("loomrt: i/o error")
)

// JoinError wraps the recovered panic value of a coroutine whose JoinHandle
// is awaited. A cancelled join (the coroutine never ran to completion
// because its token was cancelled before completion) satisfies
// errors.Is(err, ErrCancelled) instead.
type JoinError struct {
	// Value is the value passed to panic() inside the coroutine.
	Value any
}

// Error implements the error interface.
func (e *JoinError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "loomrt: coroutine panicked: " + err.Error()
	}
	return fmt.Sprintf("loomrt: coroutine panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error,
// enabling errors.Is/errors.As through the panic's cause chain.
func (e *JoinError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WrapError wraps cause with a message, preserving errors.Is(result, cause).
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

package loomrt

import (
	"sync"
	"time"
)

// CancelToken lets an event source and the coroutine it suspended agree on
// whether an operation should be abandoned. Every suspending call in this
// package checks its token at its safepoints (entry and exit of done()).
//
// Thread Safety: CancelToken is safe for concurrent access from multiple
// goroutines. All state mutations are protected by an internal mutex.
type CancelToken struct { //nolint:govet // betteralign:ignore
	handlers   []func(reason any)
	reason     any
	mu         sync.RWMutex
	cancelled  bool
	ioDataLink *IoData
}

func newCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancelled reports whether the token has been cancelled.
func (t *CancelToken) Cancelled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled
}

// Reason returns the cancellation reason, or nil if not cancelled.
func (t *CancelToken) Reason() any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reason
}

// OnCancel registers a callback invoked when the token is cancelled. If
// already cancelled, the callback runs immediately (outside the lock).
func (t *CancelToken) OnCancel(handler func(reason any)) {
	if handler == nil {
		return
	}
	t.mu.Lock()
	if t.cancelled {
		reason := t.reason
		t.mu.Unlock()
		handler(reason)
		return
	}
	t.handlers = append(t.handlers, handler)
	t.mu.Unlock()
}

// Err returns ErrCancelled if the token has been cancelled, nil otherwise.
// Safepoints call this directly.
func (t *CancelToken) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// setIoData records which IoData this token's coroutine is currently parked
// on, so cancel() can unstick blocked I/O by forcing a wake on that
// registration's park slot.
func (t *CancelToken) setIoData(d *IoData) {
	t.mu.Lock()
	t.ioDataLink = d
	t.mu.Unlock()
}

func (t *CancelToken) cancel(reason any) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.reason = reason
	handlers := make([]func(reason any), len(t.handlers))
	copy(handlers, t.handlers)
	link := t.ioDataLink
	t.mu.Unlock()

	if link != nil {
		link.wakeForCancel()
	}
	for _, h := range handlers {
		h(reason)
	}
}

// CancelSource is the producer side of a CancelToken: something holds the
// source and calls Cancel; the consumer(s) hold the Token.
type CancelSource struct {
	token *CancelToken
}

// NewCancelSource returns a fresh, uncancelled CancelSource.
func NewCancelSource() *CancelSource {
	return &CancelSource{token: newCancelToken()}
}

// Token returns the CancelSource's CancelToken. Always the same value.
func (s *CancelSource) Token() *CancelToken {
	return s.token
}

// Cancel marks the token cancelled with the given reason. Idempotent: only
// the first call's reason sticks.
func (s *CancelSource) Cancel(reason any) {
	s.token.cancel(reason)
}

// CancelTimeout returns a CancelSource that cancels itself after d elapses,
// scheduled on the package's timer wheel rather than a bare time.AfterFunc
// so it participates in the same deadline bookkeeping as Sleep and I/O
// deadlines.
func CancelTimeout(d time.Duration) *CancelSource {
	src := NewCancelSource()
	globalTimers().scheduleAfter(d, func() {
		src.Cancel(ErrTimedOut)
	})
	return src
}

// CancelAny returns a token that cancels as soon as any of tokens does,
// carrying that token's reason. A nil entry in tokens is ignored. An empty
// tokens slice returns a token that never cancels on its own.
func CancelAny(tokens ...*CancelToken) *CancelToken {
	composite := newCancelToken()
	if len(tokens) == 0 {
		return composite
	}

	var once sync.Once
	for _, tok := range tokens {
		if tok == nil {
			continue
		}
		if tok.Cancelled() {
			composite.cancel(tok.Reason())
			return composite
		}
	}
	for _, tok := range tokens {
		if tok == nil {
			continue
		}
		tok.OnCancel(func(reason any) {
			once.Do(func() {
				composite.cancel(reason)
			})
		})
	}
	return composite
}

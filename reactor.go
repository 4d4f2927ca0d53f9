package loomrt

import "errors"

// Maximum file descriptor the fixed-size readiness-model reactors
// (epoll/kqueue) index directly; Darwin's reactor grows past this via a
// dynamic slice, capped at MaxFDLimit.
const maxFDs = 65536

// Shared reactor errors, common across all three platform implementations.
var (
	ErrFDOutOfRange        = errors.New("loomrt: fd out of range")
	ErrFDAlreadyRegistered = errors.New("loomrt: fd already registered")
	ErrFDNotRegistered     = errors.New("loomrt: fd not registered")
	ErrReactorClosed       = errors.New("loomrt: reactor closed")
)

// fdEntry stores the IoData currently registered against an fd, used by the
// readiness-model reactors (epoll, kqueue). The completion-model reactor
// (IOCP) keys directly off the IoData pointer instead, since Windows
// reports completed operations rather than fd readiness.
type fdEntry struct {
	data   *IoData
	active bool
}

// Reactor is the cross-platform non-blocking I/O multiplexer every socket
// type and every worker's poll step is built on. Unix implementations
// (epollReactor, kqueueReactor) are readiness-model: Register arms
// notification for the given interest, and PollIO reports which registered
// fds became ready. The Windows implementation (iocpReactor) is a
// completion model: Register associates a handle with the port once, and
// PollIO reports completed overlapped operations rather than readiness.
//
// Despite the model difference, every caller goes through the same
// subscribe/park/recheck EventSource protocol (see eventsource.go), so the
// asymmetry never leaks past this file and iodata.go.
type Reactor interface {
	Register(fd int, interest ioInterest, data *IoData) error
	Modify(fd int, interest ioInterest) error
	Unregister(fd int) error

	// PollIO blocks for at most timeoutMs (or indefinitely if negative)
	// waiting for at least one event, dispatching IoData.notify for each,
	// and returns the number of events processed.
	PollIO(timeoutMs int) (int, error)

	// Wake unblocks a concurrent PollIO call without waiting for a real
	// I/O event, so a worker parked in the syscall can re-check its ready
	// queues promptly after something else becomes runnable.
	Wake()

	Close() error
}

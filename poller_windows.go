//go:build windows

package loomrt

import (
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// iocpReactor implements Reactor using IOCP, the completion model for
// Windows: rather than reporting readiness for a registered fd (as
// epoll/kqueue do), it reports completed overlapped I/O operations keyed by
// the IoData pointer passed as the completion key.
//
// Unlike the readiness-model reactors, registration here is a one-time
// association with the completion port; per-operation state travels through
// the OVERLAPPED structure the caller supplies to the Windows I/O call
// itself, with the associated IoData recovered from the completion key.
type iocpReactor struct { // betteralign:ignore
	iocp     windows.Handle
	wakeSock windows.Handle
	fds      map[int]*IoData
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newReactor() (Reactor, error) {
	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}

	wakeSock, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		_ = windows.CloseHandle(iocp)
		return nil, err
	}
	if _, err := windows.CreateIoCompletionPort(wakeSock, iocp, 0, 0); err != nil {
		_ = windows.Closesocket(wakeSock)
		_ = windows.CloseHandle(iocp)
		return nil, err
	}

	return &iocpReactor{iocp: iocp, wakeSock: wakeSock, fds: make(map[int]*IoData)}, nil
}

// Register associates handle fd with the completion port so future
// overlapped operations on it surface through PollIO, keyed by data.
func (p *iocpReactor) Register(fd int, _ ioInterest, data *IoData) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	p.fdMu.Lock()
	if _, ok := p.fds[fd]; ok {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = data
	p.fdMu.Unlock()

	handle := windows.Handle(fd)
	_, err := windows.CreateIoCompletionPort(handle, p.iocp, uintptr(unsafe.Pointer(data)), 0)
	if err != nil {
		p.fdMu.Lock()
		delete(p.fds, fd)
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// Modify is a no-op under IOCP: interest is implicit in which overlapped
// call (WSARecv vs WSASend) the caller issues, not a registration flag.
func (p *iocpReactor) Modify(fd int, _ ioInterest) error {
	p.fdMu.RLock()
	_, ok := p.fds[fd]
	p.fdMu.RUnlock()
	if !ok {
		return ErrFDNotRegistered
	}
	return nil
}

// Unregister drops bookkeeping for fd. Closing the underlying handle is
// what actually detaches it from the completion port.
func (p *iocpReactor) Unregister(fd int) error {
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	if _, ok := p.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	return nil
}

// PollIO blocks up to timeoutMs waiting for one completion and notifies the
// IoData associated with its completion key.
func (p *iocpReactor) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrReactorClosed
	}

	var timeout *uint32
	if timeoutMs >= 0 {
		t := uint32(timeoutMs)
		timeout = &t
	}

	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped

	err := windows.GetQueuedCompletionStatus(p.iocp, &bytes, &key, &overlapped, timeout)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			if errno == windows.WAIT_TIMEOUT {
				return 0, nil
			}
			if errno == windows.ERROR_ABANDONED_WAIT_0 || errno == windows.ERROR_INVALID_HANDLE {
				return 0, ErrReactorClosed
			}
		}
		return 0, err
	}

	if overlapped == nil {
		// A wake-up posted via PostQueuedCompletionStatus (no associated I/O).
		return 0, nil
	}

	if key != 0 {
		data := (*IoData)(unsafe.Pointer(key))
		data.notify(parkOutcomeReady)
	}
	return 1, nil
}

// Wake unblocks a concurrent PollIO call by posting a keyless completion.
func (p *iocpReactor) Wake() {
	_ = windows.PostQueuedCompletionStatus(p.iocp, 0, 0, nil)
}

// Close releases the completion port and wake socket.
func (p *iocpReactor) Close() error {
	p.closed.Store(true)
	if p.iocp != 0 {
		_ = windows.CloseHandle(p.iocp)
	}
	if p.wakeSock != windows.InvalidHandle {
		_ = windows.Closesocket(p.wakeSock)
	}
	return nil
}

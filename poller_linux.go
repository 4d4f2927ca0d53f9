//go:build linux

package loomrt

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// epollReactor implements Reactor using epoll, the readiness model for
// Linux. Direct array indexing (rather than a map) keeps registration and
// dispatch O(1).
type epollReactor struct { // betteralign:ignore
	epfd    int32
	version atomic.Uint64
	fds     [maxFDs]fdEntry
	fdMu    sync.RWMutex
	closed  atomic.Bool
	wakeFd  int
	wakeWr  int
}

func newReactor() (Reactor, error) {
	r := &epollReactor{}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	r.epfd = int32(epfd)

	readFd, writeFd, err := createWakeFd(0, EFD_NONBLOCK|EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	r.wakeFd, r.wakeWr = readFd, writeFd
	if err := unix.EpollCtl(int(r.epfd), unix.EPOLL_CTL_ADD, readFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(readFd),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = closeWakeFd(readFd, writeFd)
		return nil, err
	}
	return r, nil
}

// Register arms fd for the given interest, backed by data.
func (p *epollReactor) Register(fd int, interest ioInterest, data *IoData) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdEntry{data: data, active: true}
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: interestToEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdEntry{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// Modify updates the interest mask for an already-registered fd.
func (p *epollReactor) Modify(fd int, interest ioInterest) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: interestToEpoll(interest), Fd: int32(fd)}
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, ev)
}

// Unregister removes fd from monitoring.
func (p *epollReactor) Unregister(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdEntry{}
	p.version.Add(1)
	p.fdMu.Unlock()

	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
}

// PollIO blocks up to timeoutMs waiting for readiness, dispatching each
// ready fd's IoData.notify before returning the event count. Safe to call
// concurrently from multiple workers against the same shared reactor: each
// call uses its own stack-local event buffer, since epoll_wait itself
// tolerates concurrent waiters on one epoll fd.
func (p *epollReactor) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrReactorClosed
	}

	v := p.version.Load()

	var eventBuf [256]unix.EpollEvent
	n, err := unix.EpollWait(int(p.epfd), eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	if p.version.Load() != v {
		return 0, nil
	}

	p.dispatch(eventBuf[:n])
	return n, nil
}

func (p *epollReactor) dispatch(events []unix.EpollEvent) {
	for i := range events {
		fd := int(events[i].Fd)
		if fd == p.wakeFd {
			_ = drainWakeUpPipe(p.wakeFd)
			continue
		}
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.fdMu.RLock()
		entry := p.fds[fd]
		p.fdMu.RUnlock()

		if entry.active && entry.data != nil {
			ev := epollToInterest(events[i].Events)
			if ev&(ioError|ioHangup) != 0 {
				entry.data.notify(parkOutcomeError)
			} else {
				entry.data.notify(parkOutcomeReady)
			}
		}
	}
}

// Wake unblocks a concurrent PollIO call, used by the scheduler to force a
// worker parked in epoll_wait to re-check its ready queues.
func (p *epollReactor) Wake() {
	if p.wakeWr >= 0 {
		_ = submitGenericWakeup(uintptr(p.wakeWr))
		var buf [8]byte
		buf[7] = 1
		_, _ = unix.Write(p.wakeWr, buf[:])
	}
}

// Close releases the epoll instance and wake pipe.
func (p *epollReactor) Close() error {
	p.closed.Store(true)
	_ = closeWakeFd(p.wakeFd, p.wakeWr)
	if p.epfd > 0 {
		return unix.Close(int(p.epfd))
	}
	return nil
}

func interestToEpoll(interest ioInterest) uint32 {
	var e uint32
	if interest&ioRead != 0 {
		e |= unix.EPOLLIN
	}
	if interest&ioWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToInterest(epollEvents uint32) ioInterest {
	var events ioInterest
	if epollEvents&unix.EPOLLIN != 0 {
		events |= ioRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= ioWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= ioError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= ioHangup
	}
	return events
}

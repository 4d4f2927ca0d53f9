//go:build darwin

package loomrt

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// MaxFDLimit is the maximum FD value this reactor supports for dynamic
// growth. 100M is enough for production with ulimit -n > 1M.
const MaxFDLimit = 100000000

// kqueueReactor implements Reactor using kqueue, the readiness model for
// Darwin. Uses a dynamic slice (rather than a fixed array, as epollReactor
// does) since Darwin fd limits are commonly raised far past 65536.
type kqueueReactor struct { // betteralign:ignore
	kq     int32
	fds    []fdEntry
	fdMu   sync.RWMutex
	closed atomic.Bool
	wakeFd int
	wakeWr int
}

func newReactor() (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	r := &kqueueReactor{kq: int32(kq), fds: make([]fdEntry, maxFDs)}

	readFd, writeFd, err := createWakeFd(0, 0)
	if err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	r.wakeFd, r.wakeWr = readFd, writeFd
	_, err = unix.Kevent(int(r.kq), []unix.Kevent_t{{
		Ident:  uint64(readFd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}, nil, nil)
	if err != nil {
		_ = unix.Close(kq)
		_ = closeWakeFd(readFd, writeFd)
		return nil, err
	}
	return r, nil
}

func (p *kqueueReactor) grow(fd int) {
	if fd < len(p.fds) {
		return
	}
	newSize := fd*2 + 1
	if newSize > MaxFDLimit {
		newSize = MaxFDLimit + 1
	}
	newFds := make([]fdEntry, newSize)
	copy(newFds, p.fds)
	p.fds = newFds
}

// Register arms fd for the given interest, backed by data.
func (p *kqueueReactor) Register(fd int, interest ioInterest, data *IoData) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	p.grow(fd)
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdEntry{data: data, active: true}
	p.fdMu.Unlock()

	kevents := interestToKevents(fd, interest, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevents) > 0 {
		if _, err := unix.Kevent(int(p.kq), kevents, nil, nil); err != nil {
			p.fdMu.Lock()
			p.fds[fd] = fdEntry{}
			p.fdMu.Unlock()
			return err
		}
	}
	return nil
}

// Modify re-arms fd for a new interest mask, removing whatever filters are
// no longer wanted and adding whatever filters are new.
func (p *kqueueReactor) Modify(fd int, interest ioInterest) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fdMu.Unlock()

	if del := interestToKevents(fd, interest^(ioRead|ioWrite), unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(int(p.kq), del, nil, nil)
	}
	if add := interestToKevents(fd, interest, unix.EV_ADD|unix.EV_ENABLE); len(add) > 0 {
		if _, err := unix.Kevent(int(p.kq), add, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes fd from monitoring.
func (p *kqueueReactor) Unregister(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdEntry{}
	p.fdMu.Unlock()

	kevents := interestToKevents(fd, ioRead|ioWrite, unix.EV_DELETE)
	_, _ = unix.Kevent(int(p.kq), kevents, nil, nil)
	return nil
}

// PollIO blocks up to timeoutMs waiting for readiness. Safe to call
// concurrently from multiple workers against the same shared reactor: each
// call uses its own stack-local event buffer, since kqueue itself tolerates
// concurrent waiters on one kqueue fd.
func (p *kqueueReactor) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrReactorClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMs / 1000), Nsec: int64((timeoutMs % 1000) * 1000000)}
	}

	var eventBuf [256]unix.Kevent_t
	n, err := unix.Kevent(int(p.kq), nil, eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	p.dispatch(eventBuf[:n])
	return n, nil
}

func (p *kqueueReactor) dispatch(events []unix.Kevent_t) {
	for i := range events {
		fd := int(events[i].Ident)
		if fd == p.wakeFd {
			_ = drainWakeUpPipe(p.wakeFd)
			continue
		}
		if fd < 0 {
			continue
		}
		p.fdMu.RLock()
		var entry fdEntry
		if fd < len(p.fds) {
			entry = p.fds[fd]
		}
		p.fdMu.RUnlock()

		if entry.active && entry.data != nil {
			outcome := parkOutcomeReady
			if events[i].Flags&(unix.EV_ERROR|unix.EV_EOF) != 0 {
				outcome = parkOutcomeError
			}
			entry.data.notify(outcome)
		}
	}
}

// Wake unblocks a concurrent PollIO call.
func (p *kqueueReactor) Wake() {
	if p.wakeWr >= 0 {
		var buf [1]byte
		buf[0] = 1
		_, _ = unix.Write(p.wakeWr, buf[:])
	}
}

// Close releases the kqueue instance and wake pipe.
func (p *kqueueReactor) Close() error {
	p.closed.Store(true)
	_ = closeWakeFd(p.wakeFd, p.wakeWr)
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

func interestToKevents(fd int, interest ioInterest, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if interest&ioRead != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if interest&ioWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevents
}

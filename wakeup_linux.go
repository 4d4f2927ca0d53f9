//go:build linux

//lint:file-ignore U1000 Platform-specific stub functions (required for Windows/Darwin compatibility)

package loomrt

import (
	"golang.org/x/sys/unix"
)

const (
	EFD_CLOEXEC  = unix.EFD_CLOEXEC
	EFD_NONBLOCK = unix.EFD_NONBLOCK
)

// createWakeFd creates an eventfd for wake-up notifications (Linux).
// Returns the single eventfd as both read and write ends.
func createWakeFd(initval uint, flags int) (int, int, error) {
	fd, err := unix.Eventfd(initval, flags)
	return fd, fd, err
}

// closeWakeFd closes the wake eventfd on Linux.
func closeWakeFd(wakeFd, wakeWriteFd int) error {
	if wakeFd >= 0 {
		_ = unix.Close(wakeFd)
	}
	return nil
}

// isWakeFdSupported returns true on Linux (eventfd mechanism).
func isWakeFdSupported() bool {
	return true
}

// drainWakeUpPipe drains every pending wake-up from the eventfd wakeFd so
// the reactor's epoll_wait doesn't spin hot on a level-triggered fd that
// was written to once but never read.
func drainWakeUpPipe(wakeFd int) error {
	if wakeFd < 0 {
		return nil
	}
	var buf [8]byte
	for {
		_, err := unix.Read(wakeFd, buf[:])
		if err != nil {
			break
		}
	}
	return nil
}

// submitGenericWakeup is a no-op on Linux.
// This function name exists on Windows for PostQueuedCompletionStatus.
// On Linux, epollReactor.Wake calls it and then writes to the eventfd
// itself, which is what actually wakes epoll_wait.
func submitGenericWakeup(_ uintptr) error {
	// Linux: the eventfd write happens in epollReactor.Wake.
	// This stub exists for function name compatibility with Windows
	return nil
}

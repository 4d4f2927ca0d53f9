//go:build darwin

package loomrt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	EFD_CLOEXEC  = unix.O_CLOEXEC
	EFD_NONBLOCK = unix.O_NONBLOCK
)

// createWakeFd creates a self-pipe for wake-up notifications (Darwin).
// Returns the read end and the write end of the pipe.
// Note: initval and flags parameters are ignored on Darwin (API compatibility with Linux eventfd).
func createWakeFd(initval uint, flags int) (int, int, error) {
	_ = initval
	_ = flags

	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}

	// On failure, close both pipe ends to avoid resource leak
	cleanup := func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	}

	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])

	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return 0, 0, err
	}

	return fds[0], fds[1], nil
}

// drainWakeUpPipe drains every byte written to the self-pipe wakeFd so a
// sibling worker's Wake() never blocks (or silently drops) because the pipe
// filled up from writes nobody read.
func drainWakeUpPipe(wakeFd int) error {
	if wakeFd < 0 {
		return nil
	}
	var buf [64]byte
	for {
		n, err := syscall.Read(wakeFd, buf[:])
		if err != nil || n <= 0 {
			break
		}
	}
	return nil
}

// isWakeFdSupported returns true.
func isWakeFdSupported() bool {
	return true
}

// closeWakeFd closes wake pipe fds.
func closeWakeFd(wakeFd, wakeWriteFd int) error {
	if wakeFd >= 0 {
		_ = syscall.Close(wakeFd)
	}
	if wakeWriteFd >= 0 && wakeWriteFd != wakeFd {
		_ = syscall.Close(wakeWriteFd)
	}
	return nil
}

// submitGenericWakeup is a stub for Darwin/Linux.
// This function name exists on Windows for PostQueuedCompletionStatus.
// On Darwin/Linux, we write to the wake pipe instead.
//
// Note: nothing in the Darwin build calls this; kqueueReactor.Wake
// writes to the wake pipe directly, so this is a safety stub only.
func submitGenericWakeup(_ uintptr) error {
	// Darwin: the wake pipe write happens in kqueueReactor.Wake.
	// This stub exists for function name compatibility with Windows
	return nil
}

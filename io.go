package loomrt

import "time"

// Interest is the exported form of ioInterest: the set of readiness events a
// net (or other out-of-package) registration cares about. The net
// subpackage's Stream/Listener/PacketConn types register their fds through
// RegisterIO/ModifyIO using these constants, without needing to know the
// internal ioInterest type that the platform reactors speak natively.
type Interest = ioInterest

// Interest bitmask values, re-exported from the unexported ioInterest
// constants so callers outside this package can name them.
const (
	InterestRead   Interest = ioRead
	InterestWrite  Interest = ioWrite
	InterestError  Interest = ioError
	InterestHangup Interest = ioHangup
)

// RegisterIO arms fd on the scheduler's shared reactor for the given
// interest, backed by data. Used by the net subpackage's Dial/Listen/
// ListenPacket to hook a freshly created socket into the runtime's poll
// loop; every worker's PollIO sees it, not just whichever worker happened
// to create it.
func RegisterIO(fd int, interest Interest, data *IoData) error {
	return globalScheduler().reactor.Register(fd, interest, data)
}

// ModifyIO updates the interest mask for an fd already registered via
// RegisterIO, e.g. switching a connecting socket from write-readiness to
// read-readiness once the connect completes.
func ModifyIO(fd int, interest Interest) error {
	return globalScheduler().reactor.Modify(fd, interest)
}

// UnregisterIO removes fd from the shared reactor. Callers must do this
// before closing the underlying fd, to avoid stale event delivery from fd
// recycling (see poller.go).
func UnregisterIO(fd int) error {
	return globalScheduler().reactor.Unregister(fd)
}

// ioWaitSource adapts one IoData park cycle into an EventSource, so a
// subpackage can block a coroutine on socket readiness through the same
// Subscribe/park/Done protocol every other suspending operation uses,
// without reaching into IoData's unexported arm/notify/finish machinery
// itself.
type ioWaitSource struct {
	data     *IoData
	interest Interest
	timeout  time.Duration
}

func (s *ioWaitSource) Subscribe(co *Coroutine) bool {
	// Re-arm the reactor's interest mask for this wait: a Stream alternates
	// between InterestRead and InterestWrite across calls, and the
	// readiness-model reactors only report what's currently armed.
	_ = globalScheduler().reactor.Modify(s.data.Fd, s.interest)
	s.data.arm(s.interest, co)
	s.data.armTimeout(s.timeout)
	return false
}

func (s *ioWaitSource) Done() (struct{}, error) {
	switch s.data.finish() {
	case parkOutcomeReady:
		return struct{}{}, nil
	case parkOutcomeTimeout:
		return struct{}{}, ErrTimedOut
	case parkOutcomeCancelled:
		return struct{}{}, ErrCancelled
	case parkOutcomeError:
		if err := s.data.takeErr(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, ErrIO
	default:
		return struct{}{}, nil
	}
}

// SelectCase builds a Select branch that fires once d's fd becomes ready
// for interest, or the optional timeout elapses. Used by net.Stream/
// net.PacketConn to offer a read/write/deadline branch to Select.
func (d *IoData) SelectCase(interest Interest, timeout time.Duration) SelectCase {
	return SelectCase{
		Arm: func(co *Coroutine, resolve func(err error)) {
			_ = globalScheduler().reactor.Modify(d.Fd, interest)
			d.arm(interest, co)
			d.armTimeout(timeout)
			d.selectResolve = resolve
		},
		Unarm: func() {
			d.finish()
		},
	}
}

// WaitIO suspends co until d's fd becomes ready for interest, the optional
// timeout elapses, or co's CancelToken is cancelled — whichever happens
// first. This is the one operation the net subpackage needs from IoData;
// everything else (arm, notify, finish) stays internal to this package.
func (d *IoData) WaitIO(co *Coroutine, interest Interest, timeout time.Duration) error {
	_, err := AwaitEventSource[struct{}](co, &ioWaitSource{data: d, interest: interest, timeout: timeout})
	return err
}

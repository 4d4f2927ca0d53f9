package loomrt

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// workerState is the coarse Idle/Running/Polling state each worker
// records for itself.
type workerState int32

const (
	workerIdle workerState = iota
	workerRunning
	workerPolling
)

// worker is one of the scheduler's OS-thread-backed processors: a goroutine
// that repeatedly takes a ready coroutine from its own local deque, falls
// back to the global queue, or steals from a sibling, then grants
// it the ticket. When every queue is dry it parks the underlying OS thread
// in the reactor's blocking poll call, which doubles as the scheduler's
// idle wait. This is the M:N worker shape of toysched7.go's M/P pair,
// generalized so the reactor stands in for pure CPU work.
type worker struct {
	id     int
	local  *localDeque
	sched  *Scheduler
	state  atomic.Int32 // workerState
	steals atomic.Uint64
	runs   atomic.Uint64
}

// Scheduler owns the worker pool, the global overflow queue, and the
// single shared Reactor every coroutine's I/O ultimately goes through.
// The Reactor is shared (not one per worker) so a socket registered while
// running on one worker is still seen by every worker's PollIO call —
// several OS threads parked in epoll_wait/kevent on the same underlying
// fd is a standard multi-threaded-reactor pattern, not a data race.
// Exactly one Scheduler drives a process; see SetWorkers and the package
// functions (Spawn, Sleep, YieldNow) that operate against it.
type Scheduler struct {
	workers []*worker
	global  *globalQueue
	reactor Reactor

	startOnce sync.Once
	started   atomic.Bool
	closing   atomic.Bool
	closeWg   sync.WaitGroup

	opts schedulerOptions

	failureLimiter *catrate.Limiter

	registry *JoinRegistry

	metrics *Metrics
}

var (
	globalSchedulerInst *Scheduler
	globalSchedulerOnce sync.Once
	globalSchedulerMu   sync.Mutex
	pendingOptions      []Option
)

// defaultWorkerCount is runtime.GOMAXPROCS(0) unless overridden by
// WithWorkers before the scheduler's first use.
func defaultWorkerCount() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return n
}

// SetWorkers fixes the scheduler's worker count. It must be called before
// the first Spawn/Sleep/YieldNow of the process; calling it afterward
// returns ErrWorkersAlreadySet, matching spec.md's explicit rejection of
// worker-count changes after init (see DESIGN.md).
func SetWorkers(n int, opts ...Option) error {
	globalSchedulerMu.Lock()
	defer globalSchedulerMu.Unlock()
	if globalSchedulerInst != nil {
		return ErrWorkersAlreadySet
	}
	pendingOptions = append([]Option{WithWorkers(n)}, opts...)
	globalScheduler() // force construction now, under the lock
	return nil
}

// globalScheduler returns the process-wide Scheduler, constructing it with
// whatever options SetWorkers queued (or the defaults) on first use.
func globalScheduler() *Scheduler {
	globalSchedulerOnce.Do(func() {
		opts := pendingOptions
		globalSchedulerInst = newScheduler(opts...)
		globalSchedulerInst.start()
	})
	return globalSchedulerInst
}

func newScheduler(opts ...Option) *Scheduler {
	o := defaultSchedulerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = defaultWorkerCount()
	}

	reactor, err := newReactor()
	if err != nil {
		// Construction failure here means the process has no working
		// epoll/kqueue/IOCP facility at all (fd exhaustion, sandboxing,
		// unsupported platform) — there is no degraded mode to fall back
		// to, since every worker's idle wait depends on it.
		panic("loomrt: reactor init failed: " + err.Error())
	}

	s := &Scheduler{
		global:   newGlobalQueue(),
		reactor:  reactor,
		opts:     o,
		registry: newJoinRegistry(),
		failureLimiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: o.reactorFailureBudget,
			time.Minute: o.reactorFailureBudget * 10,
		}),
	}
	if o.metricsEnabled {
		s.metrics = newMetrics()
	}

	SetStructuredLogger(o.logger)

	globalTimerWheelOnce.Do(func() {
		globalTimerWheel = NewTimerWheel(o.timerResolution)
	})

	s.workers = make([]*worker, o.workers)
	for i := range s.workers {
		s.workers[i] = &worker{id: i, local: newLocalDeque(), sched: s}
	}
	return s
}

func (s *Scheduler) start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		for _, w := range s.workers {
			s.closeWg.Add(1)
			go w.run()
		}
	})
}

// Shutdown stops accepting new work and waits for every worker to notice
// the closing flag and exit its poll loop. In-flight coroutines are not
// forcibly killed; Shutdown only stops scheduling new turns for them.
func (s *Scheduler) Shutdown() {
	s.closing.Store(true)
	s.registry.CancelAll(ErrSchedulerClosed)
	for _, w := range s.workers {
		w.wake()
	}
	s.closeWg.Wait()
	s.reactor.Close()
}

// Metrics returns the scheduler's runtime counters, or nil if
// WithMetrics(false) was set.
func (s *Scheduler) Metrics() *Metrics { return s.metrics }

// enqueueCoroutine is the single wakeup path used by every event source
// (reactor completion, timer fire, channel send/recv, mutex unlock, join
// completion, cancellation). Called from a worker's own loop iteration it
// would ideally push locally, but since callers here are usually running on
// a timer/reactor goroutine rather than inside resume(), it always targets
// the global overflow queue — still work-conserving, since every idle
// worker checks the global queue before parking.
func enqueueCoroutine(co *Coroutine) {
	globalScheduler().global.push(co)
	globalScheduler().wakeOne()
}

// wakeOne nudges a single parked worker so a newly-runnable coroutine isn't
// left waiting for the next poll timeout.
func (s *Scheduler) wakeOne() {
	for _, w := range s.workers {
		if workerState(w.state.Load()) == workerPolling {
			w.wake()
			return
		}
	}
}

// Spawn starts fn as a new coroutine and returns a JoinHandle for its
// result. fn receives the spawned Coroutine so it can call YieldNow,
// Sleep, or check CancelToken without relying solely on the package-level
// Current() lookup.
func Spawn[T any](fn func(co *Coroutine) T) *JoinHandle[T] {
	sched := globalScheduler()
	co := newCoroutine()
	jh := &JoinHandle[T]{co: co}
	sched.registry.track(co)

	go co.trampoline(func() any {
		return fn(co)
	})

	sched.global.push(co)
	sched.wakeOne()
	return jh
}

// run is the worker's main loop: local -> global -> steal -> reactor poll.
func (w *worker) run() {
	defer w.sched.closeWg.Done()

	reactor := w.sched.reactor

	const idlePollMs = 50

	for !w.sched.closing.Load() {
		co := w.local.popFront()
		if co == nil {
			co = w.sched.global.pop()
		}
		if co == nil {
			co = w.steal()
		}

		if co != nil {
			w.state.Store(int32(workerRunning))
			w.runs.Add(1)
			reason := co.resume()
			switch reason {
			case suspendYield:
				w.local.pushBack(co)
			case suspendBlocked:
				// Something else (reactor, timer, channel, join) will
				// enqueueCoroutine it once its wait is satisfied.
			case suspendDone:
				w.sched.registry.release(co)
				w.sched.metrics.RecordCompletion()
			}
			continue
		}

		w.state.Store(int32(workerPolling))
		due := globalTimers().fireDue(time.Now())
		timeout := idlePollMs
		if deadline, ok := globalTimers().nextDeadline(); ok {
			if ms := int(time.Until(deadline).Milliseconds()); ms < timeout {
				if ms < 0 {
					ms = 0
				}
				timeout = ms
			}
		}
		if due == 0 {
			pollStart := time.Now()
			_, err := reactor.PollIO(timeout)
			w.sched.metrics.RecordPollLatency(time.Since(pollStart))
			if err != nil {
				if _, allowed := w.sched.failureLimiter.Allow(w.id); !allowed {
					logger().Errorf("loomrt: worker %d: reactor failure budget exceeded, stopping: %v", w.id, err)
					return
				}
				logger().Warnf("loomrt: worker %d: reactor poll error: %v", w.id, err)
			}
		}
		if w.sched.metrics != nil {
			w.sched.metrics.Queue.UpdateGlobal(w.sched.global.len())
			local := 0
			for _, other := range w.sched.workers {
				local += other.local.len()
			}
			w.sched.metrics.Queue.UpdateLocal(local)
		}
		w.sched.registry.Scavenge(64)
		w.state.Store(int32(workerIdle))
	}
}

func (w *worker) wake() {
	w.sched.reactor.Wake()
}

// steal takes a coroutine from a sibling worker's local deque, starting at
// a pseudo-random offset so repeated steal attempts don't all hammer worker
// 0. run calls it only after the worker's own deque and the global queue
// both came up empty.
func (w *worker) steal() *Coroutine {
	n := len(w.sched.workers)
	if n <= 1 {
		return nil
	}
	start := int(w.runs.Load()+1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == w.id {
			continue
		}
		if co := w.sched.workers[idx].local.steal(); co != nil {
			w.steals.Add(1)
			return co
		}
	}
	return nil
}

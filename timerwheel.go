package loomrt

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// timerEntry is one scheduled deadline. Uses the same
// timerHeap entry, generalized with a cancel bit (so Stop is O(1) via a
// lazy-deletion flag rather than requiring heap surgery). For I/O
// deadlines, fire is a closure that resolves the IoData's park slot
// (add_io_timer in spec terms).
type timerEntry struct {
	when      time.Time
	fire      func()
	cancelled atomic.Bool
	index     int // maintained by timerHeap's Swap/Push/Pop
}

// Stop prevents the timer from firing, if it hasn't already. Safe to call
// more than once or after the timer has already fired.
func (t *timerEntry) Stop() {
	t.cancelled.Store(true)
}

// timerHeap is a min-heap of pending timers ordered by deadline, exactly
// timerHeap shape (heap.Interface over a slice of
// value-typed entries) adapted to a slice of pointers so Stop can flip a
// bit on an entry already sitting in the heap.
type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerWheel is the scheduler's deadline structure: sleeps, recv timeouts,
// and I/O deadlines all register here. Despite the name (kept for spec
// continuity — see DESIGN.md's "Open Question: timer structure"), it is
// backed by container/heap, not a hashed wheel.
type TimerWheel struct {
	mu         sync.Mutex
	heap       timerHeap
	resolution time.Duration
}

// NewTimerWheel returns a TimerWheel that coalesces deadlines to the given
// resolution (the default Scheduler uses WithTimerResolution, 10ms).
func NewTimerWheel(resolution time.Duration) *TimerWheel {
	return &TimerWheel{resolution: resolution}
}

// scheduleAt registers fire to run at (or after) when.
func (w *TimerWheel) scheduleAt(when time.Time, fire func()) *timerEntry {
	e := &timerEntry{when: when, fire: fire}
	w.mu.Lock()
	heap.Push(&w.heap, e)
	w.mu.Unlock()
	return e
}

// scheduleAfter registers fire to run after d elapses.
func (w *TimerWheel) scheduleAfter(d time.Duration, fire func()) *timerEntry {
	return w.scheduleAt(time.Now().Add(d), fire)
}

// nextDeadline returns the earliest live deadline, discarding cancelled
// entries from the top of the heap as it goes, and whether any timer
// remains at all.
func (w *TimerWheel) nextDeadline() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.heap.Len() > 0 {
		top := w.heap[0]
		if top.cancelled.Load() {
			heap.Pop(&w.heap)
			continue
		}
		return top.when, true
	}
	return time.Time{}, false
}

// fireDue pops and runs every timer whose deadline has passed, snapped to
// the wheel's resolution so near-simultaneous deadlines batch together
// instead of trickling out one syscall at a time.
func (w *TimerWheel) fireDue(now time.Time) int {
	cutoff := now.Add(w.resolution)
	var due []*timerEntry
	w.mu.Lock()
	for w.heap.Len() > 0 && w.heap[0].when.Before(cutoff) {
		e := heap.Pop(&w.heap).(*timerEntry)
		if !e.cancelled.Load() {
			due = append(due, e)
		}
	}
	w.mu.Unlock()

	for _, e := range due {
		e.fire()
	}
	return len(due)
}

// len reports the number of live (uncancelled) pending timers, used by
// metrics and tests.
func (w *TimerWheel) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.heap {
		if !e.cancelled.Load() {
			n++
		}
	}
	return n
}

var (
	globalTimerWheel     *TimerWheel
	globalTimerWheelOnce sync.Once
)

// globalTimers returns the process-wide TimerWheel, created on first use
// with the resolution configured via WithTimerResolution (or the 10ms
// default if the scheduler hasn't been configured yet).
func globalTimers() *TimerWheel {
	globalTimerWheelOnce.Do(func() {
		globalTimerWheel = NewTimerWheel(defaultTimerResolution)
	})
	return globalTimerWheel
}

// sleepSource adapts the timer wheel into an EventSource so Sleep suspends
// the calling coroutine instead of the underlying OS thread.
type sleepSource struct {
	d        time.Duration
	entry    *timerEntry
	resolved atomic.Bool
}

func (s *sleepSource) Subscribe(co *Coroutine) bool {
	if s.d <= 0 {
		return true
	}
	wake := func() {
		if s.resolved.CompareAndSwap(false, true) {
			enqueueCoroutine(co)
		}
	}
	s.entry = globalTimers().scheduleAt(time.Now().Add(s.d), wake)
	// A cancelled sleep must wake immediately rather than wait out the
	// full duration; the CAS guard ensures only one of {timer fire,
	// cancel} actually re-enqueues co if both race.
	co.CancelToken().OnCancel(func(reason any) {
		s.entry.Stop()
		wake()
	})
	return false
}

func (s *sleepSource) Done() (struct{}, error) {
	return struct{}{}, nil
}

// SleepCase builds a Select branch that fires after d elapses — the timer
// equivalent of a timeout arm in a select statement.
func SleepCase(d time.Duration) SelectCase {
	var entry *timerEntry
	return SelectCase{
		Arm: func(co *Coroutine, resolve func(err error)) {
			entry = globalTimers().scheduleAfter(d, func() { resolve(nil) })
		},
		Unarm: func() {
			if entry != nil {
				entry.Stop()
			}
		},
	}
}

// Sleep suspends the current coroutine for at least d. Called from outside
// a coroutine, it blocks the calling OS thread instead (useful from tests
// and from cmd/ main functions).
func Sleep(d time.Duration) error {
	if co := Current(); co != nil {
		if _, err := AwaitEventSource[struct{}](co, &sleepSource{d: d}); err != nil {
			return err
		}
		return co.CancelToken().Err()
	}
	time.Sleep(d)
	return nil
}

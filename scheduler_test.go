package loomrt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetWorkersAfterInitRejected relies on an earlier test in this package
// having already forced globalScheduler() into existence via Spawn — by the
// time package-level tests run, SetWorkers can never be the first call.
func TestSetWorkersAfterInitRejected(t *testing.T) {
	err := SetWorkers(4)
	require.ErrorIs(t, err, ErrWorkersAlreadySet)
}

func TestManySpawnsMakeProgressUnderWorkStealing(t *testing.T) {
	const n = 500
	var wg sync.WaitGroup
	var completed int64
	var mu sync.Mutex
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		Spawn(func(co *Coroutine) int {
			defer wg.Done()
			if i%2 == 0 {
				YieldNow()
			}
			mu.Lock()
			completed++
			mu.Unlock()
			return i
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("spawned coroutines did not all complete (completed=%d/%d) — possible starvation under work stealing", completed, n)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, n, completed)
}

func TestSpawnDistributesAcrossWorkers(t *testing.T) {
	const n = 200
	handles := make([]*JoinHandle[int], n)
	for i := 0; i < n; i++ {
		handles[i] = Spawn(func(co *Coroutine) int { return 1 })
	}
	var total int
	for _, h := range handles {
		v, err := h.Join()
		require.NoError(t, err)
		total += v
	}
	assert.Equal(t, n, total)
}

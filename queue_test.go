package loomrt

import "testing"

func TestLocalDequeFIFOOrder(t *testing.T) {
	q := newLocalDeque()
	a, b, c := newCoroutine(), newCoroutine(), newCoroutine()
	q.pushBack(a)
	q.pushBack(b)
	q.pushBack(c)

	if got := q.popFront(); got != a {
		t.Fatalf("popFront() = coroutine %d, want %d", got.ID(), a.ID())
	}
	if got := q.popFront(); got != b {
		t.Fatalf("popFront() = coroutine %d, want %d", got.ID(), b.ID())
	}
	if got := q.steal(); got != c {
		t.Fatalf("steal() = coroutine %d, want %d", got.ID(), c.ID())
	}
	if got := q.popFront(); got != nil {
		t.Fatalf("popFront() on empty queue = %v, want nil", got)
	}
}

func TestLocalDequeLen(t *testing.T) {
	q := newLocalDeque()
	if q.len() != 0 {
		t.Fatalf("len() = %d, want 0", q.len())
	}
	q.pushBack(newCoroutine())
	q.pushBack(newCoroutine())
	if q.len() != 2 {
		t.Fatalf("len() = %d, want 2", q.len())
	}
	q.popFront()
	if q.len() != 1 {
		t.Fatalf("len() = %d, want 1", q.len())
	}
}

func TestGlobalQueueFIFOAcrossChunkBoundary(t *testing.T) {
	q := newGlobalQueue()
	n := globalQueueChunkSize + 5
	cos := make([]*Coroutine, n)
	for i := range cos {
		cos[i] = newCoroutine()
		q.push(cos[i])
	}
	if q.len() != n {
		t.Fatalf("len() = %d, want %d", q.len(), n)
	}
	for i := range cos {
		got := q.pop()
		if got != cos[i] {
			t.Fatalf("pop() at index %d = coroutine %d, want %d", i, got.ID(), cos[i].ID())
		}
	}
	if got := q.pop(); got != nil {
		t.Fatalf("pop() on drained queue = %v, want nil", got)
	}
	if q.len() != 0 {
		t.Fatalf("len() = %d, want 0", q.len())
	}
}

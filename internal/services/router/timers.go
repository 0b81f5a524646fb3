package router

import (
	"container/heap"
	"sync"
)

type timer struct {
	at    float64
	key   string
	seq   uint64
	index int
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	t.index = -1
	return t
}

// TimerQueue holds at most one pending deadline per key, in simulation
// seconds. It is polled from the engine loop rather than firing on its own.
type TimerQueue struct {
	mu     sync.Mutex
	heap   timerHeap
	byKey  map[string]*timer
	nextID uint64
}

func NewTimerQueue() *TimerQueue {
	return &TimerQueue{byKey: make(map[string]*timer)}
}

// Schedule sets or replaces the deadline for key.
func (q *TimerQueue) Schedule(key string, at float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	if t, ok := q.byKey[key]; ok {
		t.at = at
		t.seq = q.nextID
		heap.Fix(&q.heap, t.index)
		return
	}
	t := &timer{at: at, key: key, seq: q.nextID}
	heap.Push(&q.heap, t)
	q.byKey[key] = t
}

// Cancel removes a pending deadline and reports whether one existed.
func (q *TimerQueue) Cancel(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, t.index)
	delete(q.byKey, key)
	return true
}

// Due pops every key whose deadline is at or before now, earliest first.
func (q *TimerQueue) Due(now float64) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for len(q.heap) > 0 && q.heap[0].at <= now {
		t := heap.Pop(&q.heap).(*timer)
		delete(q.byKey, t.key)
		out = append(out, t.key)
	}
	return out
}

// Pending returns the deadline for key, if any.
func (q *TimerQueue) Pending(key string) (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.byKey[key]; ok {
		return t.at, true
	}
	return 0, false
}

func (q *TimerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

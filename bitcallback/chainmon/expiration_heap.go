package chainmon

import (
	"container/heap"
	"time"
)

// expirationEntry is one (expiration, subscription id) pair ordered by
// expiration ascending.
type expirationEntry struct {
	expiration time.Time
	id         int64
}

type expirationHeap []expirationEntry

func (h expirationHeap) Len() int { return len(h) }
func (h expirationHeap) Less(i, j int) bool {
	return h[i].expiration.Before(h[j].expiration)
}
func (h expirationHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *expirationHeap) Push(x interface{}) {
	*h = append(*h, x.(expirationEntry))
}

func (h *expirationHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// newExpirationHeap returns an empty, ready-to-use min-heap over
// (expiration, id).
func newExpirationHeap() *expirationHeap {
	h := &expirationHeap{}
	heap.Init(h)
	return h
}

func (h *expirationHeap) push(expiration time.Time, id int64) {
	heap.Push(h, expirationEntry{expiration: expiration, id: id})
}

// peek returns the earliest entry without removing it.
func (h *expirationHeap) peek() (expirationEntry, bool) {
	if h.Len() == 0 {
		return expirationEntry{}, false
	}
	return (*h)[0], true
}

func (h *expirationHeap) pop() expirationEntry {
	return heap.Pop(h).(expirationEntry)
}

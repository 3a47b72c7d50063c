package sequence

import (
	"container/heap"
	"sort"
)

// boundedHeap keeps the worst retained element at the root so Offer can
// replace it in O(log k).
type boundedHeap[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (h *boundedHeap[T]) Len() int { return len(h.items) }

func (h *boundedHeap[T]) Less(i, j int) bool {
	// Inverted: the root is the worst element retained so far.
	return h.less(h.items[j], h.items[i])
}

func (h *boundedHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *boundedHeap[T]) Push(x any) {
	h.items = append(h.items, x.(T))
}

func (h *boundedHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	var zero T
	old[n-1] = zero // avoid memory leak
	h.items = old[0 : n-1]
	return item
}

// TopK retains the k smallest elements (by less) of an arbitrary stream.
// A zero or negative k retains nothing.
type TopK[T any] struct {
	k int
	h boundedHeap[T]
}

// NewTopK creates a TopK with the given capacity. less must define a strict
// total order; elements for which less(a, b) holds are considered better.
func NewTopK[T any](k int, less func(a, b T) bool) *TopK[T] {
	t := &TopK[T]{k: k, h: boundedHeap[T]{less: less}}
	if k > 0 {
		t.h.items = make([]T, 0, k)
	}
	heap.Init(&t.h)
	return t
}

// Offer considers value for retention. It reports whether the value was kept.
func (t *TopK[T]) Offer(value T) bool {
	if t.k <= 0 {
		return false
	}
	if t.h.Len() < t.k {
		heap.Push(&t.h, value)
		return true
	}
	if t.h.less(value, t.h.items[0]) {
		t.h.items[0] = value
		heap.Fix(&t.h, 0)
		return true
	}
	return false
}

// Worst returns the worst retained element without removing it.
func (t *TopK[T]) Worst() (T, bool) {
	if t.h.Len() == 0 {
		var zero T
		return zero, false
	}
	return t.h.items[0], true
}

// Full reports whether the heap holds k elements.
func (t *TopK[T]) Full() bool {
	return t.h.Len() >= t.k && t.k > 0
}

func (t *TopK[T]) Len() int {
	return t.h.Len()
}

// Sorted returns the retained elements ordered best first. The TopK remains
// usable afterwards.
func (t *TopK[T]) Sorted() []T {
	out := make([]T, len(t.h.items))
	copy(out, t.h.items)
	sort.Slice(out, func(i, j int) bool { return t.h.less(out[i], out[j]) })
	return out
}

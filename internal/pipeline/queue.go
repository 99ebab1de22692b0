// Package pipeline holds the bounded work queue, the concurrency
// limiter and the dispatch loop that drives blocks through the
// translation backend.
package pipeline

import (
	"sync"

	"biline/internal/classify"
	"biline/internal/tree"
)

const DefaultCapacity = 100

// Queue is a bounded FIFO of blocks awaiting translation,
// deduplicated by node handle. When full, the oldest entry is evicted
// to make room.
type Queue struct {
	mu       sync.Mutex
	items    []classify.Block
	present  map[tree.NodeHandle]struct{}
	capacity int
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		present:  make(map[tree.NodeHandle]struct{}),
		capacity: capacity,
	}
}

// Push enqueues a block unless its node is already present. It
// reports whether the block was added.
func (q *Queue) Push(b classify.Block) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.present[b.Node]; ok {
		return false
	}
	if len(q.items) >= q.capacity {
		oldest := q.items[0]
		q.items = q.items[1:]
		delete(q.present, oldest.Node)
	}
	q.items = append(q.items, b)
	q.present[b.Node] = struct{}{}
	return true
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (classify.Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return classify.Block{}, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	delete(q.present, b.Node)
	return b, true
}

// PopN removes up to n blocks from the head.
func (q *Queue) PopN(n int) []classify.Block {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	if n <= 0 {
		return nil
	}
	out := make([]classify.Block, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	for _, b := range out {
		delete(q.present, b.Node)
	}
	return out
}

func (q *Queue) Contains(h tree.NodeHandle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.present[h]
	return ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.present = make(map[tree.NodeHandle]struct{})
}

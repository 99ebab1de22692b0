package pipeline

import (
	"fmt"
	"testing"

	"biline/internal/classify"
	"biline/internal/tree"
)

func block(n int) classify.Block {
	return classify.Block{Node: tree.NodeHandle(n), Text: fmt.Sprintf("text %d", n)}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(10)
	for i := 1; i <= 3; i++ {
		if !q.Push(block(i)) {
			t.Fatalf("Push(%d) rejected", i)
		}
	}
	for i := 1; i <= 3; i++ {
		b, ok := q.Pop()
		if !ok || b.Node != tree.NodeHandle(i) {
			t.Fatalf("Pop = %v,%v, want node %d", b.Node, ok, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on empty queue returned ok")
	}
}

func TestQueueDedupByNode(t *testing.T) {
	q := NewQueue(10)
	if !q.Push(block(1)) {
		t.Fatal("first Push rejected")
	}
	if q.Push(block(1)) {
		t.Fatal("duplicate Push accepted")
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}

	// Popping frees the node for re-enqueue.
	q.Pop()
	if !q.Push(block(1)) {
		t.Fatal("re-Push after Pop rejected")
	}
}

func TestQueueEvictsOldestWhenFull(t *testing.T) {
	q := NewQueue(3)
	for i := 1; i <= 4; i++ {
		q.Push(block(i))
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want capacity 3", q.Len())
	}
	if q.Contains(1) {
		t.Fatal("oldest entry survived eviction")
	}
	b, _ := q.Pop()
	if b.Node != 2 {
		t.Fatalf("head after eviction = %d, want 2", b.Node)
	}
}

func TestQueuePopN(t *testing.T) {
	q := NewQueue(10)
	for i := 1; i <= 5; i++ {
		q.Push(block(i))
	}
	got := q.PopN(3)
	if len(got) != 3 || got[0].Node != 1 || got[2].Node != 3 {
		t.Fatalf("PopN(3) = %v", got)
	}
	if got := q.PopN(10); len(got) != 2 {
		t.Fatalf("PopN(10) on 2 items returned %d", len(got))
	}
	if got := q.PopN(1); got != nil {
		t.Fatalf("PopN on empty = %v, want nil", got)
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(10)
	q.Push(block(1))
	q.Push(block(2))
	q.Clear()
	if q.Len() != 0 || q.Contains(1) {
		t.Fatal("Clear left residue")
	}
	if !q.Push(block(1)) {
		t.Fatal("Push after Clear rejected")
	}
}

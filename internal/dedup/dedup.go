// Package dedup memoizes "already handled" decisions per node so that
// repeated sweeps do not re-walk ancestor chains.
package dedup

import (
	"sync"

	"biline/internal/tree"
)

// Cache answers AlreadyHandled with checks in increasing cost order:
// memo hit, done-set hit, translation wrapper on the node or an
// ancestor, then an ancestor walk against the done set. Positive
// answers are cached permanently; negative answers are cached until
// the next MarkDone, since marking a node done can flip the answer for
// its descendants.
type Cache struct {
	mu       sync.Mutex
	tree     tree.ContentTree
	done     map[tree.NodeHandle]struct{}
	positive map[tree.NodeHandle]struct{}
	negative map[tree.NodeHandle]struct{}
}

func New(t tree.ContentTree) *Cache {
	return &Cache{
		tree:     t,
		done:     make(map[tree.NodeHandle]struct{}),
		positive: make(map[tree.NodeHandle]struct{}),
		negative: make(map[tree.NodeHandle]struct{}),
	}
}

func (c *Cache) AlreadyHandled(h tree.NodeHandle) bool {
	c.mu.Lock()
	if _, ok := c.positive[h]; ok {
		c.mu.Unlock()
		return true
	}
	if _, ok := c.negative[h]; ok {
		c.mu.Unlock()
		return false
	}
	if _, ok := c.done[h]; ok {
		c.positive[h] = struct{}{}
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	// Ancestor walk without the lock; tree calls take their own.
	handled := c.walkAncestors(h)

	c.mu.Lock()
	if handled {
		c.positive[h] = struct{}{}
	} else {
		c.negative[h] = struct{}{}
	}
	c.mu.Unlock()
	return handled
}

func (c *Cache) walkAncestors(h tree.NodeHandle) bool {
	if c.tree.IsWrapper(h) || c.tree.HasTranslationChild(h) {
		return true
	}
	for p := c.tree.Parent(h); p != tree.InvalidHandle; p = c.tree.Parent(p) {
		if c.tree.IsWrapper(p) {
			return true
		}
		c.mu.Lock()
		_, done := c.done[p]
		c.mu.Unlock()
		if done {
			return true
		}
	}
	return false
}

func (c *Cache) MarkDone(h tree.NodeHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[h] = struct{}{}
	c.positive[h] = struct{}{}
	// A new done ancestor invalidates every cached negative.
	c.negative = make(map[tree.NodeHandle]struct{})
}

func (c *Cache) IsDone(h tree.NodeHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.done[h]
	return ok
}

// Invalidate drops cached answers for a node whose identity may have
// gone stale, e.g. after a detach/reattach.
func (c *Cache) Invalidate(h tree.NodeHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.positive, h)
	delete(c.negative, h)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}

// Reset wipes all memory, including the done set. Used by the full
// "restore original" reset, not by a plain stop.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = make(map[tree.NodeHandle]struct{})
	c.positive = make(map[tree.NodeHandle]struct{})
	c.negative = make(map[tree.NodeHandle]struct{})
}

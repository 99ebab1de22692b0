// Package visibility decides which content nodes fall inside the
// region of interest: the viewport expanded by an asymmetric preload
// margin, larger below than above to follow reading direction.
package visibility

import (
	"sort"
	"sync"

	"biline/internal/classify"
	"biline/internal/tree"
)

type Options struct {
	// Margins as fractions of the viewport height.
	AboveRatio float64
	BelowRatio float64
}

func (o Options) withDefaults() Options {
	if o.AboveRatio <= 0 {
		o.AboveRatio = 0.5
	}
	if o.BelowRatio <= 0 {
		o.BelowRatio = 1.5
	}
	return o
}

// Tracker supports two modes. Pull mode: Sweep synchronously walks the
// tree, classifies, measures everything in one read phase and returns
// visible candidates in top-to-bottom order. Push mode: candidates
// discovered outside the region are registered, and Advance fires them
// once the viewport reaches them.
type Tracker struct {
	tree       tree.ContentTree
	classifier *classify.Classifier
	opts       Options

	mu         sync.Mutex
	registered map[tree.NodeHandle]classify.Block
}

func New(t tree.ContentTree, c *classify.Classifier, opts Options) *Tracker {
	return &Tracker{
		tree:       t,
		classifier: c,
		opts:       opts.withDefaults(),
		registered: make(map[tree.NodeHandle]classify.Block),
	}
}

// Region returns the expanded area of interest for a viewport.
func (tr *Tracker) Region(vp tree.Viewport) tree.Rect {
	top := vp.Top - vp.Height*tr.opts.AboveRatio
	if top < 0 {
		top = 0
	}
	return tree.Rect{Top: top, Bottom: vp.Bottom() + vp.Height*tr.opts.BelowRatio}
}

// InRegion reports whether a rect intersects the region of interest.
func (tr *Tracker) InRegion(vp tree.Viewport, r tree.Rect) bool {
	region := tr.Region(vp)
	return r.Bottom >= region.Top && r.Top <= region.Bottom
}

// Sweep classifies the whole tree against a filter, measures the
// candidates, and splits them into in-region blocks (sorted by top
// offset) and out-of-region blocks. skip lets the caller reject nodes
// it already handled before any measurement happens.
func (tr *Tracker) Sweep(skip func(tree.NodeHandle) bool) (visible, deferred []classify.Block) {
	vp := tr.tree.Viewport()

	var candidates []classify.Block
	var walk func(h tree.NodeHandle)
	walk = func(h tree.NodeHandle) {
		if h == tree.InvalidHandle {
			return
		}
		if skip != nil && skip(h) {
			return
		}
		block, verdict := tr.classifier.Classify(h)
		switch verdict {
		case classify.VerdictCandidate:
			candidates = append(candidates, block)
		case classify.VerdictDescend:
			for _, child := range tr.tree.Children(h) {
				walk(child)
			}
		}
	}
	walk(tr.tree.Root())

	// Read phase: take every measurement before the caller gets a
	// chance to mutate anything.
	for i := range candidates {
		candidates[i].Rect = tr.tree.Measure(candidates[i].Node)
	}

	for _, b := range candidates {
		if tr.InRegion(vp, b.Rect) {
			visible = append(visible, b)
		} else {
			deferred = append(deferred, b)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Rect.Top < visible[j].Rect.Top
	})
	return visible, deferred
}

// Register puts a block on the push-mode watch list.
func (tr *Tracker) Register(b classify.Block) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.registered[b.Node] = b
}

// Advance fires registered blocks that entered the region of interest
// for the given viewport, removing them from the watch list. Returned
// blocks are sorted by top offset.
func (tr *Tracker) Advance(vp tree.Viewport) []classify.Block {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	var entered []classify.Block
	for h, b := range tr.registered {
		if tr.InRegion(vp, b.Rect) {
			entered = append(entered, b)
			delete(tr.registered, h)
		}
	}
	sort.SliceStable(entered, func(i, j int) bool {
		return entered[i].Rect.Top < entered[j].Rect.Top
	})
	return entered
}

// Pending returns the push-mode watch list size.
func (tr *Tracker) Pending() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.registered)
}

// Reset clears the push-mode watch list.
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.registered = make(map[tree.NodeHandle]classify.Block)
}

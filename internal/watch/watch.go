// Package watch contains the three event sources that re-trigger
// discovery: tree mutations, viewport movement, and a low-frequency
// adaptive sweep that catches anything the first two missed.
package watch

import (
	"context"
	"math"
	"time"

	"biline/internal/tree"
)

const (
	DefaultMutationDebounce = 200 * time.Millisecond
	DefaultScrollShort      = 50 * time.Millisecond
	DefaultScrollLong       = 100 * time.Millisecond
	DefaultScrollThreshold  = 200.0

	DefaultRescanMin      = 2 * time.Second
	DefaultRescanMax      = 8 * time.Second
	DefaultBacklogLow     = 10
	DefaultBacklogHigh    = 50
	DefaultBacklogHardCap = 80
)

// MutationWatcher batches tree-change notifications and fires one
// debounced rescan per burst. Changes wholly inside translation
// wrappers are the engine's own writes and are ignored.
type MutationWatcher struct {
	tree     tree.ContentTree
	debounce time.Duration
	rescan   func()
}

func NewMutationWatcher(t tree.ContentTree, debounce time.Duration, rescan func()) *MutationWatcher {
	if debounce <= 0 {
		debounce = DefaultMutationDebounce
	}
	return &MutationWatcher{tree: t, debounce: debounce, rescan: rescan}
}

func (w *MutationWatcher) Run(ctx context.Context) {
	ch := make(chan tree.Mutation, 64)
	unsub := w.tree.SubscribeMutations(ch)
	defer unsub()

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case m := <-ch:
			if w.selfInflicted(m) {
				continue
			}
			timer, timerC = resetTimer(timer, timerC, w.debounce)
		case <-timerC:
			timer, timerC = nil, nil
			w.rescan()
		}
	}
}

// selfInflicted reports whether every added node sits inside a
// translation wrapper.
func (w *MutationWatcher) selfInflicted(m tree.Mutation) bool {
	for _, h := range m.Added {
		if !w.insideWrapper(h) {
			return false
		}
	}
	return len(m.Added) > 0
}

func (w *MutationWatcher) insideWrapper(h tree.NodeHandle) bool {
	for n := h; n != tree.InvalidHandle; n = w.tree.Parent(n) {
		if w.tree.IsWrapper(n) {
			return true
		}
	}
	return false
}

// ScrollWatcher re-triggers discovery after viewport movement. Large
// jumps get a short debounce for responsiveness; small ones a longer
// one to keep scan cost down during slow reading scrolls.
type ScrollWatcher struct {
	tree      tree.ContentTree
	short     time.Duration
	long      time.Duration
	threshold float64
	rescan    func()
}

func NewScrollWatcher(t tree.ContentTree, short, long time.Duration, threshold float64, rescan func()) *ScrollWatcher {
	if short <= 0 {
		short = DefaultScrollShort
	}
	if long <= 0 {
		long = DefaultScrollLong
	}
	if threshold <= 0 {
		threshold = DefaultScrollThreshold
	}
	return &ScrollWatcher{tree: t, short: short, long: long, threshold: threshold, rescan: rescan}
}

func (w *ScrollWatcher) Run(ctx context.Context) {
	ch := make(chan tree.Viewport, 64)
	unsub := w.tree.SubscribeScroll(ch)
	defer unsub()

	lastTop := w.tree.Viewport().Top
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case vp := <-ch:
			distance := math.Abs(vp.Top - lastTop)
			lastTop = vp.Top
			delay := w.long
			if distance >= w.threshold {
				delay = w.short
			}
			timer, timerC = resetTimer(timer, timerC, delay)
		case <-timerC:
			timer, timerC = nil, nil
			w.rescan()
		}
	}
}

// RescanOptions tune the adaptive sweep.
type RescanOptions struct {
	Min         time.Duration
	Max         time.Duration
	BacklogLow  int
	BacklogHigh int
	HardCap     int
}

func (o RescanOptions) withDefaults() RescanOptions {
	if o.Min <= 0 {
		o.Min = DefaultRescanMin
	}
	if o.Max <= 0 {
		o.Max = DefaultRescanMax
	}
	if o.BacklogLow <= 0 {
		o.BacklogLow = DefaultBacklogLow
	}
	if o.BacklogHigh <= 0 {
		o.BacklogHigh = DefaultBacklogHigh
	}
	if o.HardCap <= 0 {
		o.HardCap = DefaultBacklogHardCap
	}
	return o
}

// AdaptiveRescanner sweeps on an interval that grows with queue
// backlog, and skips the sweep entirely above a hard cap so that an
// overloaded queue is not fed more discovery work.
type AdaptiveRescanner struct {
	opts    RescanOptions
	backlog func() int
	rescan  func()
}

func NewAdaptiveRescanner(opts RescanOptions, backlog func() int, rescan func()) *AdaptiveRescanner {
	return &AdaptiveRescanner{opts: opts.withDefaults(), backlog: backlog, rescan: rescan}
}

// Interval computes the sweep interval for a backlog depth.
func (r *AdaptiveRescanner) Interval(depth int) time.Duration {
	o := r.opts
	switch {
	case depth < o.BacklogLow:
		return o.Min
	case depth >= o.BacklogHigh:
		return o.Max
	default:
		span := float64(o.Max - o.Min)
		frac := float64(depth-o.BacklogLow) / float64(o.BacklogHigh-o.BacklogLow)
		return o.Min + time.Duration(span*frac)
	}
}

func (r *AdaptiveRescanner) Run(ctx context.Context) {
	for {
		interval := r.Interval(r.backlog())
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if r.backlog() > r.opts.HardCap {
			continue
		}
		r.rescan()
	}
}

func resetTimer(timer *time.Timer, timerC <-chan time.Time, d time.Duration) (*time.Timer, <-chan time.Time) {
	if timer == nil {
		timer = time.NewTimer(d)
		return timer, timer.C
	}
	if !timer.Stop() {
		select {
		case <-timerC:
		default:
		}
	}
	timer.Reset(d)
	return timer, timerC
}

// Package session owns the top-level state machine wiring discovery,
// the work queue, dispatch and the watchers together.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"biline/internal/classify"
	"biline/internal/dedup"
	"biline/internal/pipeline"
	"biline/internal/render"
	"biline/internal/translate"
	"biline/internal/tree"
	"biline/internal/visibility"
	"biline/internal/watch"
)

type State int

const (
	StateIdle State = iota
	StateActive
	StateStopping
)

// Status is the externally visible session snapshot.
type Status struct {
	Active          bool
	TranslatedCount int
	HasTranslations bool
}

type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is emitted outward for progress and failure telemetry.
type Event struct {
	Type     EventType
	Session  string
	Count    int
	Category translate.Category
	Message  string
	// Terminal marks a collaborator invalidation that ended the
	// session; the caller should show a persistent notice.
	Terminal bool
}

// Options collect the tuning knobs of one engine instance.
type Options struct {
	Classifier classify.Options
	Visibility visibility.Options
	Render     render.Options

	QueueCapacity int
	MaxConcurrent int
	Dispatch      pipeline.Options

	MutationDebounce time.Duration
	ScrollShort      time.Duration
	ScrollLong       time.Duration
	ScrollThreshold  float64
	Rescan           watch.RescanOptions

	// Dark switches the pending marker to the high-contrast variant.
	Dark bool

	// ProgressEvery controls how often progress events fire.
	ProgressEvery int

	Notify func(Event)
}

func (o Options) withDefaults() Options {
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 10
	}
	return o
}

// Controller is the Idle/Active/Stopping state machine. All commands
// are idempotent. One Controller drives one content tree; independent
// trees get independent controllers.
type Controller struct {
	tree   tree.ContentTree
	client translate.Client
	opts   Options
	log    *logrus.Entry
	cache  *dedup.Cache

	mu              sync.Mutex
	state           State
	id              string
	translatedCount int
	// seenText maps a normalized literal to the node that owns its
	// translation, so re-discovering the owner never settles it.
	seenText map[string]tree.NodeHandle
	// pending holds nodes whose translation call is in flight.
	pending map[tree.NodeHandle]struct{}

	queue      *pipeline.Queue
	limiter    *pipeline.Limiter
	dispatcher *pipeline.Dispatcher
	classifier *classify.Classifier
	tracker    *visibility.Tracker
	applier    *render.Applier

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(t tree.ContentTree, client translate.Client, opts Options, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		tree:   t,
		client: client,
		opts:   opts.withDefaults(),
		log:    log,
		cache:  dedup.New(t),
	}
}

// Start enters Active: one synchronous visible-region sweep, then the
// dispatch loop, then the watchers. Calling Start while active is a
// no-op.
func (c *Controller) Start(cfg translate.Config) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = StateActive
	c.id = uuid.NewString()
	c.translatedCount = 0
	c.seenText = make(map[string]tree.NodeHandle)
	c.pending = make(map[tree.NodeHandle]struct{})

	c.classifier = classify.New(c.tree, c.opts.Classifier)
	c.tracker = visibility.New(c.tree, c.classifier, c.opts.Visibility)
	c.applier = render.New(c.tree, c.cache, c.opts.Render, c.log)
	c.queue = pipeline.NewQueue(c.opts.QueueCapacity)
	c.limiter = pipeline.NewLimiter(c.opts.MaxConcurrent)
	// The hooks carry this activation's id so that a call still in
	// flight across a stop/start cannot apply into the next session.
	id := c.id
	c.dispatcher = pipeline.NewDispatcher(c.queue, c.limiter, c.client, cfg, c.opts.Dispatch, pipeline.Hooks{
		Begin: func(b classify.Block) { c.onBegin(id, b) },
		Apply: func(b classify.Block, translation string) { c.onApply(id, b, translation) },
		Fail:  func(b classify.Block, err error) { c.onFail(id, b, err) },
	}, c.log)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.log.WithField("session", id).Info("translation session started")
	c.notify(Event{Type: EventStarted, Session: id})

	c.sweep()

	dispatcher := c.dispatcher
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		dispatcher.Loop(ctx)
	}()

	mutation := watch.NewMutationWatcher(c.tree, c.opts.MutationDebounce, c.rescan)
	scroll := watch.NewScrollWatcher(c.tree, c.opts.ScrollShort, c.opts.ScrollLong, c.opts.ScrollThreshold, c.rescan)
	adaptive := watch.NewAdaptiveRescanner(c.opts.Rescan, c.backlog, c.rescan)
	for _, run := range []func(context.Context){mutation.Run, scroll.Run, adaptive.Run} {
		c.wg.Add(1)
		go func(run func(context.Context)) {
			defer c.wg.Done()
			run(ctx)
		}(run)
	}
	return nil
}

// Stop enters Idle: the queue is cleared immediately and the watchers
// detached. Calls already in flight complete their round trip but
// their results are discarded by the gates in onApply/onFail.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	queue := c.queue
	cancel := c.cancel
	id := c.id
	c.mu.Unlock()

	for _, b := range queue.PopN(queue.Len()) {
		c.tree.ClearMarkers(b.Node)
	}
	queue.Clear()
	cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateIdle
	c.tracker.Reset()
	count := c.translatedCount
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"session": id, "translated": count}).Info("translation session stopped")
	c.notify(Event{Type: EventCompleted, Session: id, Count: count})
	return nil
}

// RemoveAll stops the session if needed, strips every applied
// translation from the tree and wipes the dedup memory, so a later
// Start sees a pristine document.
func (c *Controller) RemoveAll() error {
	if err := c.Stop(); err != nil {
		return err
	}
	removed := c.tree.RemoveWrappers()
	c.cache.Reset()
	c.mu.Lock()
	c.seenText = make(map[string]tree.NodeHandle)
	c.translatedCount = 0
	c.mu.Unlock()
	c.log.WithField("removed", removed).Info("translations removed")
	return nil
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Active:          c.state == StateActive,
		TranslatedCount: c.translatedCount,
		HasTranslations: c.tree.WrapperCount() > 0,
	}
}

// Backlog returns the current queue depth.
func (c *Controller) Backlog() int {
	return c.backlog()
}

// PendingVisibility returns the number of discovered blocks waiting
// for the viewport to reach them.
func (c *Controller) PendingVisibility() int {
	c.mu.Lock()
	tracker := c.tracker
	c.mu.Unlock()
	if tracker == nil {
		return 0
	}
	return tracker.Pending()
}

// InFlight returns the number of translation calls currently running.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	limiter := c.limiter
	c.mu.Unlock()
	if limiter == nil {
		return 0
	}
	return limiter.InFlight()
}

func (c *Controller) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateActive
}

func (c *Controller) backlog() int {
	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()
	if queue == nil {
		return 0
	}
	return queue.Len()
}

// sweep is the pull-mode discovery pass: classify, measure, enqueue
// visible candidates in top-to-bottom order, register the rest for
// push-mode visibility.
func (c *Controller) sweep() {
	if !c.active() {
		return
	}
	visible, deferred := c.tracker.Sweep(c.cache.AlreadyHandled)
	for _, b := range visible {
		c.enqueue(b)
	}
	for _, b := range deferred {
		c.tracker.Register(b)
	}
	c.dispatcher.Wake()
}

// rescan runs on every watcher trigger: first promote registered
// blocks that scrolled into the region, then sweep for new content.
func (c *Controller) rescan() {
	if !c.active() {
		return
	}
	for _, b := range c.tracker.Advance(c.tree.Viewport()) {
		c.enqueue(b)
	}
	c.sweep()
}

func (c *Controller) enqueue(b classify.Block) {
	if c.cache.AlreadyHandled(b.Node) {
		return
	}
	// A node that is already queued or in flight is not a duplicate,
	// it is the same work re-discovered by a rescan.
	if c.queue.Contains(b.Node) {
		return
	}
	key := textKey(b.Text)

	c.mu.Lock()
	if _, busy := c.pending[b.Node]; busy {
		c.mu.Unlock()
		return
	}
	if owner, dup := c.seenText[key]; dup && owner != b.Node {
		c.mu.Unlock()
		// Same literal on another node: settle it without a second
		// backend call.
		c.cache.MarkDone(b.Node)
		c.tree.ClearMarkers(b.Node)
		return
	}
	c.seenText[key] = b.Node
	dark := c.opts.Dark
	c.mu.Unlock()

	if c.queue.Push(b) {
		marker := tree.MarkerPending
		if dark {
			marker = tree.MarkerPendingDark
		}
		c.tree.SetMarker(b.Node, marker)
	}
}

func (c *Controller) onBegin(sid string, b classify.Block) {
	c.mu.Lock()
	if c.state != StateActive || c.id != sid {
		c.mu.Unlock()
		return
	}
	c.pending[b.Node] = struct{}{}
	c.mu.Unlock()
	c.tree.SetMarker(b.Node, tree.MarkerTranslating)
}

// settlePending removes the node from the in-flight set and reports
// whether the result still belongs to a live activation.
func (c *Controller) settlePending(sid string, h tree.NodeHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id != sid {
		return false
	}
	delete(c.pending, h)
	return c.state == StateActive
}

func (c *Controller) onApply(sid string, b classify.Block, translation string) {
	if !c.settlePending(sid, b.Node) {
		// Result from a stopped or superseded session: discard, leave
		// the tree alone.
		c.tree.ClearMarkers(b.Node)
		return
	}
	outcome := c.applier.Apply(b, translation)
	if outcome != render.OutcomeApplied {
		return
	}

	c.mu.Lock()
	c.translatedCount++
	count := c.translatedCount
	every := c.opts.ProgressEvery
	c.mu.Unlock()

	if count%every == 0 {
		c.notify(Event{Type: EventProgress, Session: sid, Count: count})
	}
}

func (c *Controller) onFail(sid string, b classify.Block, err error) {
	if !c.settlePending(sid, b.Node) {
		c.tree.ClearMarkers(b.Node)
		return
	}
	if errors.Is(err, translate.ErrBackendDown) {
		c.tree.ClearMarkers(b.Node)
		c.log.WithField("session", sid).WithError(err).Error("backend unreachable, terminating session")
		c.notify(Event{
			Type:     EventError,
			Session:  sid,
			Category: translate.CategoryNetworkUnavailable,
			Message:  err.Error(),
			Terminal: true,
		})
		_ = c.Stop()
		return
	}

	// Transient failure: the block is settled as skipped so the
	// pipeline keeps progressing instead of stalling on it.
	c.cache.MarkDone(b.Node)
	c.tree.ClearMarkers(b.Node)
	cat := translate.Categorize(err)
	c.log.WithFields(logrus.Fields{"session": sid, "category": cat}).WithError(err).Warn("block skipped")
	c.notify(Event{Type: EventError, Session: sid, Category: cat, Message: err.Error()})
}

func (c *Controller) notify(e Event) {
	if c.opts.Notify != nil {
		c.opts.Notify(e)
	}
}

func textKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

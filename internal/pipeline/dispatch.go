package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"biline/internal/classify"
	"biline/internal/translate"
)

const (
	DefaultBatchSize  = 1
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	maxBackoff        = 30 * time.Second
)

// Options tune dispatch behavior. BatchSize 1 is the sliding-window
// mode: one block per call, lowest latency to first visible
// translation. Larger values pack several queued blocks into one call
// to cut request count; both modes share the queue and limiter.
type Options struct {
	BatchSize  int
	MaxRetries int
	BaseDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	return o
}

// Hooks connect the dispatcher to the session: Begin fires when a
// block leaves the queue, Apply on a successful translation, Fail on a
// terminal failure. Apply and Fail run on dispatcher goroutines; the
// session re-checks its own gates inside them.
type Hooks struct {
	Begin func(block classify.Block)
	Apply func(block classify.Block, translation string)
	Fail  func(block classify.Block, err error)
}

// Dispatcher pulls blocks off the queue and starts translation calls
// without awaiting their completion, keeping at most the limiter's
// bound in flight.
type Dispatcher struct {
	queue   *Queue
	limiter *Limiter
	client  translate.Client
	cfg     translate.Config
	opts    Options
	hooks   Hooks
	log     *logrus.Entry

	wake chan struct{}
	wg   sync.WaitGroup

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(q *Queue, l *Limiter, client translate.Client, cfg translate.Config, opts Options, hooks Hooks, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		queue:   q,
		limiter: l,
		client:  client,
		cfg:     cfg,
		opts:    opts.withDefaults(),
		hooks:   hooks,
		log:     log,
		wake:    make(chan struct{}, 1),
		sleep:   sleepCtx,
	}
}

// Wake nudges an idle loop after new blocks were enqueued.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Loop runs until ctx is canceled. It waits for a free concurrency
// slot, then pops up to BatchSize blocks and fires the call on its own
// goroutine, immediately continuing: a sliding window of concurrent
// translations. Acquiring before popping keeps blocks visible in the
// queue until a call can actually start.
func (d *Dispatcher) Loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := d.limiter.Acquire(ctx); err != nil {
			return
		}
		batch := d.queue.PopN(d.opts.BatchSize)
		if len(batch) == 0 {
			d.limiter.Release()
			select {
			case <-ctx.Done():
				return
			case <-d.wake:
			}
			continue
		}
		d.wg.Add(1)
		go func(batch []classify.Block) {
			defer d.wg.Done()
			defer d.limiter.Release()
			d.translateBatch(ctx, batch)
		}(batch)
	}
}

// Drain waits for in-flight calls to finish. Stop does not call this;
// in-flight results are discarded by the session gate instead.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

func (d *Dispatcher) translateBatch(ctx context.Context, batch []classify.Block) {
	texts := make([]string, len(batch))
	for i, b := range batch {
		texts[i] = b.Text
		if d.hooks.Begin != nil {
			d.hooks.Begin(b)
		}
	}

	out, err := d.translateWithRetry(ctx, texts)
	if err != nil {
		d.log.WithFields(logrus.Fields{
			"category": translate.Categorize(err),
			"blocks":   len(batch),
		}).Warn("translation failed")
		for _, b := range batch {
			if d.hooks.Fail != nil {
				d.hooks.Fail(b, err)
			}
		}
		return
	}
	if len(out) != len(batch) {
		err := translate.NewError(translate.CategoryUnknown, "translation count mismatch")
		for _, b := range batch {
			if d.hooks.Fail != nil {
				d.hooks.Fail(b, err)
			}
		}
		return
	}
	for i, b := range batch {
		if d.hooks.Apply != nil {
			d.hooks.Apply(b, out[i])
		}
	}
}

// translateWithRetry retries rate-limited failures with exponential
// backoff; every other category surfaces immediately. The network call
// itself is never hard-canceled by a session stop, only bounded by the
// configured timeout: cancellation stays cooperative.
func (d *Dispatcher) translateWithRetry(ctx context.Context, texts []string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, backoffDelay(d.opts.BaseDelay, attempt-1)); err != nil {
				return nil, lastErr
			}
		}

		callCtx := context.Background()
		var cancel context.CancelFunc = func() {}
		if d.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(callCtx, d.cfg.Timeout)
		}
		out, err := d.client.Translate(callCtx, texts, d.cfg)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !translate.Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	if delay+jitter > maxBackoff {
		return maxBackoff
	}
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

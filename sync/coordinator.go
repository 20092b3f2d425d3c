package sync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kvelle/parley/metrics"
	"github.com/kvelle/parley/sync/retry"
)

// State is the coordinator's externally visible phase.
type State int32

const (
	StateIdle State = iota
	StateSyncing
)

func (s State) String() string {
	if s == StateSyncing {
		return "syncing"
	}
	return "idle"
}

// Report summarizes one completed drain pass.
type Report struct {
	Succeeded int
	Failed    int
}

// Options tune a Coordinator.
type Options struct {
	// SettleDelay is applied after a raw online signal before draining, so
	// a flapping connection does not trigger repeated passes.
	SettleDelay time.Duration

	// AttemptTimeout bounds each individual network attempt during replay.
	// Zero means no bound.
	AttemptTimeout time.Duration

	// RetryConfig is the in-pass retry budget per item.
	RetryConfig *retry.Config

	// ReplayInterval, when positive, throttles consecutive replays so a
	// long queue does not burst the backend.
	ReplayInterval time.Duration
}

// Coordinator reconciles local and remote state around connectivity changes.
// Connectivity events arrive on a channel consumed by a single goroutine;
// an explicit in-flight flag (not the state enum) guards against overlapping
// drain passes.
type Coordinator struct {
	queue     *Queue
	transport Transport
	exporter  *metrics.Exporter
	opts      Options
	limiter   *rate.Limiter

	events chan bool

	online   atomic.Bool
	degraded atomic.Bool
	inFlight atomic.Bool
	rerun    atomic.Bool
	state    atomic.Int32

	// generation lets teardown or a superseding pass stop an in-flight
	// drain cleanly between items.
	generation atomic.Int64

	observerMu sync.RWMutex
	observer   func(Report)

	reportMu   sync.RWMutex
	lastReport *Report
}

// NewCoordinator creates a coordinator. The exporter may be nil when metrics
// are not wanted.
func NewCoordinator(queue *Queue, transport Transport, exporter *metrics.Exporter, opts Options) *Coordinator {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = time.Second
	}
	if opts.RetryConfig == nil {
		opts.RetryConfig = retry.DefaultConfig()
	}

	c := &Coordinator{
		queue:     queue,
		transport: transport,
		exporter:  exporter,
		opts:      opts,
		events:    make(chan bool, 16),
	}
	if opts.ReplayInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.ReplayInterval), 1)
	}
	return c
}

// Start hydrates queue state and launches the event loop. It returns once
// the loop is running; the loop exits when ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	pending, err := c.queue.List(ctx)
	if err != nil {
		// Degraded startup: the store is unusable, so run network-only.
		slog.Warn("pending queue unavailable, running network-only", "error", err)
		c.degraded.Store(true)
	} else {
		c.setQueueDepth(len(pending))
		slog.Info("sync coordinator started", "pending", len(pending))
	}

	go c.run(ctx)
	return nil
}

// Stop signals any in-flight drain pass to stop between items.
func (c *Coordinator) Stop() {
	c.generation.Add(1)
}

// SetOnline feeds a connectivity transition into the coordinator.
func (c *Coordinator) SetOnline(online bool) {
	c.online.Store(online)
	select {
	case c.events <- online:
	default:
		// The loop is behind; the latest flag value is already recorded
		// and a queued event will pick it up.
	}
}

// Online reports the current connectivity flag.
func (c *Coordinator) Online() bool {
	return c.online.Load()
}

// Degraded reports whether the coordinator is running network-only because
// the durable store is unavailable.
func (c *Coordinator) Degraded() bool {
	return c.degraded.Load()
}

func (c *Coordinator) setDegraded(degraded bool) {
	c.degraded.Store(degraded)
}

// State returns the coordinator's current phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// OnComplete registers the observer notified after every drain pass.
func (c *Coordinator) OnComplete(fn func(Report)) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.observer = fn
}

// LastReport returns the most recent drain pass report, if any.
func (c *Coordinator) LastReport() *Report {
	c.reportMu.RLock()
	defer c.reportMu.RUnlock()
	return c.lastReport
}

func (c *Coordinator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case online := <-c.events:
			if !online {
				continue
			}
			// Settle before draining so a flapping connection does not
			// trigger repeated passes.
			select {
			case <-ctx.Done():
				c.Stop()
				return
			case <-time.After(c.opts.SettleDelay):
			}
			if !c.online.Load() {
				continue
			}
			c.syncAndRerun(ctx)
		}
	}
}

func (c *Coordinator) syncAndRerun(ctx context.Context) {
	for {
		if _, err := c.Sync(ctx); err != nil {
			slog.Warn("drain pass aborted", "error", err)
			return
		}
		if !c.rerun.CompareAndSwap(true, false) {
			return
		}
		// An online signal arrived mid-pass; run once more to pick up
		// anything queued meanwhile.
	}
}

// Sync runs a single drain pass. A pass already in flight makes this call a
// no-op that requests a rerun instead; two passes never overlap.
func (c *Coordinator) Sync(ctx context.Context) (*Report, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.rerun.Store(true)
		return nil, nil
	}
	defer c.inFlight.Store(false)

	c.state.Store(int32(StateSyncing))
	defer c.state.Store(int32(StateIdle))

	report, err := c.drain(ctx, c.generation.Load())
	if err != nil {
		if c.exporter != nil {
			c.exporter.ObserveSyncPass("error")
		}
		return nil, err
	}

	c.reportMu.Lock()
	c.lastReport = report
	c.reportMu.Unlock()

	if c.exporter != nil {
		c.exporter.ObserveSyncPass("ok")
	}

	c.observerMu.RLock()
	observer := c.observer
	c.observerMu.RUnlock()
	if observer != nil {
		observer(*report)
	}

	slog.Info("drain pass complete", "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

// drain replays the queue oldest-first, strictly sequentially. One item's
// failure never aborts the pass; the pass stops early only when its
// generation is superseded or ctx is cancelled.
func (c *Coordinator) drain(ctx context.Context, generation int64) (*Report, error) {
	items, err := c.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	c.setQueueDepth(len(items))

	report := &Report{}
	remaining := len(items)

	for _, item := range items {
		if ctx.Err() != nil || generation != c.generation.Load() {
			break
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				break
			}
		}

		op := func(ctx context.Context) (*Response, error) {
			if c.opts.AttemptTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.opts.AttemptTimeout)
				defer cancel()
			}
			return c.transport.Execute(ctx, item.Method, item.URL, item.Headers, item.Body)
		}

		result, err := retry.Do(ctx, op, c.opts.RetryConfig)
		if c.exporter != nil {
			attempts := 1
			if result != nil {
				attempts = result.Attempts
			}
			c.exporter.ObserveRetryAttempts(attempts)
		}

		if err == nil {
			if removeErr := c.queue.Remove(ctx, item.ID); removeErr != nil {
				slog.Error("failed to remove replayed request", "id", item.ID, "error", removeErr)
				continue
			}
			report.Succeeded++
			remaining--
			c.observeReplay("succeeded")
			continue
		}

		updated, bumpErr := c.queue.BumpRetry(ctx, item)
		if bumpErr != nil {
			slog.Error("failed to bump retry count", "id", item.ID, "error", bumpErr)
			continue
		}

		if updated.RetryCount >= updated.MaxRetries {
			// Retry budget spent: evict and count as a permanent failure.
			if removeErr := c.queue.Remove(ctx, item.ID); removeErr != nil {
				slog.Error("failed to evict exhausted request", "id", item.ID, "error", removeErr)
				continue
			}
			report.Failed++
			remaining--
			c.observeReplay("failed")
			slog.Warn("pending request permanently failed", "id", item.ID, "method", item.Method, "url", item.URL, "error", err)
			continue
		}

		c.observeReplay("requeued")
		slog.Info("pending request left queued for a future pass", "id", item.ID, "retry_count", updated.RetryCount, "error", err)
	}

	c.setQueueDepth(remaining)
	return report, nil
}

func (c *Coordinator) observeReplay(outcome string) {
	if c.exporter != nil {
		c.exporter.ObserveReplay(outcome)
	}
}

func (c *Coordinator) setQueueDepth(depth int) {
	if c.exporter != nil {
		c.exporter.SetQueueDepth(depth)
	}
}

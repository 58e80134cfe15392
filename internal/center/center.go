// Package center orchestrates the campaign engine. Every decision runs on a
// single serial queue that owns the campaign list, the session counter and
// the JIT state, so a payload replacement never interleaves with a
// selection pass.
package center

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/inappserve/internal/campaigns"
	"github.com/patrickwarner/inappserve/internal/logic"
	"github.com/patrickwarner/inappserve/internal/models"
	"github.com/patrickwarner/inappserve/internal/observability"
)

type task func(ctx context.Context)

// Center is the entry point of the engine.
type Center struct {
	opts    Options
	deps    Dependencies
	manager *campaigns.Manager
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	tracer  trace.Tracer

	mu       sync.RWMutex // guards sends on queue against close
	queue    chan task
	started  bool
	stopped  bool
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	state          atomic.Int32
	jitOutstanding atomic.Int32
	lastTrace      atomic.Pointer[logic.SelectionTrace]

	listenersMu sync.Mutex
	listeners   []LoadedListener

	// owned by the queue
	sessionViews    int
	jitInFlight     bool
	jitBlockedUntil time.Time
}

// New builds a stopped center.
func New(opts Options, deps Dependencies) *Center {
	opts = opts.withDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.L()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNoOpRegistry()
	}
	if deps.Tracker == nil {
		deps.Tracker = models.NewInMemoryViewTracker(opts.CustomUserID)
	}
	return &Center{
		opts:     opts,
		deps:     deps,
		manager:  campaigns.NewManager(),
		logger:   deps.Logger.Named("center"),
		metrics:  deps.Metrics,
		tracer:   observability.Tracer("center"),
		queue:    make(chan task, opts.QueueSize),
		loopDone: make(chan struct{}),
	}
}

// Start launches the serial queue and loads the cached payload. It returns
// once the center is ready.
func (c *Center) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	go c.loop()

	return c.do(ctx, func(qctx context.Context) error {
		c.loadCache(qctx)
		c.state.Store(int32(StateCacheLoaded))
		c.state.Store(int32(StateReady))
		c.logger.Info("campaigns center ready", zap.Int("campaigns", c.manager.Len()))
		return nil
	})
}

// Stop drains the queue and stops the center. Pending JIT answers are
// dropped.
func (c *Center) Stop() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.queue)
	c.mu.Unlock()

	<-c.loopDone
	c.cancel()
}

func (c *Center) loop() {
	defer close(c.loopDone)
	for t := range c.queue {
		c.run(t)
	}
}

func (c *Center) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in center task", zap.Any("panic", r))
		}
	}()
	t(c.ctx)
}

// submit enqueues t. It must never be called from the queue itself.
func (c *Center) submit(t task) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started {
		return ErrNotStarted
	}
	if c.stopped {
		return ErrCenterStopped
	}
	c.queue <- t
	return nil
}

// do runs fn on the queue and waits for its result.
func (c *Center) do(ctx context.Context, fn func(qctx context.Context) error) error {
	errc := make(chan error, 1)
	if err := c.submit(func(qctx context.Context) { errc <- fn(qctx) }); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every queued task and every outstanding JIT request has
// been processed.
func (c *Center) Flush(ctx context.Context) error {
	noop := func(context.Context) error { return nil }
	if err := c.do(ctx, noop); err != nil {
		return err
	}
	for c.jitOutstanding.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return c.do(ctx, noop)
}

// State returns the lifecycle stage.
func (c *Center) State() State {
	return State(c.state.Load())
}

// Campaigns returns the loaded campaigns in payload order.
func (c *Center) Campaigns() []*models.Campaign {
	return c.manager.Campaigns()
}

// IsEventWatched reports whether a tracked event with name could trigger a
// campaign.
func (c *Center) IsEventWatched(name string) bool {
	return c.manager.IsEventWatched(name)
}

// LastTrace returns the trace of the latest selection pass when
// Options.DebugTrace is set.
func (c *Center) LastTrace() *logic.SelectionTrace {
	return c.lastTrace.Load()
}

// SessionViews returns the number of displays since the last session start.
func (c *Center) SessionViews(ctx context.Context) (int, error) {
	var n int
	err := c.do(ctx, func(context.Context) error {
		n = c.sessionViews
		return nil
	})
	return n, err
}

// AddLoadedListener registers fn. Listeners run in registration order.
func (c *Center) AddLoadedListener(fn LoadedListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Center) notifyLoaded(list []*models.Campaign) {
	c.listenersMu.Lock()
	listeners := make([]LoadedListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(list)
	}
}

func (c *Center) trackingAllowed() bool {
	return c.opts.TrackingAllowed()
}

func (c *Center) userAttributes(ctx context.Context) models.UserAttributes {
	if c.deps.Attributes == nil {
		return models.UserAttributes{}
	}
	attrs, err := c.deps.Attributes.UserAttributes(ctx)
	if err != nil {
		c.logger.Warn("user attributes unavailable, evaluating without them", zap.Error(err))
		return models.UserAttributes{}
	}
	return attrs
}

func (c *Center) resolveDevice(device models.DeviceInfo) models.DeviceInfo {
	if device.APILevel == 0 {
		device.APILevel = c.opts.APILevel
	}
	return device
}

func (c *Center) String() string {
	return fmt.Sprintf("center(%s, %d campaigns)", c.State(), c.manager.Len())
}

package correlation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/courier/internal/infrastructure/logging"
	"github.com/GriffinCanCode/courier/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

var (
	// ErrNotReady is returned by Next before the persisted counter is loaded.
	ErrNotReady = errors.New("correlation: allocator not initialized")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("correlation: allocator closed")
)

// Reconciler adjusts the counter loaded at startup.
type Reconciler func(loaded int64) int64

// SkipAhead returns a Reconciler that advances the loaded counter by gap, so
// ids minted but never flushed before a crash are not issued twice.
func SkipAhead(gap int64) Reconciler {
	return func(loaded int64) int64 {
		if gap <= 0 {
			return loaded
		}
		return loaded + gap
	}
}

// Option customises an Allocator.
type Option func(*Allocator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Allocator) { a.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(a *Allocator) { a.metrics = m }
}

// WithReconciler sets the startup reconciliation hook.
func WithReconciler(r Reconciler) Option {
	return func(a *Allocator) { a.reconcile = r }
}

// WithLoadRetry sets the backoff between attempts to load the persisted
// counter.
func WithLoadRetry(floor, ceiling time.Duration) Option {
	return func(a *Allocator) {
		a.retryFloor = floor
		a.retryCeiling = ceiling
	}
}

// WithPersistTimeout bounds each counter write.
func WithPersistTimeout(d time.Duration) Option {
	return func(a *Allocator) { a.persistTimeout = d }
}

// Allocator mints correlation ids from a durable counter.
type Allocator struct {
	store          CounterStore
	key            string
	logger         *zap.Logger
	metrics        *monitoring.Metrics
	reconcile      Reconciler
	persistTimeout time.Duration
	retryFloor     time.Duration
	retryCeiling   time.Duration

	initOnce sync.Once
	ready    chan struct{}

	mu          sync.Mutex
	counter     int64
	initialized bool
	closed      bool

	// persister state; persisted is owned by the persister goroutine
	dirty     chan struct{}
	stop      chan struct{}
	done      chan struct{}
	persisted int64
}

// NewAllocator creates an uninitialized Allocator for key in store.
func NewAllocator(store CounterStore, key string, opts ...Option) *Allocator {
	a := &Allocator{
		store:          store,
		key:            key,
		logger:         zap.NewNop(),
		persistTimeout: 5 * time.Second,
		retryFloor:     250 * time.Millisecond,
		retryCeiling:   10 * time.Second,
		ready:          make(chan struct{}),
		dirty:          make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.retryFloor <= 0 {
		a.retryFloor = 250 * time.Millisecond
	}
	if a.retryCeiling < a.retryFloor {
		a.retryCeiling = a.retryFloor
	}
	return a
}

// Initialize loads the persisted counter in the background. Later calls are
// no-ops. A failed load is retried with backoff; the allocator stays unready
// until a load succeeds, ctx is done or Close is called, so ids are never
// minted from an unknown baseline.
func (a *Allocator) Initialize(ctx context.Context) {
	a.initOnce.Do(func() {
		go a.load(ctx)
	})
}

func (a *Allocator) load(ctx context.Context) {
	delay := a.retryFloor
	for {
		loaded, found, err := a.store.Get(ctx, a.key)
		if err == nil {
			a.start(loaded, found)
			return
		}

		a.metrics.RecordLookupFailure("counter")
		a.logger.Error("failed to load correlation counter, retrying",
			zap.String("key", a.key),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			a.logger.Warn("gave up loading correlation counter", zap.Error(ctx.Err()))
			return
		case <-a.stop:
			timer.Stop()
			return
		}

		delay *= 2
		if delay > a.retryCeiling {
			delay = a.retryCeiling
		}
	}
}

func (a *Allocator) start(loaded int64, found bool) {
	switch {
	case !found:
		a.logger.Info("no persisted correlation counter, starting at zero", zap.String("key", a.key))
	case loaded < 0:
		a.logger.Warn("ignoring negative correlation counter", zap.Int64("value", loaded))
		loaded = 0
	}

	start := loaded
	if a.reconcile != nil {
		start = a.reconcile(loaded)
	}

	a.mu.Lock()
	a.counter = start
	a.persisted = loaded
	a.initialized = true
	closed := a.closed
	a.mu.Unlock()

	a.metrics.SetCounter(start)
	a.logger.Info("correlation counter loaded", zap.Int64("loaded", loaded), zap.Int64("start", start))

	if closed {
		close(a.done)
	} else {
		go a.persistLoop()
	}
	close(a.ready)
}

// Ready is closed once the counter has been loaded.
func (a *Allocator) Ready() <-chan struct{} {
	return a.ready
}

// Wait blocks until the counter is loaded or ctx is done.
func (a *Allocator) Wait(ctx context.Context) error {
	select {
	case <-a.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next mints the next correlation id and schedules it for persistence. It
// never waits on storage.
func (a *Allocator) Next() (int64, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return 0, ErrClosed
	}
	if !a.initialized {
		a.mu.Unlock()
		return 0, ErrNotReady
	}
	a.counter++
	id := a.counter
	a.mu.Unlock()

	select {
	case a.dirty <- struct{}{}:
	default:
		// a flush is already pending and will pick up this value
	}

	a.metrics.SetCounter(id)
	return id, nil
}

// Current returns the last issued id and whether the allocator is ready.
func (a *Allocator) Current() (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter, a.initialized
}

func (a *Allocator) persistLoop() {
	defer close(a.done)
	for {
		select {
		case <-a.dirty:
			a.flush()
		case <-a.stop:
			a.flush()
			return
		}
	}
}

func (a *Allocator) flush() {
	a.mu.Lock()
	value := a.counter
	a.mu.Unlock()

	if value <= a.persisted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.persistTimeout)
	defer cancel()

	if err := a.store.Set(ctx, a.key, value); err != nil {
		a.metrics.RecordPersistFailure()
		a.logger.Error("failed to persist correlation counter",
			zap.String("key", a.key),
			zap.Int64("value", value),
			zap.Error(err))
		return
	}
	a.persisted = value
}

// Close flushes the latest counter value and stops the background writer.
// It returns ctx.Err() if the final flush does not finish in time.
func (a *Allocator) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	initialized := a.initialized
	a.mu.Unlock()

	// also ends a pending load retry
	close(a.stop)
	if !initialized {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package ratelimit serializes outbound provider calls through per-provider FIFO
// queues bounded by sliding per-second and per-minute windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tournevent/tarif/internal/clock"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ErrClosed is returned when scheduling on a closed limiter.
var ErrClosed = errors.New("rate limiter closed")

const defaultQueueSize = 256

// Scheduler runs a task once the provider's windows allow it.
type Scheduler interface {
	Schedule(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Observer receives scheduling events, e.g. for metrics.
type Observer interface {
	ObserveWait(key string, d time.Duration)
	ObserveDispatch(key string, at time.Time)
	ObserveSkip(key string)
}

type nopObserver struct{}

func (nopObserver) ObserveWait(string, time.Duration) {}
func (nopObserver) ObserveDispatch(string, time.Time) {}
func (nopObserver) ObserveSkip(string)                {}

// Limiter owns one queue and one worker goroutine per provider key.
type Limiter struct {
	clock     clock.Clock
	logger    *otelzap.Logger
	observer  Observer
	defaults  Limits
	queueSize int

	mu     sync.Mutex
	limits map[string]Limits
	queues map[string]*queue
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source. Tests use clock.Fake.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithDefaultLimits sets limits for providers without an explicit entry.
func WithDefaultLimits(limits Limits) Option {
	return func(l *Limiter) { l.defaults = limits }
}

// WithLimits sets limits for one provider key.
func WithLimits(key string, limits Limits) Option {
	return func(l *Limiter) { l.limits[key] = limits }
}

// WithLogger sets the logger.
func WithLogger(logger *otelzap.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithObserver sets the scheduling event observer.
func WithObserver(o Observer) Option {
	return func(l *Limiter) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithQueueSize bounds the number of queued tasks per provider before submitters block.
func WithQueueSize(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.queueSize = n
		}
	}
}

// New creates a limiter. Workers start lazily on first use of a key.
func New(opts ...Option) *Limiter {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Limiter{
		clock:     clock.NewSystem(),
		observer:  nopObserver{},
		defaults:  DefaultLimits(),
		queueSize: defaultQueueSize,
		limits:    make(map[string]Limits),
		queues:    make(map[string]*queue),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = otelzap.New(zap.NewNop())
	}
	return l
}

const (
	statePending int32 = iota
	stateDispatched
	stateAbandoned
)

type task struct {
	ctx   context.Context
	fn    func(context.Context) error
	done  chan error
	state atomic.Int32
}

type queue struct {
	key    string
	window *Window
	tasks  chan *task
}

// Schedule queues fn behind earlier calls for the same key and blocks until fn has
// run or ctx is done. If ctx ends before fn is dispatched, fn never runs, no
// rate-limit slot is consumed, and the returned error wraps tariff.ErrRateLimitTimeout.
// Errors returned by fn are passed through unchanged.
func (l *Limiter) Schedule(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return timeoutError(key, err)
	}

	q, err := l.queue(key)
	if err != nil {
		return err
	}

	t := &task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return timeoutError(key, ctx.Err())
	case <-l.ctx.Done():
		return ErrClosed
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		if t.state.CompareAndSwap(statePending, stateAbandoned) {
			return timeoutError(key, ctx.Err())
		}
		// Already dispatched: fn sees the same ctx and returns promptly.
		return <-t.done
	case <-l.ctx.Done():
		if t.state.CompareAndSwap(statePending, stateAbandoned) {
			return ErrClosed
		}
		return <-t.done
	}
}

// Do schedules fn and returns its value.
func Do[T any](ctx context.Context, s Scheduler, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := s.Schedule(ctx, key, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Limits returns the limits applied to key.
func (l *Limiter) Limits(key string) Limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitsLocked(key)
}

// Close stops all workers. Queued tasks that were not dispatched fail with ErrClosed.
func (l *Limiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}

func (l *Limiter) limitsLocked(key string) Limits {
	if lim, ok := l.limits[key]; ok {
		return lim
	}
	return l.defaults
}

func (l *Limiter) queue(key string) (*queue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if q, ok := l.queues[key]; ok {
		return q, nil
	}

	q := &queue{
		key:    key,
		window: NewWindow(l.limitsLocked(key)),
		tasks:  make(chan *task, l.queueSize),
	}
	l.queues[key] = q

	l.wg.Add(1)
	go l.work(q)
	return q, nil
}

// work is the single consumer of q; it alone touches q.window.
func (l *Limiter) work(q *queue) {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			l.drain(q)
			return
		case t := <-q.tasks:
			l.process(q, t)
		}
	}
}

func (l *Limiter) process(q *queue, t *task) {
	for {
		if err := t.ctx.Err(); err != nil {
			l.skip(q, t, err)
			return
		}
		if t.state.Load() == stateAbandoned {
			l.observer.ObserveSkip(q.key)
			return
		}

		wait := q.window.Wait(l.clock.Now())
		if wait <= 0 {
			break
		}

		l.observer.ObserveWait(q.key, wait)
		l.logger.Debug("Rate limit window full, waiting",
			zap.String("provider", q.key),
			zap.Duration("wait", wait),
		)

		if err := l.sleep(t.ctx, wait); err != nil {
			if l.ctx.Err() != nil {
				t.done <- ErrClosed
				return
			}
			l.skip(q, t, err)
			return
		}
	}

	if !t.state.CompareAndSwap(statePending, stateDispatched) {
		l.observer.ObserveSkip(q.key)
		return
	}

	now := l.clock.Now()
	q.window.Record(now)
	l.observer.ObserveDispatch(q.key, now)

	go func() {
		t.done <- t.fn(t.ctx)
	}()
}

// sleep waits on the task's context and the limiter's lifetime.
func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.ctx, cancel)
	defer stop()
	return l.clock.Sleep(ctx, d)
}

func (l *Limiter) skip(q *queue, t *task, cause error) {
	if t.state.CompareAndSwap(statePending, stateAbandoned) {
		t.done <- timeoutError(q.key, cause)
	}
	l.observer.ObserveSkip(q.key)
	l.logger.Debug("Dropped cancelled task from rate limit queue",
		zap.String("provider", q.key),
		zap.Error(cause),
	)
}

func (l *Limiter) drain(q *queue) {
	for {
		select {
		case t := <-q.tasks:
			if t.state.CompareAndSwap(statePending, stateAbandoned) {
				t.done <- ErrClosed
			}
		default:
			return
		}
	}
}

func timeoutError(key string, cause error) error {
	return fmt.Errorf("%w: %s: %w", tariff.ErrRateLimitTimeout, key, cause)
}

// Passthrough runs every task immediately. Tests use it when pacing is not under test.
type Passthrough struct{}

func (Passthrough) Schedule(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return timeoutError("passthrough", err)
	}
	return fn(ctx)
}

var (
	_ Scheduler = (*Limiter)(nil)
	_ Scheduler = Passthrough{}
)

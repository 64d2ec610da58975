// Package selector decides whether resolution calls may use live providers,
// switching to degraded service when a provider becomes unavailable.
package selector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tournevent/tarif/internal/clock"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Source is the controller state.
type Source string

const (
	SourceProbing  Source = "probing"
	SourceLive     Source = "live"
	SourceDegraded Source = "degraded"
)

// Mode is the externally visible state.
type Mode struct {
	Source      Source    `json:"source"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Invalidator drops cached data after a successful reload.
type Invalidator interface {
	InvalidateAll()
}

// Controller is the probing/live/degraded state machine. Transitions happen
// only in response to calls; nothing runs in the background.
type Controller struct {
	clock        clock.Clock
	logger       *otelzap.Logger
	caches       Invalidator
	reprobeAfter time.Duration
	onTransition func(from, to Source)

	mu        sync.Mutex
	source    Source
	updated   time.Time
	lastProbe time.Time
	probing   bool // a degraded re-probe is in flight
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Controller) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *otelzap.Logger) Option {
	return func(s *Controller) { s.logger = l }
}

// WithCaches sets what a successful reload invalidates.
func WithCaches(inv Invalidator) Option {
	return func(s *Controller) { s.caches = inv }
}

// WithReprobeAfter lets one call through to the live providers once d has
// passed since the last probe while degraded. Zero disables it.
func WithReprobeAfter(d time.Duration) Option {
	return func(s *Controller) { s.reprobeAfter = d }
}

// WithTransitionHook is called, outside the lock, on every state change.
func WithTransitionHook(fn func(from, to Source)) Option {
	return func(s *Controller) { s.onTransition = fn }
}

// New creates a controller in the probing state: the first call is the probe.
func New(opts ...Option) *Controller {
	c := &Controller{
		clock:  clock.NewSystem(),
		source: SourceProbing,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = otelzap.New(zap.NewNop())
	}
	c.updated = c.clock.Now()
	return c
}

// Mode returns the current state.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Mode{Source: c.source, LastUpdated: c.updated}
}

// Attempt reports whether the caller may go to a live provider. While
// degraded it is false, except for a single re-probe once the reprobe
// interval has passed.
func (c *Controller) Attempt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != SourceDegraded {
		return true
	}
	if c.reprobeAfter <= 0 || c.probing {
		return false
	}
	if c.clock.Now().Sub(c.lastProbe) < c.reprobeAfter {
		return false
	}
	c.probing = true
	c.lastProbe = c.clock.Now()
	return true
}

// Observe records the outcome of a live call. Success moves to live; an
// ErrProviderUnavailable moves to degraded. Other errors (caller timeouts,
// unknown destinations) say nothing about provider health and are ignored.
func (c *Controller) Observe(err error) {
	switch {
	case err == nil:
		c.transition(SourceLive, nil)
	case errors.Is(err, tariff.ErrProviderUnavailable):
		c.transition(SourceDegraded, err)
	default:
		c.mu.Lock()
		c.probing = false
		c.mu.Unlock()
	}
}

// ForceReload re-enters probing and runs probe once. On success all caches are
// invalidated and the controller goes live; on failure it is degraded.
func (c *Controller) ForceReload(ctx context.Context, probe func(ctx context.Context) error) error {
	c.transition(SourceProbing, nil)

	err := probe(ctx)
	if err != nil {
		c.transition(SourceDegraded, err)
		return err
	}

	if c.caches != nil {
		c.caches.InvalidateAll()
	}
	c.transition(SourceLive, nil)
	return nil
}

func (c *Controller) transition(to Source, cause error) {
	now := c.clock.Now()

	c.mu.Lock()
	from := c.source
	c.source = to
	c.probing = false
	if to == SourceLive || from != to {
		c.updated = now
	}
	if to == SourceDegraded && from != SourceDegraded {
		c.lastProbe = now
	}
	c.mu.Unlock()

	if from == to {
		return
	}

	fields := []zap.Field{zap.String("from", string(from)), zap.String("to", string(to))}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	if to == SourceDegraded {
		c.logger.Warn("Tariff source degraded", fields...)
	} else {
		c.logger.Info("Tariff source changed", fields...)
	}
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

package quote

import (
	"context"
	"errors"

	"github.com/tournevent/tarif/internal/cache"
	"github.com/tournevent/tarif/pkg/tariff"
	"go.uber.org/zap"
)

// source describes one kind of data and how to get it from a provider.
type source[T any] struct {
	category cache.Category
	cache    *cache.TTLCache[T]
	key      string
	op       string
	call     func(ctx context.Context, p tariff.Provider) (T, error)
	// covers reports whether a provider's answer is usable; otherwise the next
	// provider is asked.
	covers func(T) bool
}

// fetch returns data in order of preference: fresh cache, live providers
// (unless degraded), stale cache, snapshot, static dataset.
func fetch[T any](ctx context.Context, s *Service, src source[T]) (T, tariff.DataSource, error) {
	var zero T
	category := string(src.category)

	if v, ok := src.cache.Get(src.key); ok {
		s.observer.ObserveCache(category, true)
		return v, tariff.SourceCache, nil
	}
	s.observer.ObserveCache(category, false)

	if s.selector.Attempt() {
		v, err := liveChain(ctx, s, src.op, src.call, src.covers)
		if ctx.Err() != nil {
			return zero, "", callerError(ctx, err)
		}
		s.selector.Observe(err)
		switch {
		case err == nil:
			src.cache.Set(src.key, v)
			s.saveSnapshot(ctx, src.category, src.key, v)
			return v, tariff.SourceLive, nil
		case !errors.Is(err, tariff.ErrProviderUnavailable):
			return zero, "", err
		}
	}

	if e, ok := src.cache.GetStale(src.key); ok {
		s.logger.Ctx(ctx).Debug("Serving stale data",
			zap.String("key", src.key),
			zap.Time("fetched_at", e.FetchedAt),
		)
		return e.Data, tariff.SourceStale, nil
	}

	var snap T
	found, err := s.snapshot.Load(ctx, snapshotKey(src.category, src.key), &snap)
	if err != nil {
		s.logger.Ctx(ctx).Warn("Snapshot read failed", zap.String("key", src.key), zap.Error(err))
	}
	if found {
		return snap, tariff.SourceStale, nil
	}

	v, err := src.call(ctx, s.fallback)
	if err != nil {
		return zero, "", err
	}
	return v, tariff.SourceStatic, nil
}

// callerError reports why a call ended once the caller's context is done. A
// task that expired in the rate limiter queue keeps its ErrRateLimitTimeout.
func callerError(ctx context.Context, err error) error {
	if errors.Is(err, tariff.ErrRateLimitTimeout) {
		return err
	}
	return ctx.Err()
}

// liveChain asks each registered provider in priority order. Unavailable
// providers and answers that do not cover the request move on to the next
// one; any other error stops the chain.
func liveChain[T any](
	ctx context.Context,
	s *Service,
	op string,
	call func(ctx context.Context, p tariff.Provider) (T, error),
	covers func(T) bool,
) (T, error) {
	var (
		zero      T
		uncovered *T
		errs      []error
	)
	for _, p := range s.registry.All() {
		v, err := call(ctx, p)
		s.observer.ObserveProviderCall(p.Name(), op, err)
		if err == nil {
			if covers == nil || covers(v) {
				return v, nil
			}
			if uncovered == nil {
				uncovered = &v
			}
			continue
		}
		if !errors.Is(err, tariff.ErrProviderUnavailable) {
			return zero, err
		}
		s.logger.Ctx(ctx).Warn("Provider unavailable",
			zap.String("provider", p.Name()),
			zap.String("operation", op),
			zap.Error(err),
		)
		errs = append(errs, err)
	}

	if uncovered != nil {
		return *uncovered, nil
	}
	if len(errs) == 0 {
		return zero, tariff.NewProviderError("registry", tariff.CodeUnsupported, "no providers registered")
	}
	return zero, errors.Join(errs...)
}

func (s *Service) saveSnapshot(ctx context.Context, category cache.Category, key string, v any) {
	if err := s.snapshot.Save(ctx, snapshotKey(category, key), v); err != nil {
		s.logger.Ctx(ctx).Warn("Snapshot write failed", zap.String("key", key), zap.Error(err))
	}
}

func snapshotKey(category cache.Category, key string) string {
	return string(category) + ":" + key
}

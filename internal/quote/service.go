// Package quote resolves destinations and prices shipments, choosing between
// live providers, cached data and the bundled static dataset.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/tarif/internal/cache"
	"github.com/tournevent/tarif/internal/clock"
	"github.com/tournevent/tarif/internal/pricing"
	"github.com/tournevent/tarif/internal/selector"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/tournevent/tarif/pkg/tariff/static"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/tournevent/tarif/internal/quote"

// Observer receives resolution events for metrics.
type Observer interface {
	ObserveQuote(source, provider string)
	ObserveCache(category string, hit bool)
	ObserveProviderCall(provider, operation string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveQuote(string, string)               {}
func (nopObserver) ObserveCache(string, bool)                 {}
func (nopObserver) ObserveProviderCall(string, string, error) {}

// ModeReport is the selector state plus the outcome of the last probe.
type ModeReport struct {
	selector.Mode
	// Providers maps provider name to "ok" or the probe error.
	Providers map[string]string `json:"providers,omitempty"`
}

// Service is the resolution engine.
type Service struct {
	registry  *tariff.Registry
	fallback  tariff.Provider
	selector  *selector.Controller
	policy    pricing.Source
	snapshot  cache.Snapshot
	clock     clock.Clock
	logger    *otelzap.Logger
	tracer    trace.Tracer
	observer  Observer
	origin    int
	retryHome bool

	ttls         cache.TTLs
	reprobeAfter time.Duration
	onTransition func(from, to selector.Source)

	provinces *cache.TTLCache[[]tariff.Province]
	communes  *cache.TTLCache[[]tariff.Commune]
	fees      *cache.TTLCache[*tariff.TariffTable]
	searches  *cache.TTLCache[[]tariff.CommuneMatch]
	caches    cache.Group

	probeMu sync.RWMutex
	probes  map[string]string
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for caches, the selector and quote timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *otelzap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithSnapshot sets the last-known-good store consulted in degraded mode.
func WithSnapshot(snap cache.Snapshot) Option {
	return func(s *Service) { s.snapshot = snap }
}

// WithFallback replaces the bundled static dataset.
func WithFallback(p tariff.Provider) Option {
	return func(s *Service) { s.fallback = p }
}

// WithPolicy sets the pricing policy source.
func WithPolicy(src pricing.Source) Option {
	return func(s *Service) { s.policy = src }
}

// WithOrigin sets the province parcels ship from.
func WithOrigin(provinceCode int) Option {
	return func(s *Service) { s.origin = provinceCode }
}

// WithTTLs sets per-category cache lifetimes.
func WithTTLs(ttls cache.TTLs) Option {
	return func(s *Service) { s.ttls = ttls }
}

// WithReprobeAfter lets a degraded service try a live provider again after d.
func WithReprobeAfter(d time.Duration) Option {
	return func(s *Service) { s.reprobeAfter = d }
}

// WithTransitionHook is called on every selector state change.
func WithTransitionHook(fn func(from, to selector.Source)) Option {
	return func(s *Service) { s.onTransition = fn }
}

// WithRetryHomeOnOfficeUnavailable prices an office request as home delivery
// when the destination has no counter, instead of failing.
func WithRetryHomeOnOfficeUnavailable(enabled bool) Option {
	return func(s *Service) { s.retryHome = enabled }
}

// New creates a Service over the providers in registry.
func New(registry *tariff.Registry, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		snapshot: cache.NopSnapshot{},
		clock:    clock.NewSystem(),
		policy:   pricing.Fixed(pricing.DefaultPolicy()),
		observer: nopObserver{},
		origin:   16,
		ttls:     cache.DefaultTTLs(),
		probes:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = otelzap.New(zap.NewNop())
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	if s.fallback == nil {
		s.fallback = static.New()
	}

	s.provinces = cache.NewTTLCache[[]tariff.Province](s.ttls.Reference, s.clock)
	s.communes = cache.NewTTLCache[[]tariff.Commune](s.ttls.Reference, s.clock)
	s.fees = cache.NewTTLCache[*tariff.TariffTable](s.ttls.Fees, s.clock)
	s.searches = cache.NewTTLCache[[]tariff.CommuneMatch](s.ttls.Search, s.clock)
	s.caches.Add(s.provinces, s.communes, s.fees, s.searches)

	s.selector = selector.New(
		selector.WithClock(s.clock),
		selector.WithLogger(s.logger),
		selector.WithCaches(&s.caches),
		selector.WithReprobeAfter(s.reprobeAfter),
		selector.WithTransitionHook(s.onTransition),
	)
	return s
}

// Mode returns the selector state and the per-provider outcome of the last reload.
func (s *Service) Mode() ModeReport {
	s.probeMu.RLock()
	defer s.probeMu.RUnlock()
	report := ModeReport{Mode: s.selector.Mode()}
	if len(s.probes) > 0 {
		report.Providers = make(map[string]string, len(s.probes))
		for name, status := range s.probes {
			report.Providers[name] = status
		}
	}
	return report
}

// InvalidateAll drops every cached entry. Record-store writes call it.
func (s *Service) InvalidateAll() {
	s.caches.InvalidateAll()
}

// StartJanitor sweeps entries older than maxAge from every cache each interval
// until ctx is done.
func (s *Service) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	s.provinces.StartJanitor(ctx, interval, maxAge)
	s.communes.StartJanitor(ctx, interval, maxAge)
	s.fees.StartJanitor(ctx, interval, maxAge)
	s.searches.StartJanitor(ctx, interval, maxAge)
}

// ForceReload probes every provider once. If any answers, caches are dropped
// and the service goes live; otherwise it is degraded.
func (s *Service) ForceReload(ctx context.Context) (ModeReport, error) {
	ctx, span := s.tracer.Start(ctx, "quote.ForceReload")
	defer span.End()

	err := s.selector.ForceReload(ctx, func(ctx context.Context) error {
		results := s.registry.ProbeAll(ctx)
		s.recordProbes(results)

		var errs []error
		for name, err := range results {
			s.observer.ObserveProviderCall(name, "probe", err)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return tariff.NewProviderError("registry", tariff.CodeUnsupported, "no providers registered")
		}
		return errors.Join(errs...)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		s.logger.Ctx(ctx).Warn("Force reload failed", zap.Error(err))
		return s.Mode(), err
	}
	s.logger.Ctx(ctx).Info("Force reload succeeded")
	return s.Mode(), nil
}

func (s *Service) recordProbes(results map[string]error) {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	s.probes = make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			s.probes[name] = err.Error()
			continue
		}
		s.probes[name] = "ok"
	}
}

// Warm loads the reference lists so the first quote does not pay for them.
func (s *Service) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, _, err := s.Provinces(ctx)
		return err
	})
	g.Go(func() error {
		_, _, err := s.listCommunes(ctx, 0)
		return err
	})
	return g.Wait()
}

// Provinces returns the province list and where it came from.
func (s *Service) Provinces(ctx context.Context) ([]tariff.Province, tariff.DataSource, error) {
	return fetch(ctx, s, source[[]tariff.Province]{
		category: cache.CategoryReference,
		cache:    s.provinces,
		key:      "provinces",
		op:       "list_provinces",
		call: func(ctx context.Context, p tariff.Provider) ([]tariff.Province, error) {
			return p.ListProvinces(ctx)
		},
		covers: func(v []tariff.Province) bool { return len(v) > 0 },
	})
}

func (s *Service) listCommunes(ctx context.Context, provinceCode int) ([]tariff.Commune, tariff.DataSource, error) {
	return fetch(ctx, s, source[[]tariff.Commune]{
		category: cache.CategoryReference,
		cache:    s.communes,
		key:      cache.Key("communes", strconv.Itoa(provinceCode)),
		op:       "list_communes",
		call: func(ctx context.Context, p tariff.Provider) ([]tariff.Commune, error) {
			return p.ListCommunes(ctx, provinceCode)
		},
		covers: func(v []tariff.Commune) bool { return len(v) > 0 },
	})
}

func (s *Service) feeTable(ctx context.Context, toProvince int) (*tariff.TariffTable, tariff.DataSource, error) {
	return fetch(ctx, s, source[*tariff.TariffTable]{
		category: cache.CategoryFees,
		cache:    s.fees,
		key:      cache.Key("fees", strconv.Itoa(s.origin), strconv.Itoa(toProvince)),
		op:       "get_fee",
		call: func(ctx context.Context, p tariff.Provider) (*tariff.TariffTable, error) {
			return p.GetFee(ctx, s.origin, toProvince)
		},
		covers: func(t *tariff.TariffTable) bool {
			return t != nil && (t.Default != nil || len(t.PerCommune) > 0)
		},
	})
}

// SearchCommune returns communes matching term, exact matches first.
func (s *Service) SearchCommune(ctx context.Context, term string) ([]tariff.CommuneMatch, error) {
	ctx, span := s.tracer.Start(ctx, "quote.SearchCommune")
	defer span.End()

	normalized := tariff.NormalizeName(term)
	if normalized == "" {
		return nil, nil
	}
	key := cache.Key("search", normalized)
	if v, ok := s.searches.Get(key); ok {
		s.observer.ObserveCache(string(cache.CategorySearch), true)
		return v, nil
	}
	s.observer.ObserveCache(string(cache.CategorySearch), false)

	if s.selector.Attempt() {
		matches, err := liveChain(ctx, s, "search_commune", func(ctx context.Context, p tariff.Provider) ([]tariff.CommuneMatch, error) {
			return p.SearchCommune(ctx, term)
		}, func(v []tariff.CommuneMatch) bool { return len(v) > 0 })
		if ctx.Err() != nil {
			return nil, callerError(ctx, err)
		}
		s.selector.Observe(err)
		switch {
		case err == nil:
			s.searches.Set(key, matches)
			return matches, nil
		case !errors.Is(err, tariff.ErrProviderUnavailable):
			return nil, err
		}
	}

	provinces, _, err := s.Provinces(ctx)
	if err != nil {
		return nil, err
	}
	communes, _, err := s.listCommunes(ctx, 0)
	if err != nil {
		return nil, err
	}
	return tariff.MatchCommunes(communes, tariff.ProvinceIndex(provinces), term), nil
}

type target struct {
	province tariff.Province
	commune  *tariff.Commune
	name     string
}

// ResolvePrice resolves dest, fetches its tariff and prices req.
func (s *Service) ResolvePrice(ctx context.Context, dest tariff.Destination, req tariff.ShipmentRequest) (*tariff.PriceBreakdown, error) {
	ctx, span := s.tracer.Start(ctx, "quote.ResolvePrice")
	defer span.End()

	breakdown, err := s.resolvePrice(ctx, dest, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("quote.source", string(breakdown.DataSource)),
		attribute.String("quote.provider", breakdown.Provider),
		attribute.Int("quote.province", breakdown.ProvinceCode),
	)
	return breakdown, nil
}

func (s *Service) resolvePrice(ctx context.Context, dest tariff.Destination, req tariff.ShipmentRequest) (*tariff.PriceBreakdown, error) {
	if err := pricing.Validate(req); err != nil {
		return nil, err
	}

	tgt, err := s.resolveDestination(ctx, dest)
	if err != nil {
		return nil, err
	}

	table, src, err := s.feeTable(ctx, tgt.province.Code)
	if err != nil {
		return nil, err
	}

	rec, err := record(table, tgt)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Current()
	mode := req.Mode
	result, err := pricing.Calculate(rec, req, policy)
	if errors.Is(err, tariff.ErrDeliveryModeUnavailable) && s.retryHome {
		s.logger.Ctx(ctx).Info("No counter service, pricing home delivery",
			zap.Int("province", tgt.province.Code),
			zap.String("commune", tgt.name),
		)
		req.Mode = tariff.DeliveryHome
		result, err = pricing.Calculate(rec, req, policy)
	}
	if err != nil {
		return nil, err
	}

	provider := table.Provider
	if provider == "" {
		provider = s.fallback.Name()
	}
	s.observer.ObserveQuote(string(src), provider)

	return &tariff.PriceBreakdown{
		QuoteID:            uuid.NewString(),
		BasePrice:          result.BasePrice,
		OverweightCharge:   result.OverweightCharge,
		CODFee:             result.CODFee,
		Total:              result.Total,
		Mode:               req.Mode,
		ModeFallback:       req.Mode != mode,
		BillableWeightKg:   result.BillableWeightKg,
		VolumetricWeightKg: result.VolumetricWeightKg,
		Zone:               result.Zone,
		DataSource:         src,
		Provider:           provider,
		ProvinceCode:       tgt.province.Code,
		ProvinceName:       tgt.province.Name,
		Commune:            tgt.name,
		ComputedAt:         s.clock.Now(),
	}, nil
}

// record picks the commune's record, or the province default, and applies
// what the commune list knows about counter service.
func record(table *tariff.TariffTable, tgt target) (tariff.TariffRecord, error) {
	rec, ok := table.Lookup(tgt.name)
	if !ok && tgt.commune != nil && tgt.commune.Tariff != nil {
		rec = tariff.TariffRecord{
			HomePrice:   tgt.commune.Tariff.HomePrice,
			OfficePrice: tgt.commune.Tariff.OfficePrice,
		}
		ok = true
	}
	if !ok {
		return tariff.TariffRecord{}, fmt.Errorf("%w: no tariff for %s (%d)", tariff.ErrDestinationNotFound, tgt.name, tgt.province.Code)
	}

	if rec.Zone == 0 {
		rec.Zone = table.Zone
	}
	if rec.Zone == 0 {
		rec.Zone = tgt.province.Zone
	}
	if tgt.commune != nil && !tgt.commune.HasCounterDelivery {
		rec.OfficePrice = nil
	}
	return rec, nil
}

func (s *Service) resolveDestination(ctx context.Context, dest tariff.Destination) (target, error) {
	provinces, src, err := s.Provinces(ctx)
	if err != nil {
		return target{}, err
	}
	index := tariff.ProvinceIndex(provinces)

	if dest.Structured() {
		province, ok := index[dest.ProvinceCode]
		if !ok {
			return target{}, fmt.Errorf("%w: province %d", tariff.ErrDestinationNotFound, dest.ProvinceCode)
		}
		return s.resolveInProvince(ctx, province, dest.CommuneName, src)
	}

	query := strings.TrimSpace(dest.Query)
	if query == "" {
		return target{}, fmt.Errorf("%w: empty destination", tariff.ErrDestinationNotFound)
	}

	if i := strings.LastIndex(query, ","); i >= 0 {
		commune, wilaya := strings.TrimSpace(query[:i]), strings.TrimSpace(query[i+1:])
		province, ok := tariff.FindProvince(provinces, wilaya)
		if !ok {
			return target{}, fmt.Errorf("%w: %q", tariff.ErrDestinationNotFound, query)
		}
		return s.resolveInProvince(ctx, province, commune, src)
	}

	communes, _, err := s.listCommunes(ctx, 0)
	if err != nil {
		return target{}, err
	}
	matches := tariff.MatchCommunes(communes, index, query)
	if len(matches) == 0 {
		return target{}, fmt.Errorf("%w: %q", tariff.ErrDestinationNotFound, query)
	}
	best := matches[0].Commune
	province, ok := index[best.ProvinceCode]
	if !ok {
		return target{}, fmt.Errorf("%w: %q", tariff.ErrDestinationNotFound, query)
	}
	return targetFor(province, best)
}

// resolveInProvince matches name among the province's communes. An empty name
// prices the province default. Static data only lists a few communes per
// province, so there an unknown name is priced at province level too.
func (s *Service) resolveInProvince(ctx context.Context, province tariff.Province, name string, src tariff.DataSource) (target, error) {
	if strings.TrimSpace(name) == "" {
		return target{province: province}, nil
	}

	communes, communeSrc, err := s.listCommunes(ctx, province.Code)
	if err != nil {
		return target{}, err
	}
	matches := tariff.MatchCommunes(communes, map[int]tariff.Province{province.Code: province}, name)
	if len(matches) > 0 {
		return targetFor(province, matches[0].Commune)
	}
	if src == tariff.SourceStatic || communeSrc == tariff.SourceStatic {
		return target{province: province, name: strings.TrimSpace(name)}, nil
	}
	return target{}, fmt.Errorf("%w: %s, %s", tariff.ErrDestinationNotFound, name, province.Name)
}

func targetFor(province tariff.Province, c tariff.Commune) (target, error) {
	if !c.IsDeliverable {
		return target{}, fmt.Errorf("%w: %s is not served", tariff.ErrDestinationNotFound, c.Name)
	}
	return target{province: province, commune: &c, name: c.Name}, nil
}

package main

import (
	"context"
	"fmt"

	"github.com/tournevent/tarif/internal/cache"
	"github.com/tournevent/tarif/internal/config"
	"github.com/tournevent/tarif/internal/quote"
	"github.com/tournevent/tarif/internal/ratelimit"
	"github.com/tournevent/tarif/internal/telemetry"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/tournevent/tarif/pkg/tariff/recordstore"
	"github.com/tournevent/tarif/pkg/tariff/yalidine"
	"github.com/tournevent/tarif/pkg/tariff/zrexpress"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// app is the wired engine shared by every command.
type app struct {
	cfg      *config.Config
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	limiter  *ratelimit.Limiter
	registry *tariff.Registry
	records  *recordstore.Provider
	service  *quote.Service
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel,
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.Version),
	)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
}

func initLimiter(cfg *config.Config, metrics *telemetry.Metrics, logger *otelzap.Logger) *ratelimit.Limiter {
	return ratelimit.New(
		ratelimit.WithLogger(logger),
		ratelimit.WithObserver(metrics),
		ratelimit.WithLimits(yalidine.ProviderName, cfg.YalidineLimits()),
		ratelimit.WithLimits(zrexpress.ProviderName, cfg.ZRExpressLimits()),
		ratelimit.WithLimits(recordstore.ProviderName, cfg.RecordStoreLimits()),
	)
}

// initProviderRegistry registers the enabled providers in priority order: the
// carrier APIs first, then the operator-maintained record store.
func initProviderRegistry(ctx context.Context, a *app, tracer trace.Tracer) (*recordstore.Provider, error) {
	cfg := a.cfg
	registry := tariff.NewRegistry()

	if cfg.YalidineEnabled {
		registry.Register(yalidine.New(yalidine.Config{
			APIID:    cfg.YalidineAPIID,
			APIToken: cfg.YalidineAPIToken,
			BaseURL:  cfg.YalidineBaseURL,
			UseMock:  cfg.YalidineUseMock,
		}, a.limiter, a.logger, tracer))
	}

	if cfg.ZRExpressEnabled {
		registry.Register(zrexpress.New(zrexpress.Config{
			Token:      cfg.ZRExpressToken,
			Key:        cfg.ZRExpressKey,
			BaseURL:    cfg.ZRExpressBaseURL,
			UseMock:    cfg.ZRExpressUseMock,
			Surcharges: cfg.ZRExpressSurcharges(),
		}, a.limiter, a.logger, tracer))
	}

	var records *recordstore.Provider
	if cfg.DatabaseURL != "" {
		store, err := recordstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("record store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("record store schema: %w", err)
		}
		records = recordstore.NewProvider(store, a.limiter, a.logger)
		registry.Register(records)
	}

	a.registry = registry
	a.logger.Info("Providers registered", zap.Strings("providers", registry.Names()))
	return records, nil
}

func initSnapshot(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (cache.Snapshot, func()) {
	if cfg.RedisAddr == "" {
		return cache.NopSnapshot{}, func() {}
	}
	snap, err := cache.NewRedisSnapshot(cache.RedisSnapshotConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SnapshotTTL,
	})
	if err != nil {
		logger.Warn("Snapshot disabled", zap.Error(err))
		return cache.NopSnapshot{}, func() {}
	}
	if err := snap.Ping(ctx); err != nil {
		logger.Warn("Snapshot store unreachable, continuing without it", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = snap.Close()
		return cache.NopSnapshot{}, func() {}
	}
	return snap, func() { _ = snap.Close() }
}

// newApp wires configuration, telemetry, providers and the quote service.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	tracer, shutdownTracer, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		a.closers = append(a.closers, func() { _ = shutdownTracer(context.Background()) })
	}

	a.metrics = telemetry.NewMetrics(nil)
	a.limiter = initLimiter(cfg, a.metrics, logger)
	a.closers = append(a.closers, a.limiter.Close)

	records, err := initProviderRegistry(ctx, a, tracer)
	if err != nil {
		a.Close()
		return nil, err
	}

	policy, err := config.NewPolicyHolder(cfg.PricingPolicyFile, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	snapshot, closeSnapshot := initSnapshot(ctx, cfg, logger)
	a.closers = append(a.closers, closeSnapshot)

	opts := []quote.Option{
		quote.WithLogger(logger),
		quote.WithObserver(a.metrics),
		quote.WithSnapshot(snapshot),
		quote.WithPolicy(policy),
		quote.WithOrigin(cfg.OriginProvince),
		quote.WithTTLs(cfg.TTLs()),
		quote.WithReprobeAfter(cfg.ReprobeAfter),
		quote.WithRetryHomeOnOfficeUnavailable(cfg.RetryHomeOnOfficeUnavailable),
		quote.WithTransitionHook(a.metrics.ObserveTransition),
	}
	if tracer != nil {
		opts = append(opts, quote.WithTracer(tracer))
	}
	a.service = quote.New(a.registry, opts...)

	a.records = records
	if records != nil {
		records.OnChange(func(r recordstore.Rate) {
			logger.Info("Record store changed, dropping cached tariffs", zap.Int("province", r.ProvinceCode))
			a.service.InvalidateAll()
		})
	}
	return a, nil
}

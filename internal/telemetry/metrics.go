package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tournevent/tarif/internal/ratelimit"
	"github.com/tournevent/tarif/internal/selector"
	"github.com/tournevent/tarif/pkg/tariff"
)

const namespace = "tarif"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	QuotesTotal     *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	ProviderCalls   *prometheus.CounterVec
	ProviderErrors  *prometheus.CounterVec
	LimiterWait     *prometheus.HistogramVec
	LimiterDispatch *prometheus.CounterVec
	LimiterSkipped  *prometheus.CounterVec
	Mode            *prometheus.GaugeVec
}

// NewMetrics creates metrics and registers them with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	m := &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		QuotesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quotes_total",
				Help:      "Priced quotes by data source and provider",
			},
			[]string{"source", "provider"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by category and result",
			},
			[]string{"category", "result"},
		),
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Provider calls by provider, operation and outcome",
			},
			[]string{"provider", "operation", "status"},
		),
		ProviderErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Provider failures by provider and error code",
			},
			[]string{"provider", "code"},
		),
		LimiterWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ratelimit_wait_seconds",
				Help:      "Time calls spent waiting for a rate limit window",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		LimiterDispatch: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_dispatched_total",
				Help:      "Calls released by the rate limiter",
			},
			[]string{"provider"},
		),
		LimiterSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_skipped_total",
				Help:      "Queued calls dropped because their caller gave up",
			},
			[]string{"provider"},
		),
		Mode: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_mode",
				Help:      "1 for the current tariff source mode, 0 otherwise",
			},
			[]string{"mode"},
		),
	}
	m.ObserveTransition("", selector.SourceProbing)
	return m
}

// RecordRequest records an HTTP request.
func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveQuote counts a priced quote.
func (m *Metrics) ObserveQuote(source, provider string) {
	m.QuotesTotal.WithLabelValues(source, provider).Inc()
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(category string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(category, result).Inc()
}

// ObserveProviderCall counts a provider call and, on failure, its error code.
func (m *Metrics) ObserveProviderCall(provider, operation string, err error) {
	status := "ok"
	var providerErr *tariff.ProviderError
	switch {
	case err == nil:
	case errors.As(err, &providerErr):
		status = "unavailable"
		m.ProviderErrors.WithLabelValues(provider, providerErr.Code).Inc()
	default:
		status = "error"
	}
	m.ProviderCalls.WithLabelValues(provider, operation, status).Inc()
}

// ObserveWait records time spent queued behind a rate limit window.
func (m *Metrics) ObserveWait(key string, d time.Duration) {
	m.LimiterWait.WithLabelValues(key).Observe(d.Seconds())
}

// ObserveDispatch counts a call released by the limiter.
func (m *Metrics) ObserveDispatch(key string, _ time.Time) {
	m.LimiterDispatch.WithLabelValues(key).Inc()
}

// ObserveSkip counts a queued call whose caller gave up.
func (m *Metrics) ObserveSkip(key string) {
	m.LimiterSkipped.WithLabelValues(key).Inc()
}

// ObserveTransition sets the mode gauge.
func (m *Metrics) ObserveTransition(_, to selector.Source) {
	for _, s := range []selector.Source{selector.SourceProbing, selector.SourceLive, selector.SourceDegraded} {
		v := 0.0
		if s == to {
			v = 1
		}
		m.Mode.WithLabelValues(string(s)).Set(v)
	}
}

var _ ratelimit.Observer = (*Metrics)(nil)

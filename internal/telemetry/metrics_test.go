package telemetry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/tarif/internal/selector"
	"github.com/tournevent/tarif/internal/telemetry"
	"github.com/tournevent/tarif/pkg/tariff"
)

func TestMetrics_ProviderCalls(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())

	m.ObserveProviderCall("yalidine", "get_fee", nil)
	m.ObserveProviderCall("yalidine", "get_fee", tariff.NewProviderError("yalidine", tariff.CodeTimeout, "slow"))
	m.ObserveProviderCall("yalidine", "get_fee", errors.New("bad request"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("yalidine", "get_fee", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("yalidine", "get_fee", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("yalidine", "get_fee", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderErrors.WithLabelValues("yalidine", tariff.CodeTimeout)))
}

func TestMetrics_CacheAndQuotes(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())

	m.ObserveCache("fees", true)
	m.ObserveCache("fees", false)
	m.ObserveCache("fees", true)
	m.ObserveQuote("cache", "yalidine")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("fees", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("fees", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotesTotal.WithLabelValues("cache", "yalidine")))
}

func TestMetrics_Limiter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	m.ObserveWait("zrexpress", 250*time.Millisecond)
	m.ObserveDispatch("zrexpress", time.Now())
	m.ObserveSkip("zrexpress")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LimiterDispatch.WithLabelValues("zrexpress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LimiterSkipped.WithLabelValues("zrexpress")))
	count, err := testutil.GatherAndCount(reg, "tarif_ratelimit_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_ModeGauge(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mode.WithLabelValues("probing")))

	m.ObserveTransition(selector.SourceProbing, selector.SourceDegraded)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.Mode.WithLabelValues("probing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mode.WithLabelValues("degraded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Mode.WithLabelValues("live")))
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("/v1/quotes", "200", 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/quotes", "200")))
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "WARN", "error", "nonsense", ""} {
		logger, err := telemetry.NewLogger(level)
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}
}

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/tarif/internal/clock"
	"github.com/tournevent/tarif/internal/quote"
	"github.com/tournevent/tarif/internal/server"
	"github.com/tournevent/tarif/internal/telemetry"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/tournevent/tarif/pkg/tariff/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, cfg server.Config) (http.Handler, *mock.Provider, *telemetry.Metrics) {
	t.Helper()

	provider := mock.New("yalidine")
	registry := tariff.NewRegistry()
	registry.Register(provider)
	svc := quote.New(registry, quote.WithClock(clock.NewFake(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))))
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	srv := server.New(cfg, svc, metrics, otelzap.New(zap.NewNop()))
	return srv.Handler(), provider, metrics
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return errBody["code"].(string)
}

func TestServer_Health(t *testing.T) {
	h, _, _ := newTestServer(t, server.Config{})

	rec := do(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Quote_FreeText(t *testing.T) {
	h, _, metrics := newTestServer(t, server.Config{})

	rec := do(t, h, http.MethodPost, "/v1/quotes", `{
		"destination": "Centre-ville, Oran",
		"deliveryMode": "office",
		"weightKg": 6.5,
		"dimensions": {"length": 10, "width": 10, "height": 10},
		"declaredValue": 0
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, 350.0, body["basePrice"])
	assert.Equal(t, 100.0, body["overweightCharge"])
	assert.Equal(t, 450.0, body["total"])
	assert.Equal(t, "office", body["deliveryMode"])
	assert.Equal(t, "live", body["dataSource"])
	assert.Equal(t, "Centre-ville", body["commune"])
	assert.NotEmpty(t, body["quoteId"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/v1/quotes", "200")))
}

func TestServer_Quote_StructuredDestination(t *testing.T) {
	h, _, _ := newTestServer(t, server.Config{})

	rec := do(t, h, http.MethodPost, "/v1/quotes", `{
		"destination": {"provinceCode": 16, "communeName": "Bab Ezzouar"},
		"weightKg": 1
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "home", body["deliveryMode"], "home is the default mode")
	assert.Equal(t, 400.0, body["total"])
	assert.Equal(t, 16.0, body["provinceCode"])
}

func TestServer_Quote_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown destination", `{"destination": "Nowhereville", "weightKg": 1}`, http.StatusNotFound, "DESTINATION_NOT_FOUND"},
		{"no counter", `{"destination": "Es Senia, Oran", "deliveryMode": "office", "weightKg": 1}`, http.StatusUnprocessableEntity, "DELIVERY_MODE_UNAVAILABLE"},
		{"negative weight", `{"destination": "Oran", "weightKg": -2}`, http.StatusBadRequest, "INVALID_SHIPMENT_REQUEST"},
		{"unknown mode", `{"destination": "Oran", "deliveryMode": "drone", "weightKg": 1}`, http.StatusBadRequest, "INVALID_SHIPMENT_REQUEST"},
		{"missing destination", `{"weightKg": 1}`, http.StatusBadRequest, "INVALID_SHIPMENT_REQUEST"},
		{"bad province code", `{"destination": {"provinceCode": 0}, "weightKg": 1}`, http.StatusBadRequest, "INVALID_JSON"},
		{"not json", `weight=1`, http.StatusBadRequest, "INVALID_JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestServer(t, server.Config{})

			rec := do(t, h, http.MethodPost, "/v1/quotes", tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestServer_Quote_RateLimitTimeout(t *testing.T) {
	h, provider, _ := newTestServer(t, server.Config{})
	provider.OnGetFee = func(context.Context, int, int) (*tariff.TariffTable, error) {
		return nil, tariff.ErrRateLimitTimeout
	}

	rec := do(t, h, http.MethodPost, "/v1/quotes", `{"destination": {"provinceCode": 16}, "weightKg": 1}`)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "RATE_LIMIT_TIMEOUT", errorCode(t, rec))
}

func TestServer_Quote_DegradedStillAnswers(t *testing.T) {
	h, provider, _ := newTestServer(t, server.Config{})
	provider.FailWithStatus(500)

	rec := do(t, h, http.MethodPost, "/v1/quotes", `{"destination": "Oran", "weightKg": 1}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "static", decode(t, rec)["dataSource"])

	rec = do(t, h, http.MethodGet, "/v1/mode", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["source"])
}

func TestServer_SearchCommunes(t *testing.T) {
	h, _, _ := newTestServer(t, server.Config{})

	rec := do(t, h, http.MethodGet, "/v1/communes?q=senia", "")

	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode(t, rec)["matches"].([]any)
	require.Len(t, matches, 1)
	first := matches[0].(map[string]any)
	assert.Equal(t, "Es Senia", first["name"])
	assert.Equal(t, "Oran", first["provinceName"])
	assert.Equal(t, false, first["hasCounterDelivery"])

	rec = do(t, h, http.MethodGet, "/v1/communes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Provinces(t *testing.T) {
	h, _, _ := newTestServer(t, server.Config{})

	rec := do(t, h, http.MethodGet, "/v1/provinces", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["provinces"], 2)
	assert.Equal(t, "live", body["dataSource"])
}

func TestServer_Reload(t *testing.T) {
	h, provider, _ := newTestServer(t, server.Config{})
	provider.FailWithStatus(503)

	rec := do(t, h, http.MethodPost, "/v1/reload", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["source"])
	assert.Contains(t, body["error"], "reload failed")

	provider.Fail(nil)
	rec = do(t, h, http.MethodPost, "/v1/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "live", body["source"])
	assert.Equal(t, map[string]any{"yalidine": "ok"}, body["providers"])
}

func TestServer_Throttle(t *testing.T) {
	h, _, _ := newTestServer(t, server.Config{RatePerSecond: 1, Burst: 2, TrustXForwardedFor: true})

	get := func(client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/mode", nil)
		req.Header.Set("X-Forwarded-For", client+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get("1.2.3.4").Code)
	assert.Equal(t, http.StatusOK, get("1.2.3.4").Code)

	rec := get("1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))

	assert.Equal(t, http.StatusOK, get("5.6.7.8").Code, "clients are throttled separately")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code, "health is not throttled")
}

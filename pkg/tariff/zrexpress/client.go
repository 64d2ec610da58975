// Package zrexpress provides integration with the ZR Express delivery API.
package zrexpress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tournevent/tarif/internal/ratelimit"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/tournevent/tarif/pkg/tariff/static"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// ProviderName identifies ZR Express on quotes and rate limiter queues.
const ProviderName = "zrexpress"

// Surcharges are the pricing parameters ZR Express does not publish through
// its API. They apply to every destination.
type Surcharges struct {
	OverweightThresholdKg float64
	OverweightRatePerKg   float64
	CODFeePercentage      float64
	CODFeeFixed           float64
	InsurancePercentage   float64
}

// Config holds ZR Express configuration.
type Config struct {
	Token      string
	Key        string
	BaseURL    string
	UseMock    bool // When true, uses mock API client
	Surcharges Surcharges
	// ZoneOf assigns zones, which the API does not report. Defaults to the bundled dataset.
	ZoneOf func(provinceCode int) int
}

// Client is the ZR Express tariff provider.
type Client struct {
	config    Config
	apiClient APIClient
	scheduler ratelimit.Scheduler
	logger    *otelzap.Logger
	tracer    trace.Tracer
	zoneOf    func(int) int
}

// New creates a new ZR Express client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, scheduler ratelimit.Scheduler, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Key:     cfg.Key,
		})
	}

	return NewWithAPIClient(cfg, apiClient, scheduler, logger, tracer)
}

// NewWithAPIClient creates a new ZR Express client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, scheduler ratelimit.Scheduler, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(ProviderName)
	}
	if scheduler == nil {
		scheduler = ratelimit.Passthrough{}
	}
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	zoneOf := cfg.ZoneOf
	if zoneOf == nil {
		zoneOf = static.New().Zone
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		scheduler: scheduler,
		logger:    logger,
		tracer:    tracer,
		zoneOf:    zoneOf,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

func (c *Client) tarification(ctx context.Context) ([]Tarif, error) {
	return ratelimit.Do(ctx, c.scheduler, ProviderName, c.apiClient.GetTarification)
}

func (c *Client) communes(ctx context.Context) ([]CommuneRecord, error) {
	return ratelimit.Do(ctx, c.scheduler, ProviderName, c.apiClient.ListCommunes)
}

// ListProvinces derives provinces from the price list.
func (c *Client) ListProvinces(ctx context.Context) ([]tariff.Province, error) {
	ctx, span := c.tracer.Start(ctx, "zrexpress.ListProvinces")
	defer span.End()

	tarifs, err := c.tarification(ctx)
	if err != nil {
		return nil, c.fail(ctx, span, "tarification", err)
	}
	provinces, err := NormalizeProvinces(tarifs, c.zoneOf)
	if err != nil {
		return nil, c.fail(ctx, span, "tarification", err)
	}
	span.SetAttributes(attribute.Int("provinces", len(provinces)))
	return provinces, nil
}

// ListCommunes returns the communes of a wilaya, or all of them when provinceCode is 0.
func (c *Client) ListCommunes(ctx context.Context, provinceCode int) ([]tariff.Commune, error) {
	ctx, span := c.tracer.Start(ctx, "zrexpress.ListCommunes",
		trace.WithAttributes(attribute.Int("province", provinceCode)))
	defer span.End()

	raw, err := c.communes(ctx)
	if err != nil {
		return nil, c.fail(ctx, span, "communes", err)
	}
	all, err := NormalizeCommunes(raw)
	if err != nil {
		return nil, c.fail(ctx, span, "communes", err)
	}
	if provinceCode == 0 {
		return all, nil
	}

	var out []tariff.Commune
	for _, commune := range all {
		if commune.ProvinceCode == provinceCode {
			out = append(out, commune)
		}
	}
	return out, nil
}

// SearchCommune matches term against the full commune list.
func (c *Client) SearchCommune(ctx context.Context, term string) ([]tariff.CommuneMatch, error) {
	provinces, err := c.ListProvinces(ctx)
	if err != nil {
		return nil, err
	}
	communes, err := c.ListCommunes(ctx, 0)
	if err != nil {
		return nil, err
	}
	return tariff.MatchCommunes(communes, tariff.ProvinceIndex(provinces), term), nil
}

// GetFee returns the destination wilaya's price line as a province-wide default.
// ZR Express prices do not depend on the origin.
func (c *Client) GetFee(ctx context.Context, fromProvince, toProvince int) (*tariff.TariffTable, error) {
	ctx, span := c.tracer.Start(ctx, "zrexpress.GetFee", trace.WithAttributes(
		attribute.Int("from", fromProvince),
		attribute.Int("to", toProvince),
	))
	defer span.End()

	tarifs, err := c.tarification(ctx)
	if err != nil {
		return nil, c.fail(ctx, span, "tarification", err)
	}
	table, err := NormalizeFee(tarifs, fromProvince, toProvince, c.zoneOf, c.config.Surcharges)
	if err != nil {
		return nil, c.fail(ctx, span, "tarification", err)
	}
	return table, nil
}

func (c *Client) fail(ctx context.Context, span trace.Span, op string, err error) error {
	err = c.classify(ctx, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	c.logger.Ctx(ctx).Error("ZR Express API error", zap.String("op", op), zap.Error(err))
	return err
}

func (c *Client) classify(ctx context.Context, err error) error {
	var pe *tariff.ProviderError
	if errors.As(err, &pe) || errors.Is(err, tariff.ErrRateLimitTimeout) || errors.Is(err, ratelimit.ErrClosed) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", ProviderName, ctx.Err())
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return tariff.NewProviderError(ProviderName, tariff.CodeHTTPStatus, apiErr.Message).
			WithStatusCode(apiErr.StatusCode).
			WithRetryable(apiErr.StatusCode >= 500 || apiErr.StatusCode == 429).
			WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return tariff.NewProviderError(ProviderName, tariff.CodeTimeout, "request timed out").
			WithRetryable(true).
			WithCause(err)
	case errors.Is(err, ErrMalformedResponse):
		return tariff.NewProviderError(ProviderName, tariff.CodeMalformed, "undecodable response").WithCause(err)
	default:
		return tariff.NewProviderError(ProviderName, tariff.CodeTransport, "request failed").
			WithRetryable(true).
			WithCause(err)
	}
}

// ============================================================================
// Conversion helpers: API models -> tariff models
// ============================================================================

func malformed(format string, args ...any) error {
	return tariff.NewProviderError(ProviderName, tariff.CodeMalformed, fmt.Sprintf(format, args...))
}

func parseInt(v Value) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(v)))
	return n, err == nil
}

// parsePrice accepts "650", "650.00" and "650,00".
func parsePrice(v Value) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(string(v)), ",", ".")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// flag treats "1", "true" and "oui" as set.
func flag(v Value) bool {
	switch strings.ToLower(strings.TrimSpace(string(v))) {
	case "1", "true", "oui", "yes":
		return true
	}
	return false
}

// NormalizeProvinces maps price lines to provinces. Any invalid line rejects the whole list.
func NormalizeProvinces(tarifs []Tarif, zoneOf func(int) int) ([]tariff.Province, error) {
	provinces := make([]tariff.Province, 0, len(tarifs))
	for i, t := range tarifs {
		code, ok := parseInt(t.IDWilaya)
		if !ok || code <= 0 || strings.TrimSpace(t.Wilaya) == "" {
			return nil, malformed("tarif %d: invalid wilaya id %q", i, t.IDWilaya)
		}
		zone := zoneOf(code)
		if zone < 1 {
			return nil, malformed("tarif %d: no zone for wilaya %d", i, code)
		}
		provinces = append(provinces, tariff.Province{Code: code, Name: strings.TrimSpace(t.Wilaya), Zone: zone})
	}
	sort.Slice(provinces, func(i, j int) bool { return provinces[i].Code < provinces[j].Code })
	return provinces, nil
}

// NormalizeCommunes maps commune records. Any invalid record rejects the whole list.
func NormalizeCommunes(raw []CommuneRecord) ([]tariff.Commune, error) {
	communes := make([]tariff.Commune, 0, len(raw))
	for i, r := range raw {
		code, ok := parseInt(r.IDWilaya)
		if !ok || code <= 0 || strings.TrimSpace(r.Nom) == "" {
			return nil, malformed("commune %d: invalid wilaya id or name", i)
		}
		deliverable := r.Livrable == "" || flag(r.Livrable)
		communes = append(communes, tariff.Commune{
			Name:               strings.TrimSpace(r.Nom),
			ProvinceCode:       code,
			HasCounterDelivery: flag(r.StopDesk),
			IsDeliverable:      deliverable,
		})
	}
	return communes, nil
}

// NormalizeFee builds the table for one destination from the price list.
// A zero or empty Stopdesk price means no counter service. Every line is
// validated, so one bad line rejects the whole response.
func NormalizeFee(tarifs []Tarif, from, to int, zoneOf func(int) int, s Surcharges) (*tariff.TariffTable, error) {
	var found *tariff.TariffRecord
	for i, t := range tarifs {
		code, ok := parseInt(t.IDWilaya)
		if !ok || code <= 0 {
			return nil, malformed("tarif %d: invalid wilaya id %q", i, t.IDWilaya)
		}
		home, ok := parsePrice(t.Domicile)
		if !ok {
			return nil, malformed("tarif %d: invalid home price %q", i, t.Domicile)
		}
		var office *float64
		if desk := strings.TrimSpace(string(t.Stopdesk)); desk != "" {
			p, ok := parsePrice(t.Stopdesk)
			if !ok {
				return nil, malformed("tarif %d: invalid desk price %q", i, t.Stopdesk)
			}
			if p > 0 {
				office = &p
			}
		}
		if code != to {
			continue
		}
		zone := zoneOf(code)
		if zone < 1 {
			return nil, malformed("tarif %d: no zone for wilaya %d", i, code)
		}
		found = &tariff.TariffRecord{
			HomePrice:             home,
			OfficePrice:           office,
			Zone:                  zone,
			OverweightThresholdKg: s.OverweightThresholdKg,
			OverweightRatePerKg:   s.OverweightRatePerKg,
			CODFeePercentage:      s.CODFeePercentage,
			CODFeeFixed:           s.CODFeeFixed,
			InsurancePercentage:   s.InsurancePercentage,
		}
	}

	table := &tariff.TariffTable{
		Provider:     ProviderName,
		FromProvince: from,
		ToProvince:   to,
		Default:      found,
	}
	if found != nil {
		table.Zone = found.Zone
	}
	return table, nil
}

var _ tariff.Provider = (*Client)(nil)

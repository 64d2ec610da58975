// Package yalidine provides integration with the Yalidine delivery API.
package yalidine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/tournevent/tarif/internal/ratelimit"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// ProviderName identifies Yalidine on quotes and rate limiter queues.
const ProviderName = "yalidine"

// maxPages stops a pagination loop whose next link never runs out.
const maxPages = 200

// DefaultFeeTimeouts is the per-attempt timeout ladder for the fees endpoint.
var DefaultFeeTimeouts = []time.Duration{15 * time.Second, 30 * time.Second, 45 * time.Second}

// Config holds Yalidine configuration.
type Config struct {
	APIID    string
	APIToken string
	BaseURL  string
	UseMock  bool // When true, uses mock API client
	// FeeTimeouts overrides DefaultFeeTimeouts. Its length bounds the attempts.
	FeeTimeouts []time.Duration
}

// Client is the Yalidine tariff provider.
// It implements tariff.Provider and routes every API call through the
// rate limiter under its provider name.
type Client struct {
	config      Config
	apiClient   APIClient
	scheduler   ratelimit.Scheduler
	logger      *otelzap.Logger
	tracer      trace.Tracer
	feeTimeouts []time.Duration
}

// New creates a new Yalidine client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, scheduler ratelimit.Scheduler, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:  cfg.BaseURL,
			APIID:    cfg.APIID,
			APIToken: cfg.APIToken,
		})
	}

	return NewWithAPIClient(cfg, apiClient, scheduler, logger, tracer)
}

// NewWithAPIClient creates a new Yalidine client with a custom API client.
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
	timeouts := cfg.FeeTimeouts
	if len(timeouts) == 0 {
		timeouts = DefaultFeeTimeouts
	}

	return &Client{
		config:      cfg,
		apiClient:   apiClient,
		scheduler:   scheduler,
		logger:      logger,
		tracer:      tracer,
		feeTimeouts: timeouts,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// ListProvinces returns every wilaya, following pagination.
func (c *Client) ListProvinces(ctx context.Context) ([]tariff.Province, error) {
	ctx, span := c.tracer.Start(ctx, "yalidine.ListProvinces")
	defer span.End()

	var wilayas []Wilaya
	next := ""
	for range maxPages {
		page, err := ratelimit.Do(ctx, c.scheduler, ProviderName, func(ctx context.Context) (*WilayaPage, error) {
			return c.apiClient.ListWilayas(ctx, next)
		})
		if err != nil {
			return nil, c.fail(ctx, span, "list wilayas", err)
		}
		wilayas = append(wilayas, page.Data...)
		if !page.HasMore || page.Links.Next == "" {
			break
		}
		next = page.Links.Next
	}

	provinces, err := NormalizeWilayas(wilayas)
	if err != nil {
		return nil, c.fail(ctx, span, "list wilayas", err)
	}
	span.SetAttributes(attribute.Int("provinces", len(provinces)))
	return provinces, nil
}

// ListCommunes returns the communes of a wilaya, or all of them when provinceCode is 0.
func (c *Client) ListCommunes(ctx context.Context, provinceCode int) ([]tariff.Commune, error) {
	ctx, span := c.tracer.Start(ctx, "yalidine.ListCommunes",
		trace.WithAttributes(attribute.Int("province", provinceCode)))
	defer span.End()

	var raw []Commune
	next := ""
	for range maxPages {
		page, err := ratelimit.Do(ctx, c.scheduler, ProviderName, func(ctx context.Context) (*CommunePage, error) {
			return c.apiClient.ListCommunes(ctx, provinceCode, next)
		})
		if err != nil {
			return nil, c.fail(ctx, span, "list communes", err)
		}
		raw = append(raw, page.Data...)
		if !page.HasMore || page.Links.Next == "" {
			break
		}
		next = page.Links.Next
	}

	communes, err := NormalizeCommunes(raw)
	if err != nil {
		return nil, c.fail(ctx, span, "list communes", err)
	}
	return communes, nil
}

// SearchCommune matches term against the full commune list. Yalidine has no
// search endpoint.
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

// GetFee returns the fee grid between two wilayas. Attempts that time out are
// retried with the next, longer timeout of the ladder; other failures are not retried.
func (c *Client) GetFee(ctx context.Context, fromProvince, toProvince int) (*tariff.TariffTable, error) {
	ctx, span := c.tracer.Start(ctx, "yalidine.GetFee", trace.WithAttributes(
		attribute.Int("from", fromProvince),
		attribute.Int("to", toProvince),
	))
	defer span.End()

	var lastErr error
	for attempt, timeout := range c.feeTimeouts {
		resp, err := ratelimit.Do(ctx, c.scheduler, ProviderName, func(ctx context.Context) (*FeesResponse, error) {
			return c.apiClient.GetFees(ctx, fromProvince, toProvince, timeout)
		})
		if err == nil {
			table, err := NormalizeFees(fromProvince, toProvince, resp)
			if err != nil {
				return nil, c.fail(ctx, span, "get fees", err)
			}
			return table, nil
		}

		lastErr = c.classify(ctx, err)
		var pe *tariff.ProviderError
		if !errors.As(lastErr, &pe) || pe.Code != tariff.CodeTimeout {
			break
		}
		c.logger.Ctx(ctx).Warn("Yalidine fees attempt timed out",
			zap.Int("attempt", attempt+1),
			zap.Duration("timeout", timeout),
			zap.Int("to", toProvince),
		)
	}
	return nil, c.fail(ctx, span, "get fees", lastErr)
}

// fail records err on the span, logs it and returns it classified.
func (c *Client) fail(ctx context.Context, span trace.Span, op string, err error) error {
	err = c.classify(ctx, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	c.logger.Ctx(ctx).Error("Yalidine API error", zap.String("op", op), zap.Error(err))
	return err
}

// classify maps API failures to tariff.ProviderError. Cancellation of the
// caller's own context and rate limiter timeouts pass through unchanged.
func (c *Client) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var pe *tariff.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, tariff.ErrRateLimitTimeout) || errors.Is(err, ratelimit.ErrClosed) {
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

// NormalizeWilayas maps wilayas to provinces. Any invalid entry rejects the whole list.
func NormalizeWilayas(wilayas []Wilaya) ([]tariff.Province, error) {
	provinces := make([]tariff.Province, 0, len(wilayas))
	seen := make(map[int]bool, len(wilayas))
	for i, w := range wilayas {
		if w.ID <= 0 || w.Name == "" {
			return nil, malformed("wilaya %d: missing id or name", i)
		}
		if w.Zone < 1 {
			return nil, malformed("wilaya %d: invalid zone %d", w.ID, w.Zone)
		}
		if seen[w.ID] {
			continue
		}
		seen[w.ID] = true
		provinces = append(provinces, tariff.Province{Code: w.ID, Name: w.Name, Zone: w.Zone})
	}
	sort.Slice(provinces, func(i, j int) bool { return provinces[i].Code < provinces[j].Code })
	return provinces, nil
}

// NormalizeCommunes maps communes. Any invalid entry rejects the whole list.
func NormalizeCommunes(raw []Commune) ([]tariff.Commune, error) {
	communes := make([]tariff.Commune, 0, len(raw))
	for i, c := range raw {
		if c.Name == "" || c.WilayaID <= 0 {
			return nil, malformed("commune %d: missing name or wilaya", i)
		}
		communes = append(communes, tariff.Commune{
			Name:               c.Name,
			ProvinceCode:       c.WilayaID,
			HasCounterDelivery: c.HasStopDesk == 1,
			IsDeliverable:      c.IsDeliverable == 1,
		})
	}
	return communes, nil
}

// NormalizeFees maps the fee grid to a tariff table keyed by commune name.
// Express prices are preferred; economic prices fill in when express is absent.
func NormalizeFees(from, to int, resp *FeesResponse) (*tariff.TariffTable, error) {
	if resp == nil {
		return nil, malformed("empty fees response")
	}
	if resp.Zone < 1 {
		return nil, malformed("fees %d->%d: invalid zone %d", from, to, resp.Zone)
	}
	if resp.CODPercentage < 0 || resp.InsurancePercentage < 0 || resp.OversizeFee < 0 {
		return nil, malformed("fees %d->%d: negative surcharge", from, to)
	}

	table := &tariff.TariffTable{
		Provider:     ProviderName,
		FromProvince: from,
		ToProvince:   to,
		Zone:         resp.Zone,
		PerCommune:   make(map[string]tariff.TariffRecord, len(resp.PerCommune)),
	}

	for key, fee := range resp.PerCommune {
		if fee.CommuneName == "" {
			return nil, malformed("fees %d->%d: commune %s has no name", from, to, key)
		}
		if _, err := strconv.Atoi(key); err != nil {
			return nil, malformed("fees %d->%d: commune key %q is not an id", from, to, key)
		}

		home := firstPrice(fee.ExpressHome, fee.EconomicHome)
		if home == nil || !validPrice(*home) {
			return nil, malformed("fees %d->%d: commune %s has no home price", from, to, fee.CommuneName)
		}
		office := firstPrice(fee.ExpressDesk, fee.EconomicDesk)
		if office != nil && !validPrice(*office) {
			return nil, malformed("fees %d->%d: commune %s has an invalid desk price", from, to, fee.CommuneName)
		}

		table.PerCommune[tariff.NormalizeName(fee.CommuneName)] = tariff.TariffRecord{
			HomePrice:           *home,
			OfficePrice:         office,
			Zone:                resp.Zone,
			OverweightRatePerKg: resp.OversizeFee,
			CODFeePercentage:    resp.CODPercentage,
			InsurancePercentage: resp.InsurancePercentage,
		}
	}
	return table, nil
}

func firstPrice(prices ...*float64) *float64 {
	for _, p := range prices {
		if p != nil {
			v := *p
			return &v
		}
	}
	return nil
}

func validPrice(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

var _ tariff.Provider = (*Client)(nil)

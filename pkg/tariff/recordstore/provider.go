package recordstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tournevent/tarif/internal/ratelimit"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ProviderName identifies the record store on quotes and rate limiter queues.
const ProviderName = "recordstore"

// Provider exposes a Store through tariff.Provider. Store reads are routed
// through the rate limiter like any other provider call.
type Provider struct {
	store     Store
	scheduler ratelimit.Scheduler
	logger    *otelzap.Logger

	mu        sync.RWMutex
	listeners []func(Rate)
}

// NewProvider creates a record-store provider.
func NewProvider(store Store, scheduler ratelimit.Scheduler, logger *otelzap.Logger) *Provider {
	if scheduler == nil {
		scheduler = ratelimit.Passthrough{}
	}
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	return &Provider{store: store, scheduler: scheduler, logger: logger}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

// OnChange registers fn to run after every successful write.
func (p *Provider) OnChange(fn func(Rate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Upsert writes a rate and notifies change listeners.
func (p *Provider) Upsert(ctx context.Context, r Rate) error {
	if r.HomePrice < 0 || (r.OfficePrice != nil && *r.OfficePrice < 0) {
		return fmt.Errorf("%w: negative price", tariff.ErrInvalidShipmentRequest)
	}
	if err := p.store.UpsertRate(ctx, r); err != nil {
		return err
	}

	p.logger.Ctx(ctx).Info("Reference rate updated",
		zap.Int("province", r.ProvinceCode),
		zap.String("commune", r.CommuneName),
	)

	p.mu.RLock()
	listeners := slices.Clone(p.listeners)
	p.mu.RUnlock()
	for _, fn := range listeners {
		fn(r)
	}
	return nil
}

// UpsertProvince writes a province row.
func (p *Provider) UpsertProvince(ctx context.Context, province tariff.Province) error {
	if province.Code <= 0 || province.Zone < 1 || province.Name == "" {
		return fmt.Errorf("%w: province %d", ErrUnknownProvince, province.Code)
	}
	return p.store.UpsertProvince(ctx, province)
}

func (p *Provider) unavailable(err error) error {
	if errors.Is(err, tariff.ErrRateLimitTimeout) || errors.Is(err, context.Canceled) {
		return err
	}
	return tariff.Unavailable(ProviderName, tariff.CodeTransport, err)
}

// ListProvinces returns the stored provinces.
func (p *Provider) ListProvinces(ctx context.Context) ([]tariff.Province, error) {
	provinces, err := ratelimit.Do(ctx, p.scheduler, ProviderName, p.store.ListProvinces)
	if err != nil {
		return nil, p.unavailable(err)
	}
	return provinces, nil
}

func (p *Provider) rates(ctx context.Context, provinceCode int) ([]Rate, error) {
	rates, err := ratelimit.Do(ctx, p.scheduler, ProviderName, func(ctx context.Context) ([]Rate, error) {
		return p.store.ListRates(ctx, provinceCode)
	})
	if err != nil {
		return nil, p.unavailable(err)
	}
	return rates, nil
}

// ListCommunes returns every commune that has its own rate row.
func (p *Provider) ListCommunes(ctx context.Context, provinceCode int) ([]tariff.Commune, error) {
	rates, err := p.rates(ctx, provinceCode)
	if err != nil {
		return nil, err
	}
	return CommunesFromRates(rates), nil
}

// SearchCommune matches term against the stored communes.
func (p *Provider) SearchCommune(ctx context.Context, term string) ([]tariff.CommuneMatch, error) {
	provinces, err := p.ListProvinces(ctx)
	if err != nil {
		return nil, err
	}
	communes, err := p.ListCommunes(ctx, 0)
	if err != nil {
		return nil, err
	}
	return tariff.MatchCommunes(communes, tariff.ProvinceIndex(provinces), term), nil
}

// GetFee builds the destination's table from its rate rows. Stored rates do
// not depend on the origin.
func (p *Provider) GetFee(ctx context.Context, fromProvince, toProvince int) (*tariff.TariffTable, error) {
	provinces, err := p.ListProvinces(ctx)
	if err != nil {
		return nil, err
	}
	dest, ok := tariff.ProvinceIndex(provinces)[toProvince]
	if !ok {
		return &tariff.TariffTable{Provider: ProviderName, FromProvince: fromProvince, ToProvince: toProvince}, nil
	}

	rates, err := p.rates(ctx, toProvince)
	if err != nil {
		return nil, err
	}
	return TableFromRates(fromProvince, dest, rates), nil
}

// CommunesFromRates lists the communes named by rate rows. A commune has
// counter service when its office price is set.
func CommunesFromRates(rates []Rate) []tariff.Commune {
	var communes []tariff.Commune
	for _, r := range rates {
		if r.CommuneName == "" {
			continue
		}
		communes = append(communes, tariff.Commune{
			Name:               r.CommuneName,
			ProvinceCode:       r.ProvinceCode,
			HasCounterDelivery: r.OfficePrice != nil,
			IsDeliverable:      true,
			Tariff:             &tariff.CommuneTariff{HomePrice: r.HomePrice, OfficePrice: r.OfficePrice},
		})
	}
	return communes
}

// TableFromRates assembles a tariff table for dest.
func TableFromRates(from int, dest tariff.Province, rates []Rate) *tariff.TariffTable {
	table := &tariff.TariffTable{
		Provider:     ProviderName,
		FromProvince: from,
		ToProvince:   dest.Code,
		Zone:         dest.Zone,
		PerCommune:   make(map[string]tariff.TariffRecord),
	}
	for _, r := range rates {
		rec := tariff.TariffRecord{
			HomePrice:             r.HomePrice,
			OfficePrice:           r.OfficePrice,
			Zone:                  dest.Zone,
			OverweightThresholdKg: r.OverweightThresholdKg,
			OverweightRatePerKg:   r.OverweightRatePerKg,
			CODFeePercentage:      r.CODFeePercentage,
			CODFeeFixed:           r.CODFeeFixed,
			InsurancePercentage:   r.InsurancePercentage,
		}
		if r.CommuneName == "" {
			table.Default = &rec
			continue
		}
		table.PerCommune[tariff.NormalizeName(r.CommuneName)] = rec
	}
	return table
}

var _ tariff.Provider = (*Provider)(nil)

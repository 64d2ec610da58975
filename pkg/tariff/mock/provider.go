// Package mock provides an in-memory tariff provider for testing.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tournevent/tarif/pkg/tariff"
)

// Provider is a mock tariff provider with call counters and failure injection.
type Provider struct {
	name string

	mu        sync.RWMutex
	provinces []tariff.Province
	communes  []tariff.Commune
	fees      map[[2]int]*tariff.TariffTable
	fail      error

	// Hooks override the canned data when set.
	OnGetFee      func(ctx context.Context, from, to int) (*tariff.TariffTable, error)
	OnListCommune func(ctx context.Context, provinceCode int) ([]tariff.Commune, error)
	OnSearch      func(ctx context.Context, term string) ([]tariff.CommuneMatch, error)

	provinceCalls atomic.Int64
	communeCalls  atomic.Int64
	searchCalls   atomic.Int64
	feeCalls      atomic.Int64
}

// New creates a mock provider seeded with two provinces and three communes.
func New(name string) *Provider {
	return &Provider{
		name: name,
		provinces: []tariff.Province{
			{Code: 16, Name: "Alger", Zone: 1},
			{Code: 31, Name: "Oran", Zone: 2},
		},
		communes: []tariff.Commune{
			{Name: "Bab Ezzouar", ProvinceCode: 16, HasCounterDelivery: true, IsDeliverable: true},
			{Name: "Centre-ville", ProvinceCode: 31, HasCounterDelivery: true, IsDeliverable: true},
			{Name: "Es Senia", ProvinceCode: 31, IsDeliverable: true},
		},
		fees: map[[2]int]*tariff.TariffTable{
			{16, 16}: {
				Provider: name, FromProvince: 16, ToProvince: 16, Zone: 1,
				Default: &tariff.TariffRecord{HomePrice: 400, OfficePrice: tariff.Float(300), Zone: 1},
			},
			{16, 31}: {
				Provider: name, FromProvince: 16, ToProvince: 31, Zone: 2,
				Default: &tariff.TariffRecord{HomePrice: 600, OfficePrice: tariff.Float(450), Zone: 2},
				PerCommune: map[string]tariff.TariffRecord{
					tariff.NormalizeName("Centre-ville"): {HomePrice: 400, OfficePrice: tariff.Float(350), Zone: 2},
					tariff.NormalizeName("Es Senia"):     {HomePrice: 650, Zone: 2},
				},
			},
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// SetProvinces replaces the canned province list.
func (p *Provider) SetProvinces(provinces []tariff.Province) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provinces = provinces
}

// SetCommunes replaces the canned commune list.
func (p *Provider) SetCommunes(communes []tariff.Commune) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.communes = communes
}

// SetFee installs the table returned for a (from, to) pair.
func (p *Provider) SetFee(table *tariff.TariffTable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fees[[2]int{table.FromProvince, table.ToProvince}] = table
}

// Fail makes every subsequent call return err. Pass nil to recover.
func (p *Provider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

// FailWithStatus simulates an upstream HTTP error response.
func (p *Provider) FailWithStatus(status int) {
	p.Fail(tariff.NewProviderError(p.name, tariff.CodeHTTPStatus, "simulated upstream error").
		WithStatusCode(status).
		WithRetryable(status >= 500))
}

func (p *Provider) failure() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fail
}

// ListProvinces returns the canned provinces.
func (p *Provider) ListProvinces(ctx context.Context) ([]tariff.Province, error) {
	p.provinceCalls.Add(1)
	if err := p.failure(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]tariff.Province(nil), p.provinces...), nil
}

// ListCommunes returns the canned communes of a province, or all when provinceCode is 0.
func (p *Provider) ListCommunes(ctx context.Context, provinceCode int) ([]tariff.Commune, error) {
	p.communeCalls.Add(1)
	if err := p.failure(); err != nil {
		return nil, err
	}
	if p.OnListCommune != nil {
		return p.OnListCommune(ctx, provinceCode)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []tariff.Commune
	for _, c := range p.communes {
		if provinceCode == 0 || c.ProvinceCode == provinceCode {
			out = append(out, c)
		}
	}
	return out, nil
}

// SearchCommune matches term against the canned communes.
func (p *Provider) SearchCommune(ctx context.Context, term string) ([]tariff.CommuneMatch, error) {
	p.searchCalls.Add(1)
	if err := p.failure(); err != nil {
		return nil, err
	}
	if p.OnSearch != nil {
		return p.OnSearch(ctx, term)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return tariff.MatchCommunes(p.communes, tariff.ProvinceIndex(p.provinces), term), nil
}

// GetFee returns the canned table for the pair.
func (p *Provider) GetFee(ctx context.Context, from, to int) (*tariff.TariffTable, error) {
	p.feeCalls.Add(1)
	if err := p.failure(); err != nil {
		return nil, err
	}
	if p.OnGetFee != nil {
		return p.OnGetFee(ctx, from, to)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	table, ok := p.fees[[2]int{from, to}]
	if !ok {
		return &tariff.TariffTable{Provider: p.name, FromProvince: from, ToProvince: to}, nil
	}
	return table, nil
}

// Calls reports how many times each operation was invoked.
type Calls struct {
	Provinces int64
	Communes  int64
	Search    int64
	Fees      int64
}

// Total sums all calls.
func (c Calls) Total() int64 {
	return c.Provinces + c.Communes + c.Search + c.Fees
}

// Calls returns the current call counters.
func (p *Provider) Calls() Calls {
	return Calls{
		Provinces: p.provinceCalls.Load(),
		Communes:  p.communeCalls.Load(),
		Search:    p.searchCalls.Load(),
		Fees:      p.feeCalls.Load(),
	}
}

var _ tariff.Provider = (*Provider)(nil)

// Package static provides the bundled tariff dataset used when no live or cached
// data is available. It covers all 58 wilayas, their zones and chef-lieu communes.
package static

import (
	"context"
	"fmt"
	"sort"

	"github.com/tournevent/tarif/pkg/tariff"
)

// Name is the provider name reported on quotes priced from the bundled data.
const Name = "static"

// Provider serves the bundled dataset through the tariff.Provider interface.
// It never fails with tariff.ErrProviderUnavailable.
type Provider struct {
	provinces []tariff.Province
	index     map[int]tariff.Province
	communes  []tariff.Commune
}

// New returns the bundled dataset.
func New() *Provider {
	communes := make([]tariff.Commune, 0, len(provinces)+len(extraCommunes))
	for _, p := range provinces {
		name, ok := capitalNames[p.Code]
		if !ok {
			name = p.Name
		}
		communes = append(communes, tariff.Commune{
			Name:               name,
			ProvinceCode:       p.Code,
			HasCounterDelivery: true,
			IsDeliverable:      true,
		})
	}
	communes = append(communes, extraCommunes...)
	sort.SliceStable(communes, func(i, j int) bool {
		return communes[i].ProvinceCode < communes[j].ProvinceCode
	})

	return &Provider{
		provinces: provinces,
		index:     tariff.ProvinceIndex(provinces),
		communes:  communes,
	}
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) ListProvinces(context.Context) ([]tariff.Province, error) {
	return append([]tariff.Province(nil), p.provinces...), nil
}

func (p *Provider) ListCommunes(_ context.Context, provinceCode int) ([]tariff.Commune, error) {
	if provinceCode == 0 {
		return append([]tariff.Commune(nil), p.communes...), nil
	}
	var out []tariff.Commune
	for _, c := range p.communes {
		if c.ProvinceCode == provinceCode {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *Provider) SearchCommune(_ context.Context, term string) ([]tariff.CommuneMatch, error) {
	return tariff.MatchCommunes(p.communes, p.index, term), nil
}

// GetFee prices by the destination province's zone. Every commune of the
// province shares the zone default.
func (p *Provider) GetFee(_ context.Context, fromProvince, toProvince int) (*tariff.TariffTable, error) {
	dest, ok := p.index[toProvince]
	if !ok {
		return nil, fmt.Errorf("%w: province %d", tariff.ErrDestinationNotFound, toProvince)
	}
	price, ok := zonePrices[dest.Zone]
	if !ok {
		return nil, fmt.Errorf("%w: no bundled price for zone %d", tariff.ErrDestinationNotFound, dest.Zone)
	}
	return &tariff.TariffTable{
		Provider:     Name,
		FromProvince: fromProvince,
		ToProvince:   toProvince,
		Zone:         dest.Zone,
		Default: &tariff.TariffRecord{
			HomePrice:   price.home,
			OfficePrice: price.office,
			Zone:        dest.Zone,
		},
	}, nil
}

// Zone returns the bundled zone of a province, or 0 when the code is unknown.
func (p *Provider) Zone(provinceCode int) int {
	return p.index[provinceCode].Zone
}

var _ tariff.Provider = (*Provider)(nil)

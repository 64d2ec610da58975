// Package tariff provides an abstraction layer over remote tariff providers.
package tariff

import (
	"context"
)

// Provider defines the interface that all tariff sources must implement.
// Implementations translate their proprietary response shapes into the
// canonical Province, Commune and TariffTable types.
type Provider interface {
	// Name returns the provider identifier (e.g., "yalidine", "zrexpress", "recordstore").
	// It is also the rate limiter key for the provider's calls.
	Name() string

	// ListProvinces returns every province the provider serves.
	ListProvinces(ctx context.Context) ([]Province, error)

	// ListCommunes returns the communes of a province, or of every province when provinceCode is 0.
	ListCommunes(ctx context.Context, provinceCode int) ([]Commune, error)

	// SearchCommune returns communes whose name matches term.
	SearchCommune(ctx context.Context, term string) ([]CommuneMatch, error)

	// GetFee returns the tariff table for shipments from one province to another.
	GetFee(ctx context.Context, fromProvince, toProvince int) (*TariffTable, error)
}

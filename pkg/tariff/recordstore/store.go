// Package recordstore serves tariffs from a persisted reference-pricing table.
package recordstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tournevent/tarif/pkg/tariff"
)

// Rate is one row of the reference-pricing table. An empty CommuneName holds
// the province-wide default.
type Rate struct {
	ProvinceCode          int
	CommuneName           string
	HomePrice             float64
	OfficePrice           *float64
	OverweightThresholdKg float64
	OverweightRatePerKg   float64
	CODFeePercentage      float64
	CODFeeFixed           float64
	InsurancePercentage   float64
	UpdatedAt             time.Time
}

// Store persists provinces and rates.
type Store interface {
	ListProvinces(ctx context.Context) ([]tariff.Province, error)
	// ListRates returns the rates of a province, or all rates when provinceCode is 0.
	ListRates(ctx context.Context, provinceCode int) ([]Rate, error)
	UpsertProvince(ctx context.Context, p tariff.Province) error
	UpsertRate(ctx context.Context, r Rate) error
}

// ErrUnknownProvince is returned when a rate references a province the store does not hold.
var ErrUnknownProvince = errors.New("unknown province")

type rateKey struct {
	province int
	commune  string
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	provinces map[int]tariff.Province
	rates     map[rateKey]Rate
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		provinces: make(map[int]tariff.Province),
		rates:     make(map[rateKey]Rate),
	}
}

func (s *MemoryStore) ListProvinces(context.Context) ([]tariff.Province, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tariff.Province, 0, len(s.provinces))
	for _, p := range s.provinces {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) ListRates(_ context.Context, provinceCode int) ([]Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Rate
	for k, r := range s.rates {
		if provinceCode == 0 || k.province == provinceCode {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProvinceCode != out[j].ProvinceCode {
			return out[i].ProvinceCode < out[j].ProvinceCode
		}
		return out[i].CommuneName < out[j].CommuneName
	})
	return out, nil
}

func (s *MemoryStore) UpsertProvince(_ context.Context, p tariff.Province) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provinces[p.Code] = p
	return nil
}

func (s *MemoryStore) UpsertRate(_ context.Context, r Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.provinces[r.ProvinceCode]; !ok {
		return ErrUnknownProvince
	}
	s.rates[rateKey{province: r.ProvinceCode, commune: tariff.NormalizeName(r.CommuneName)}] = r
	return nil
}

var _ Store = (*MemoryStore)(nil)

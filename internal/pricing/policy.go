package pricing

import (
	"errors"
	"fmt"
	"math"
)

// Policy holds the data-driven surcharge parameters that are not carried by a
// tariff record: the zone-to-rate table and the volumetric divisor.
type Policy struct {
	// OverweightThresholdKg applies when a record carries no threshold.
	OverweightThresholdKg float64 `mapstructure:"overweightThresholdKg"`
	// NearZoneMax is the last zone billed at NearRatePerKg; higher zones pay FarRatePerKg.
	NearZoneMax   int     `mapstructure:"nearZoneMax"`
	NearRatePerKg float64 `mapstructure:"nearRatePerKg"`
	FarRatePerKg  float64 `mapstructure:"farRatePerKg"`
	// ZoneRates overrides the two-tier split for individual zones.
	ZoneRates map[int]float64 `mapstructure:"zoneRates"`
	// VolumetricDivisor converts cm³ to kg: 5000 is a factor of 0.0002.
	VolumetricDivisor float64 `mapstructure:"volumetricDivisor"`
}

// DefaultPolicy returns the stock two-tier policy: zones 1–3 pay 50 per kg over
// the threshold, remote zones pay double.
func DefaultPolicy() Policy {
	return Policy{
		OverweightThresholdKg: 5,
		NearZoneMax:           3,
		NearRatePerKg:         50,
		FarRatePerKg:          100,
		VolumetricDivisor:     5000,
	}
}

// RateForZone returns the overweight rate per kg for a zone.
func (p Policy) RateForZone(zone int) float64 {
	if rate, ok := p.ZoneRates[zone]; ok {
		return rate
	}
	if zone <= p.NearZoneMax {
		return p.NearRatePerKg
	}
	return p.FarRatePerKg
}

// Validate checks the policy for values that would make prices meaningless.
func (p Policy) Validate() error {
	var errs []error
	if p.VolumetricDivisor <= 0 || !finite(p.VolumetricDivisor) {
		errs = append(errs, errors.New("volumetric divisor must be positive"))
	}
	if p.OverweightThresholdKg < 0 || !finite(p.OverweightThresholdKg) {
		errs = append(errs, errors.New("overweight threshold must not be negative"))
	}
	if p.NearRatePerKg < 0 || p.FarRatePerKg < 0 || !finite(p.NearRatePerKg) || !finite(p.FarRatePerKg) {
		errs = append(errs, errors.New("overweight rates must not be negative"))
	}
	for zone, rate := range p.ZoneRates {
		if rate < 0 || !finite(rate) {
			errs = append(errs, fmt.Errorf("zone %d rate must not be negative", zone))
		}
	}
	return errors.Join(errs...)
}

// Source supplies the policy in force, which may change at runtime.
type Source interface {
	Current() Policy
}

type fixed Policy

func (f fixed) Current() Policy { return Policy(f) }

// Fixed returns a Source that always yields p.
func Fixed(p Policy) Source {
	return fixed(p)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

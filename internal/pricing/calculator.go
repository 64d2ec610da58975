// Package pricing turns a resolved tariff record and a shipment into a price.
// Everything here is pure: no I/O, no clocks, no shared state.
package pricing

import (
	"fmt"
	"math"

	"github.com/tournevent/tarif/pkg/tariff"
)

// Result is the priced part of a quote; provenance is attached by the caller.
type Result struct {
	BasePrice          float64
	OverweightCharge   float64
	CODFee             float64
	Total              float64
	BillableWeightKg   float64
	VolumetricWeightKg float64
	RatePerKg          float64
	Zone               int
}

// Validate rejects negative or non-finite numbers and unknown delivery modes.
func Validate(req tariff.ShipmentRequest) error {
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: unknown delivery mode %q", tariff.ErrInvalidShipmentRequest, req.Mode)
	}
	fields := []struct {
		name  string
		value float64
	}{
		{"weight", req.ActualWeightKg},
		{"length", req.Dimensions.Length},
		{"width", req.Dimensions.Width},
		{"height", req.Dimensions.Height},
		{"declared value", req.DeclaredValue},
	}
	for _, f := range fields {
		if !finite(f.value) || f.value < 0 {
			return fmt.Errorf("%w: %s must be a finite non-negative number", tariff.ErrInvalidShipmentRequest, f.name)
		}
	}
	return nil
}

// VolumetricWeight returns L·W·H / divisor in kg.
func VolumetricWeight(d tariff.Dimensions, divisor float64) float64 {
	if divisor <= 0 {
		divisor = DefaultPolicy().VolumetricDivisor
	}
	return d.Length * d.Width * d.Height / divisor
}

// BillableWeight is the greater of the actual and volumetric weights.
func BillableWeight(actualKg, volumetricKg float64) float64 {
	return math.Max(actualKg, volumetricKg)
}

// OverweightCharge bills every started kilogram above threshold at ratePerKg.
func OverweightCharge(billableKg, thresholdKg, ratePerKg float64) float64 {
	over := billableKg - thresholdKg
	if over <= 0 {
		return 0
	}
	// Tolerates float noise just above a whole kilogram.
	return math.Max(1, math.Ceil(over-ceilEpsilon)) * ratePerKg
}

// CODFee is round(declared·pct/100) + fixed for a positive declared value, else zero.
func CODFee(declaredValue, percentage, fixed float64) float64 {
	if declaredValue <= 0 {
		return 0
	}
	return math.Round(declaredValue*percentage/100) + fixed
}

// Calculate prices a shipment against a tariff record.
//
// Office delivery against a record without an office price fails with
// tariff.ErrDeliveryModeUnavailable; the home price is never substituted here.
func Calculate(rec tariff.TariffRecord, req tariff.ShipmentRequest, policy Policy) (Result, error) {
	if err := Validate(req); err != nil {
		return Result{}, err
	}

	base := rec.HomePrice
	if req.Mode == tariff.DeliveryOffice {
		if rec.OfficePrice == nil {
			return Result{}, fmt.Errorf("%w: no counter service for this destination", tariff.ErrDeliveryModeUnavailable)
		}
		base = *rec.OfficePrice
	}

	volumetric := VolumetricWeight(req.Dimensions, policy.VolumetricDivisor)
	billable := BillableWeight(req.ActualWeightKg, volumetric)

	rate := rec.OverweightRatePerKg
	if rate <= 0 {
		rate = policy.RateForZone(rec.Zone)
	}

	overweight := OverweightCharge(billable, threshold(rec, policy), rate)
	cod := CODFee(req.DeclaredValue, rec.CODFeePercentage, rec.CODFeeFixed)

	return Result{
		BasePrice:          base,
		OverweightCharge:   overweight,
		CODFee:             cod,
		Total:              base + overweight + cod,
		BillableWeightKg:   billable,
		VolumetricWeightKg: volumetric,
		RatePerKg:          rate,
		Zone:               rec.Zone,
	}, nil
}

func threshold(rec tariff.TariffRecord, policy Policy) float64 {
	if rec.OverweightThresholdKg > 0 {
		return rec.OverweightThresholdKg
	}
	if policy.OverweightThresholdKg > 0 {
		return policy.OverweightThresholdKg
	}
	return tariff.DefaultOverweightThresholdKg
}

const ceilEpsilon = 1e-9

package tariff

import (
	"time"
)

// DeliveryMode is where the parcel is handed over to the recipient.
type DeliveryMode string

const (
	// DeliveryHome delivers to the recipient's address.
	DeliveryHome DeliveryMode = "home"
	// DeliveryOffice delivers to a counter / pickup point (stop desk).
	DeliveryOffice DeliveryMode = "office"
)

// Valid reports whether m is a known delivery mode.
func (m DeliveryMode) Valid() bool {
	return m == DeliveryHome || m == DeliveryOffice
}

// DataSource tags where the tariff behind a quote came from.
type DataSource string

const (
	SourceLive   DataSource = "live"
	SourceCache  DataSource = "cache"
	SourceStale  DataSource = "stale"
	SourceStatic DataSource = "static"
)

// DefaultOverweightThresholdKg applies when a tariff record carries no threshold.
const DefaultOverweightThresholdKg = 5.0

// Province is a first-level administrative unit (wilaya).
type Province struct {
	Code int
	Name string
	Zone int
}

// CommuneTariff is a pricing snapshot some providers return inline with communes.
type CommuneTariff struct {
	HomePrice   float64
	OfficePrice *float64
}

// Commune is a second-level administrative unit. Name is unique only within its province.
type Commune struct {
	Name               string
	ProvinceCode       int
	HasCounterDelivery bool
	IsDeliverable      bool
	Tariff             *CommuneTariff
}

// CommuneMatch is a search result.
type CommuneMatch struct {
	Commune      Commune
	ProvinceName string
	Exact        bool
}

// TariffRecord is the pricing applicable to a (province, commune) pair.
// OfficePrice is nil when the commune has no counter service. Records where
// OfficePrice exceeds HomePrice are kept as-is.
type TariffRecord struct {
	HomePrice             float64
	OfficePrice           *float64
	Zone                  int
	OverweightThresholdKg float64
	OverweightRatePerKg   float64
	CODFeePercentage      float64
	CODFeeFixed           float64
	InsurancePercentage   float64
}

// Threshold returns the overweight threshold, falling back to the default.
func (r TariffRecord) Threshold() float64 {
	if r.OverweightThresholdKg > 0 {
		return r.OverweightThresholdKg
	}
	return DefaultOverweightThresholdKg
}

// TariffTable is the normalized result of a fee lookup between two provinces.
type TariffTable struct {
	Provider     string
	FromProvince int
	ToProvince   int
	Zone         int
	// Default applies to communes without their own entry. Nil when the provider
	// only prices per commune.
	Default    *TariffRecord
	PerCommune map[string]TariffRecord // keyed by NormalizeName(commune)
}

// Lookup returns the record for a commune, or the province default.
func (t *TariffTable) Lookup(commune string) (TariffRecord, bool) {
	if t == nil {
		return TariffRecord{}, false
	}
	if rec, ok := t.PerCommune[NormalizeName(commune)]; ok {
		return rec, true
	}
	if t.Default != nil {
		return *t.Default, true
	}
	return TariffRecord{}, false
}

// Dimensions of a parcel in centimetres.
type Dimensions struct {
	Length float64
	Width  float64
	Height float64
}

// ShipmentRequest describes the parcel being quoted.
type ShipmentRequest struct {
	Mode           DeliveryMode
	ActualWeightKg float64
	Dimensions     Dimensions
	DeclaredValue  float64
}

// Destination is either free text or a structured (province, commune) pair.
type Destination struct {
	Query        string
	ProvinceCode int
	CommuneName  string
}

// Structured reports whether the destination carries an explicit province code.
func (d Destination) Structured() bool {
	return d.ProvinceCode > 0
}

// PriceBreakdown is the final quote.
type PriceBreakdown struct {
	QuoteID            string
	BasePrice          float64
	OverweightCharge   float64
	CODFee             float64
	Total              float64
	Mode               DeliveryMode
	ModeFallback       bool // office was requested but home was priced
	BillableWeightKg   float64
	VolumetricWeightKg float64
	Zone               int
	DataSource         DataSource
	Provider           string
	ProvinceCode       int
	ProvinceName       string
	Commune            string
	ComputedAt         time.Time
}

// Float returns a pointer to v, for optional prices.
func Float(v float64) *float64 {
	return &v
}

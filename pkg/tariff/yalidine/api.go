package yalidine

import (
	"context"
	"time"
)

// APIClient defines the Yalidine API operations used for tariff resolution.
// Listing endpoints are paginated: pass "" for the first page, then the
// previous page's Links.Next.
type APIClient interface {
	// ListWilayas fetches one page of GET /wilayas/.
	ListWilayas(ctx context.Context, next string) (*WilayaPage, error)

	// ListCommunes fetches one page of GET /communes/, filtered by wilaya when wilayaID > 0.
	ListCommunes(ctx context.Context, wilayaID int, next string) (*CommunePage, error)

	// GetFees fetches GET /fees/?from_wilaya_id=&to_wilaya_id=. The endpoint is slow,
	// so each attempt carries its own timeout.
	GetFees(ctx context.Context, fromWilayaID, toWilayaID int, timeout time.Duration) (*FeesResponse, error)
}

// ============================================================================
// API Response Types (match Yalidine REST API v1 structure)
// ============================================================================

// Links carries pagination URLs.
type Links struct {
	Self   string `json:"self"`
	Before string `json:"before"`
	Next   string `json:"next"`
}

// WilayaPage is one page of wilayas.
type WilayaPage struct {
	HasMore   bool     `json:"has_more"`
	TotalData int      `json:"total_data"`
	Data      []Wilaya `json:"data"`
	Links     Links    `json:"links"`
}

// Wilaya is a province as Yalidine reports it.
type Wilaya struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Zone          int    `json:"zone"`
	IsDeliverable int    `json:"is_deliverable"` // 0 or 1
}

// CommunePage is one page of communes.
type CommunePage struct {
	HasMore   bool      `json:"has_more"`
	TotalData int       `json:"total_data"`
	Data      []Commune `json:"data"`
	Links     Links     `json:"links"`
}

// Commune is a commune as Yalidine reports it.
type Commune struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	WilayaID           int    `json:"wilaya_id"`
	WilayaName         string `json:"wilaya_name"`
	HasStopDesk        int    `json:"has_stop_desk"`  // 0 or 1
	IsDeliverable      int    `json:"is_deliverable"` // 0 or 1
	DeliveryTimeParcel int    `json:"delivery_time_parcel"`
}

// FeesResponse is the fee grid between two wilayas.
type FeesResponse struct {
	FromWilayaName      string                `json:"from_wilaya_name"`
	ToWilayaName        string                `json:"to_wilaya_name"`
	Zone                int                   `json:"zone"`
	RetourFee           float64               `json:"retour_fee"`
	CODPercentage       float64               `json:"cod_percentage"`
	InsurancePercentage float64               `json:"insurance_percentage"`
	OversizeFee         float64               `json:"oversize_fee"` // per kg above the threshold
	PerCommune          map[string]CommuneFee `json:"per_commune"`  // keyed by commune ID
}

// CommuneFee is the price of one destination commune. Desk prices are null
// where the commune has no stop desk.
type CommuneFee struct {
	CommuneID    int      `json:"commune_id"`
	CommuneName  string   `json:"commune_name"`
	ExpressHome  *float64 `json:"express_home"`
	ExpressDesk  *float64 `json:"express_desk"`
	EconomicHome *float64 `json:"economic_home"`
	EconomicDesk *float64 `json:"economic_desk"`
}

// APIError represents an error response from the Yalidine API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

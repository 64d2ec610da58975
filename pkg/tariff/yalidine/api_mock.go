package yalidine

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration
	// PageSize splits canned listings into pages to exercise pagination. Zero means one page.
	PageSize int

	OnListWilayas  func(ctx context.Context, next string) (*WilayaPage, error)
	OnListCommunes func(ctx context.Context, wilayaID int, next string) (*CommunePage, error)
	OnGetFees      func(ctx context.Context, from, to int, timeout time.Duration) (*FeesResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

var mockWilayas = []Wilaya{
	{ID: 16, Name: "Alger", Zone: 1, IsDeliverable: 1},
	{ID: 9, Name: "Blida", Zone: 1, IsDeliverable: 1},
	{ID: 31, Name: "Oran", Zone: 2, IsDeliverable: 1},
	{ID: 6, Name: "Béjaïa", Zone: 2, IsDeliverable: 1},
}

var mockCommunes = []Commune{
	{ID: 1601, Name: "Alger Centre", WilayaID: 16, WilayaName: "Alger", HasStopDesk: 1, IsDeliverable: 1},
	{ID: 1628, Name: "Bab Ezzouar", WilayaID: 16, WilayaName: "Alger", HasStopDesk: 1, IsDeliverable: 1},
	{ID: 901, Name: "Blida", WilayaID: 9, WilayaName: "Blida", HasStopDesk: 1, IsDeliverable: 1},
	{ID: 3101, Name: "Oran", WilayaID: 31, WilayaName: "Oran", HasStopDesk: 1, IsDeliverable: 1},
	{ID: 3102, Name: "Centre-ville", WilayaID: 31, WilayaName: "Oran", HasStopDesk: 1, IsDeliverable: 1},
	{ID: 3116, Name: "Es Senia", WilayaID: 31, WilayaName: "Oran", HasStopDesk: 0, IsDeliverable: 1},
	{ID: 601, Name: "Béjaïa", WilayaID: 6, WilayaName: "Béjaïa", HasStopDesk: 1, IsDeliverable: 1},
}

func (m *MockAPIClient) wait() {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
}

func (m *MockAPIClient) simulatedError() error {
	return &APIError{StatusCode: 500, Code: "MOCK_ERROR", Message: "Simulated API error"}
}

// ListWilayas returns mock wilayas.
func (m *MockAPIClient) ListWilayas(ctx context.Context, next string) (*WilayaPage, error) {
	m.wait()
	if m.SimulateErrors {
		return nil, m.simulatedError()
	}
	if m.OnListWilayas != nil {
		return m.OnListWilayas(ctx, next)
	}

	data, hasMore, link := paginate(mockWilayas, next, m.PageSize, "/wilayas/")
	return &WilayaPage{HasMore: hasMore, TotalData: len(mockWilayas), Data: data, Links: Links{Next: link}}, nil
}

// ListCommunes returns mock communes.
func (m *MockAPIClient) ListCommunes(ctx context.Context, wilayaID int, next string) (*CommunePage, error) {
	m.wait()
	if m.SimulateErrors {
		return nil, m.simulatedError()
	}
	if m.OnListCommunes != nil {
		return m.OnListCommunes(ctx, wilayaID, next)
	}

	var all []Commune
	for _, c := range mockCommunes {
		if wilayaID == 0 || c.WilayaID == wilayaID {
			all = append(all, c)
		}
	}
	data, hasMore, link := paginate(all, next, m.PageSize, "/communes/")
	return &CommunePage{HasMore: hasMore, TotalData: len(all), Data: data, Links: Links{Next: link}}, nil
}

// GetFees returns a mock fee grid priced by the destination's zone.
func (m *MockAPIClient) GetFees(ctx context.Context, from, to int, timeout time.Duration) (*FeesResponse, error) {
	m.wait()
	if m.SimulateErrors {
		return nil, m.simulatedError()
	}
	if m.OnGetFees != nil {
		return m.OnGetFees(ctx, from, to, timeout)
	}

	zone := 0
	var toName string
	for _, w := range mockWilayas {
		if w.ID == to {
			zone, toName = w.Zone, w.Name
		}
	}
	if zone == 0 {
		return nil, &APIError{StatusCode: 404, Code: "NOT_FOUND", Message: fmt.Sprintf("wilaya %d not found", to)}
	}

	home := 400.0 + float64(zone-1)*200
	resp := &FeesResponse{
		ToWilayaName:        toName,
		Zone:                zone,
		CODPercentage:       1,
		InsurancePercentage: 1,
		OversizeFee:         50 * float64(zone),
		RetourFee:           250,
		PerCommune:          make(map[string]CommuneFee),
	}
	for _, c := range mockCommunes {
		if c.WilayaID != to {
			continue
		}
		fee := CommuneFee{CommuneID: c.ID, CommuneName: c.Name, ExpressHome: price(home)}
		if c.HasStopDesk == 1 {
			fee.ExpressDesk = price(home - 50)
		}
		resp.PerCommune[strconv.Itoa(c.ID)] = fee
	}
	return resp, nil
}

func price(v float64) *float64 {
	return &v
}

// paginate slices items into pages; next encodes the offset as "<path>?page=N".
func paginate[T any](items []T, next string, size int, path string) ([]T, bool, string) {
	if size <= 0 || size >= len(items) {
		return items, false, ""
	}
	page := 1
	if next != "" {
		if _, err := fmt.Sscanf(next, path+"?page=%d", &page); err != nil {
			page = 1
		}
	}
	start := (page - 1) * size
	if start >= len(items) {
		return nil, false, ""
	}
	end := start + size
	if end >= len(items) {
		return items[start:], false, ""
	}
	return items[start:end], true, fmt.Sprintf("%s?page=%d", path, page+1)
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)

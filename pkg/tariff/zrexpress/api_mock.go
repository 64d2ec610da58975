package zrexpress

import (
	"context"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetTarification func(ctx context.Context) ([]Tarif, error)
	OnListCommunes    func(ctx context.Context) ([]CommuneRecord, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) wait() {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
}

// GetTarification returns a mock price list.
func (m *MockAPIClient) GetTarification(ctx context.Context) ([]Tarif, error) {
	m.wait()
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 503, Message: "Simulated API error"}
	}
	if m.OnGetTarification != nil {
		return m.OnGetTarification(ctx)
	}

	return []Tarif{
		{IDWilaya: "16", Wilaya: "Alger", Domicile: "400", Stopdesk: "300", Annuler: "200"},
		{IDWilaya: "31", Wilaya: "Oran", Domicile: "650", Stopdesk: "400", Annuler: "250"},
		{IDWilaya: "11", Wilaya: "Tamanrasset", Domicile: "1400", Stopdesk: "0", Annuler: "400"},
	}, nil
}

// ListCommunes returns mock communes.
func (m *MockAPIClient) ListCommunes(ctx context.Context) ([]CommuneRecord, error) {
	m.wait()
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 503, Message: "Simulated API error"}
	}
	if m.OnListCommunes != nil {
		return m.OnListCommunes(ctx)
	}

	return []CommuneRecord{
		{ID: "1", Nom: "Alger Centre", IDWilaya: "16", StopDesk: "1"},
		{ID: "2", Nom: "Bab Ezzouar", IDWilaya: "16", StopDesk: "1"},
		{ID: "3", Nom: "Oran", IDWilaya: "31", StopDesk: "1"},
		{ID: "4", Nom: "Bir El Djir", IDWilaya: "31", StopDesk: "0"},
		{ID: "5", Nom: "Tamanrasset", IDWilaya: "11", StopDesk: "0"},
	}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)

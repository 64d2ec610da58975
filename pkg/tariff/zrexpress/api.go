package zrexpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// APIClient defines the ZR Express API operations used for tariff resolution.
type APIClient interface {
	// GetTarification fetches GET /tarification: one price line per wilaya.
	GetTarification(ctx context.Context) ([]Tarif, error)

	// ListCommunes fetches GET /communes: every commune of every wilaya.
	ListCommunes(ctx context.Context) ([]CommuneRecord, error)
}

// ============================================================================
// API Response Types (match ZR Express API structure)
// ============================================================================

// Value is a scalar the API sends either as a JSON string or a JSON number.
// The raw text is kept; parsing happens in the normalize functions.
type Value string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	case bytes.Equal(b, []byte("true")):
		*v = "1"
		return nil
	case bytes.Equal(b, []byte("false")):
		*v = "0"
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("unsupported value %s", b)
		}
		*v = Value(n.String())
		return nil
	}
}

// Tarif is the price line for one destination wilaya.
type Tarif struct {
	IDWilaya Value  `json:"IDWilaya"`
	Wilaya   string `json:"Wilaya"`
	Domicile Value  `json:"Domicile"`
	Stopdesk Value  `json:"Stopdesk"`
	Annuler  Value  `json:"Annuler"`
}

// CommuneRecord is a commune as ZR Express reports it.
type CommuneRecord struct {
	ID       Value  `json:"ID"`
	Nom      string `json:"Nom"`
	IDWilaya Value  `json:"IDWilaya"`
	StopDesk Value  `json:"StopDesk"`
	Livrable Value  `json:"Livrable"` // absent means deliverable
}

// APIError represents an error response from the ZR Express API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP_%d: %s", e.StatusCode, e.Message)
}

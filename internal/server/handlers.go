package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/tournevent/tarif/internal/quote"
	"github.com/tournevent/tarif/internal/ratelimit"
	"github.com/tournevent/tarif/pkg/tariff"
	"go.uber.org/zap"
)

// destinationInput accepts either "commune, wilaya" free text or
// {"provinceCode": 16, "communeName": "Bab Ezzouar"}.
type destinationInput struct {
	tariff.Destination
}

func (d *destinationInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &d.Query)
	}
	var structured struct {
		ProvinceCode int    `json:"provinceCode"`
		CommuneName  string `json:"communeName"`
	}
	if err := json.Unmarshal(b, &structured); err != nil {
		return err
	}
	if structured.ProvinceCode <= 0 {
		return errors.New("provinceCode must be positive")
	}
	d.ProvinceCode = structured.ProvinceCode
	d.CommuneName = structured.CommuneName
	return nil
}

type dimensionsInput struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type quoteRequest struct {
	Destination   *destinationInput `json:"destination"`
	DeliveryMode  string            `json:"deliveryMode"`
	WeightKg      float64           `json:"weightKg"`
	Dimensions    dimensionsInput   `json:"dimensions"`
	DeclaredValue float64           `json:"declaredValue"`
}

type quoteResponse struct {
	QuoteID            string    `json:"quoteId"`
	BasePrice          float64   `json:"basePrice"`
	OverweightCharge   float64   `json:"overweightCharge"`
	CODFee             float64   `json:"codFee"`
	Total              float64   `json:"total"`
	DeliveryMode       string    `json:"deliveryMode"`
	ModeFallback       bool      `json:"modeFallback"`
	BillableWeightKg   float64   `json:"billableWeightKg"`
	VolumetricWeightKg float64   `json:"volumetricWeightKg"`
	Zone               int       `json:"zone"`
	DataSource         string    `json:"dataSource"`
	Provider           string    `json:"provider"`
	ProvinceCode       int       `json:"provinceCode"`
	ProvinceName       string    `json:"provinceName"`
	Commune            string    `json:"commune,omitempty"`
	ComputedAt         time.Time `json:"computedAt"`
}

func toQuoteResponse(b *tariff.PriceBreakdown) quoteResponse {
	return quoteResponse{
		QuoteID:            b.QuoteID,
		BasePrice:          b.BasePrice,
		OverweightCharge:   b.OverweightCharge,
		CODFee:             b.CODFee,
		Total:              b.Total,
		DeliveryMode:       string(b.Mode),
		ModeFallback:       b.ModeFallback,
		BillableWeightKg:   b.BillableWeightKg,
		VolumetricWeightKg: b.VolumetricWeightKg,
		Zone:               b.Zone,
		DataSource:         string(b.DataSource),
		Provider:           b.Provider,
		ProvinceCode:       b.ProvinceCode,
		ProvinceName:       b.ProvinceName,
		Commune:            b.Commune,
		ComputedAt:         b.ComputedAt,
	}
}

type communeResponse struct {
	Name               string  `json:"name"`
	ProvinceCode       int     `json:"provinceCode"`
	ProvinceName       string  `json:"provinceName"`
	HasCounterDelivery bool    `json:"hasCounterDelivery"`
	IsDeliverable      bool    `json:"isDeliverable"`
	Exact              bool    `json:"exact"`
	HomePrice          float64 `json:"homePrice,omitempty"`
	OfficePrice        float64 `json:"officePrice,omitempty"`
}

type provinceResponse struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Zone int    `json:"zone"`
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	body.Error.RequestID = middleware.GetReqID(r.Context())
	writeJSON(w, status, body)
}

// statusFor maps engine errors to HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, tariff.ErrInvalidShipmentRequest):
		return http.StatusBadRequest, "INVALID_SHIPMENT_REQUEST"
	case errors.Is(err, tariff.ErrDestinationNotFound):
		return http.StatusNotFound, "DESTINATION_NOT_FOUND"
	case errors.Is(err, tariff.ErrDeliveryModeUnavailable):
		return http.StatusUnprocessableEntity, "DELIVERY_MODE_UNAVAILABLE"
	case errors.Is(err, tariff.ErrRateLimitTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "RATE_LIMIT_TIMEOUT"
	case errors.Is(err, ratelimit.ErrClosed):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN"
	case errors.Is(err, tariff.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody reads the response.
		s.logger.Ctx(r.Context()).Debug("Request cancelled", zap.String("path", r.URL.Path))
		return
	}
	if status >= http.StatusInternalServerError {
		s.logger.Ctx(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	writeError(w, r, status, code, err.Error())
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "invalid JSON: "+err.Error())
		return
	}
	if req.Destination == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_SHIPMENT_REQUEST", "destination is required")
		return
	}

	mode := tariff.DeliveryMode(strings.ToLower(strings.TrimSpace(req.DeliveryMode)))
	if mode == "" {
		mode = tariff.DeliveryHome
	}

	breakdown, err := s.engine.ResolvePrice(r.Context(), req.Destination.Destination, tariff.ShipmentRequest{
		Mode:           mode,
		ActualWeightKg: req.WeightKg,
		Dimensions: tariff.Dimensions{
			Length: req.Dimensions.Length,
			Width:  req.Dimensions.Width,
			Height: req.Dimensions.Height,
		},
		DeclaredValue: req.DeclaredValue,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(breakdown))
}

func (s *Server) handleSearchCommunes(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", "q is required")
		return
	}

	matches, err := s.engine.SearchCommune(r.Context(), term)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]communeResponse, 0, len(matches))
	for _, m := range matches {
		c := communeResponse{
			Name:               m.Commune.Name,
			ProvinceCode:       m.Commune.ProvinceCode,
			ProvinceName:       m.ProvinceName,
			HasCounterDelivery: m.Commune.HasCounterDelivery,
			IsDeliverable:      m.Commune.IsDeliverable,
			Exact:              m.Exact,
		}
		if t := m.Commune.Tariff; t != nil {
			c.HomePrice = t.HomePrice
			if t.OfficePrice != nil {
				c.OfficePrice = *t.OfficePrice
			}
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

func (s *Server) handleProvinces(w http.ResponseWriter, r *http.Request) {
	provinces, src, err := s.engine.Provinces(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]provinceResponse, 0, len(provinces))
	for _, p := range provinces {
		out = append(out, provinceResponse{Code: p.Code, Name: p.Name, Zone: p.Zone})
	}
	writeJSON(w, http.StatusOK, map[string]any{"provinces": out, "dataSource": src})
}

type reloadResponse struct {
	quote.ModeReport
	Error string `json:"error,omitempty"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.ForceReload(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, reloadResponse{
			ModeReport: report,
			Error:      fmt.Sprintf("reload failed: %v", err),
		})
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{ModeReport: report})
}

func (s *Server) handleMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Mode())
}

package yalidine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedResponse is returned when a response body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	apiID      string
	apiToken   string
	httpClient *http.Client
	timeout    time.Duration
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL  string
	APIID    string
	APIToken string
	// Timeout bounds listing calls. Fee calls use the per-attempt timeout instead.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.yalidine.app/v1"
	}

	return &HTTPAPIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiID:      cfg.APIID,
		apiToken:   cfg.APIToken,
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// ListWilayas fetches one page of wilayas.
func (c *HTTPAPIClient) ListWilayas(ctx context.Context, next string) (*WilayaPage, error) {
	target := next
	if target == "" {
		target = c.baseURL + "/wilayas/"
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var page WilayaPage
	if err := c.get(ctx, target, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListCommunes fetches one page of communes.
func (c *HTTPAPIClient) ListCommunes(ctx context.Context, wilayaID int, next string) (*CommunePage, error) {
	target := next
	if target == "" {
		target = c.baseURL + "/communes/"
		if wilayaID > 0 {
			target += "?wilaya_id=" + strconv.Itoa(wilayaID)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var page CommunePage
	if err := c.get(ctx, target, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetFees fetches the fee grid between two wilayas within timeout.
func (c *HTTPAPIClient) GetFees(ctx context.Context, fromWilayaID, toWilayaID int, timeout time.Duration) (*FeesResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("from_wilaya_id", strconv.Itoa(fromWilayaID))
	q.Set("to_wilaya_id", strconv.Itoa(toWilayaID))

	var fees FeesResponse
	if err := c.get(ctx, c.baseURL+"/fees/?"+q.Encode(), &fees); err != nil {
		return nil, err
	}
	return &fees, nil
}

func (c *HTTPAPIClient) get(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-ID", c.apiID)
	req.Header.Set("X-API-TOKEN", c.apiToken)
	req.Header.Set("User-Agent", "tournevent-tarif/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
	}

	var payload struct {
		Error struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Error.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)

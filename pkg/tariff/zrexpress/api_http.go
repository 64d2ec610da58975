package zrexpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMalformedResponse is returned when a response body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	token      string
	key        string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	Token   string
	Key     string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://procolis.com/api_v1"
	}

	return &HTTPAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		key:     cfg.Key,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetTarification fetches the per-wilaya price list.
func (c *HTTPAPIClient) GetTarification(ctx context.Context) ([]Tarif, error) {
	var out []Tarif
	if err := c.get(ctx, "/tarification", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCommunes fetches every commune.
func (c *HTTPAPIClient) ListCommunes(ctx context.Context) ([]CommuneRecord, error) {
	var out []CommuneRecord
	if err := c.get(ctx, "/communes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPAPIClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("token", c.token)
	req.Header.Set("key", c.key)
	req.Header.Set("User-Agent", "tournevent-tarif/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)

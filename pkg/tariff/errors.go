package tariff

import (
	"errors"
	"fmt"
)

// ProviderError represents a failure talking to a tariff provider.
// Every ProviderError is an ErrProviderUnavailable.
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying cause and the unavailability sentinel.
func (e *ProviderError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrProviderUnavailable, e.Cause}
	}
	return []error{ErrProviderUnavailable}
}

// Is implements errors.Is for ProviderError.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// WithCause adds a cause to the error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *ProviderError) WithStatusCode(code int) *ProviderError {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *ProviderError) WithRetryable(retryable bool) *ProviderError {
	e.Retryable = retryable
	return e
}

// Provider error codes.
const (
	CodeTimeout     = "TIMEOUT"
	CodeHTTPStatus  = "HTTP_STATUS"
	CodeMalformed   = "MALFORMED_PAYLOAD"
	CodeTransport   = "TRANSPORT"
	CodeUnsupported = "UNSUPPORTED"
)

// Sentinel errors surfaced by the resolution engine.
var (
	// ErrProviderUnavailable covers network failures, timeouts, non-2xx responses and
	// malformed payloads. It is handled by the fallback controller.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrDestinationNotFound indicates no known commune matches the destination.
	ErrDestinationNotFound = errors.New("destination not found")

	// ErrDeliveryModeUnavailable indicates office delivery was requested where no counter exists.
	ErrDeliveryModeUnavailable = errors.New("delivery mode unavailable")

	// ErrInvalidShipmentRequest indicates malformed numeric inputs or an unknown mode.
	ErrInvalidShipmentRequest = errors.New("invalid shipment request")

	// ErrRateLimitTimeout indicates the caller's deadline passed while its call was queued.
	ErrRateLimitTimeout = errors.New("rate limit queue timeout")

	// ErrProviderNotFound indicates the requested provider is not registered.
	ErrProviderNotFound = errors.New("provider not found")
)

// IsRetryable returns true if the error is worth another attempt.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}
	return false
}

// Unavailable wraps err as a ProviderError unless it already is one.
func Unavailable(provider, code string, err error) error {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return err
	}
	return NewProviderError(provider, code, "call failed").WithCause(err)
}

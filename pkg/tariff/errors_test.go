package tariff_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tournevent/tarif/pkg/tariff"
)

func TestProviderError_Error(t *testing.T) {
	err := tariff.NewProviderError("yalidine", tariff.CodeHTTPStatus, "upstream returned 500")
	assert.Equal(t, "yalidine error (HTTP_STATUS): upstream returned 500", err.Error())
}

func TestProviderError_ErrorWithCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := tariff.NewProviderError("zrexpress", tariff.CodeTransport, "request failed").WithCause(cause)
	assert.Contains(t, err.Error(), "request failed")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := tariff.NewProviderError("yalidine", tariff.CodeTimeout, "timed out").WithCause(cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, tariff.ErrProviderUnavailable)
}

func TestProviderError_IsSameCode(t *testing.T) {
	a := tariff.NewProviderError("yalidine", tariff.CodeMalformed, "missing price")
	b := tariff.NewProviderError("zrexpress", tariff.CodeMalformed, "other")
	assert.True(t, errors.Is(a, b))
}

func TestProviderError_IsNotOtherCode(t *testing.T) {
	a := tariff.NewProviderError("yalidine", tariff.CodeMalformed, "missing price")
	b := tariff.NewProviderError("yalidine", tariff.CodeTimeout, "other")
	assert.False(t, errors.Is(a, b))
}

func TestProviderError_Builders(t *testing.T) {
	err := tariff.NewProviderError("yalidine", tariff.CodeHTTPStatus, "bad gateway").
		WithStatusCode(502).
		WithRetryable(true)
	assert.Equal(t, 502, err.StatusCode)
	assert.True(t, tariff.IsRetryable(err))
}

func TestIsRetryable_PlainError(t *testing.T) {
	assert.False(t, tariff.IsRetryable(errors.New("boom")))
	assert.False(t, tariff.IsRetryable(tariff.ErrDestinationNotFound))
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := tariff.Unavailable("yalidine", tariff.CodeTransport, cause)
	assert.ErrorIs(t, err, tariff.ErrProviderUnavailable)
	assert.ErrorIs(t, err, cause)

	var pe *tariff.ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, tariff.CodeTransport, pe.Code)

	original := tariff.NewProviderError("zrexpress", tariff.CodeMalformed, "bad json")
	assert.Same(t, original, tariff.Unavailable("yalidine", tariff.CodeTransport, original))
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrProviderUnavailable", tariff.ErrProviderUnavailable},
		{"ErrDestinationNotFound", tariff.ErrDestinationNotFound},
		{"ErrDeliveryModeUnavailable", tariff.ErrDeliveryModeUnavailable},
		{"ErrInvalidShipmentRequest", tariff.ErrInvalidShipmentRequest},
		{"ErrRateLimitTimeout", tariff.ErrRateLimitTimeout},
		{"ErrProviderNotFound", tariff.ErrProviderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

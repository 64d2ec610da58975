package yalidine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/tournevent/tarif/pkg/tariff/yalidine"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// countingScheduler runs tasks inline and counts them per key.
type countingScheduler struct {
	calls atomic.Int64
	keys  []string
}

func (s *countingScheduler) Schedule(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s.calls.Add(1)
	s.keys = append(s.keys, key)
	return fn(ctx)
}

func newTestClient(mockClient *yalidine.MockAPIClient, scheduler *countingScheduler) *yalidine.Client {
	logger := otelzap.New(zap.NewNop())
	return yalidine.NewWithAPIClient(
		yalidine.Config{},
		mockClient,
		scheduler,
		logger,
		nil,
	)
}

func TestClient_ListProvinces_FollowsPagination(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	mockAPI.PageSize = 1
	sched := &countingScheduler{}
	client := newTestClient(mockAPI, sched)

	provinces, err := client.ListProvinces(context.Background())

	require.NoError(t, err)
	require.Len(t, provinces, 4)
	assert.Equal(t, 6, provinces[0].Code, "sorted by code")
	assert.Equal(t, int64(4), sched.calls.Load(), "one limiter slot per page")
	for _, key := range sched.keys {
		assert.Equal(t, "yalidine", key)
	}
}

func TestClient_ListCommunes_ByProvince(t *testing.T) {
	client := newTestClient(yalidine.NewMockAPIClient(), &countingScheduler{})

	communes, err := client.ListCommunes(context.Background(), 31)

	require.NoError(t, err)
	require.Len(t, communes, 3)
	for _, c := range communes {
		assert.Equal(t, 31, c.ProvinceCode)
	}
	assert.False(t, communes[2].HasCounterDelivery, "Es Senia has no stop desk")
}

func TestClient_SearchCommune(t *testing.T) {
	client := newTestClient(yalidine.NewMockAPIClient(), &countingScheduler{})

	matches, err := client.SearchCommune(context.Background(), "centre ville")

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Oran", matches[0].ProvinceName)
	assert.True(t, matches[0].Exact)
}

func TestClient_GetFee_Success(t *testing.T) {
	client := newTestClient(yalidine.NewMockAPIClient(), &countingScheduler{})

	table, err := client.GetFee(context.Background(), 16, 31)

	require.NoError(t, err)
	assert.Equal(t, "yalidine", table.Provider)
	assert.Equal(t, 2, table.Zone)

	rec, ok := table.Lookup("Centre-ville")
	require.True(t, ok)
	assert.Equal(t, 600.0, rec.HomePrice)
	require.NotNil(t, rec.OfficePrice)
	assert.Equal(t, 550.0, *rec.OfficePrice)
	assert.Equal(t, 100.0, rec.OverweightRatePerKg)

	rec, ok = table.Lookup("es senia")
	require.True(t, ok)
	assert.Nil(t, rec.OfficePrice)
}

func TestClient_GetFee_EscalatesTimeouts(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	var seen []time.Duration
	mockAPI.OnGetFees = func(ctx context.Context, from, to int, timeout time.Duration) (*yalidine.FeesResponse, error) {
		seen = append(seen, timeout)
		if len(seen) < 3 {
			return nil, context.DeadlineExceeded
		}
		return &yalidine.FeesResponse{Zone: 1, PerCommune: map[string]yalidine.CommuneFee{}}, nil
	}
	sched := &countingScheduler{}
	client := newTestClient(mockAPI, sched)

	_, err := client.GetFee(context.Background(), 16, 16)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second, 45 * time.Second}, seen)
	assert.Equal(t, int64(3), sched.calls.Load(), "each attempt takes a limiter slot")
}

func TestClient_GetFee_GivesUpAfterLadder(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	attempts := 0
	mockAPI.OnGetFees = func(ctx context.Context, from, to int, timeout time.Duration) (*yalidine.FeesResponse, error) {
		attempts++
		return nil, context.DeadlineExceeded
	}
	client := newTestClient(mockAPI, &countingScheduler{})

	_, err := client.GetFee(context.Background(), 16, 16)

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, tariff.ErrProviderUnavailable)
	var pe *tariff.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, tariff.CodeTimeout, pe.Code)
}

func TestClient_GetFee_ServerErrorNotRetried(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	sched := &countingScheduler{}
	client := newTestClient(mockAPI, sched)

	_, err := client.GetFee(context.Background(), 16, 31)

	assert.ErrorIs(t, err, tariff.ErrProviderUnavailable)
	assert.Equal(t, int64(1), sched.calls.Load())
	var pe *tariff.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 500, pe.StatusCode)
	assert.True(t, pe.Retryable)
}

func TestClient_GetFee_MalformedRecordRejectsResponse(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	mockAPI.OnGetFees = func(ctx context.Context, from, to int, timeout time.Duration) (*yalidine.FeesResponse, error) {
		home := 500.0
		return &yalidine.FeesResponse{
			Zone: 2,
			PerCommune: map[string]yalidine.CommuneFee{
				"3101": {CommuneID: 3101, CommuneName: "Oran", ExpressHome: &home},
				"3102": {CommuneID: 3102, CommuneName: "Centre-ville"},
			},
		}, nil
	}
	client := newTestClient(mockAPI, &countingScheduler{})

	table, err := client.GetFee(context.Background(), 16, 31)

	assert.Nil(t, table)
	assert.ErrorIs(t, err, tariff.ErrProviderUnavailable)
	assert.True(t, errors.Is(err, tariff.NewProviderError("", tariff.CodeMalformed, "")))
}

func TestClient_CallerCancellationIsNotUnavailability(t *testing.T) {
	mockAPI := yalidine.NewMockAPIClient()
	ctx, cancel := context.WithCancel(context.Background())
	mockAPI.OnListWilayas = func(ctx context.Context, next string) (*yalidine.WilayaPage, error) {
		cancel()
		return nil, ctx.Err()
	}
	client := newTestClient(mockAPI, &countingScheduler{})

	_, err := client.ListProvinces(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, tariff.ErrProviderUnavailable)
}

func TestNormalizeWilayas_RejectsWholeList(t *testing.T) {
	_, err := yalidine.NormalizeWilayas([]yalidine.Wilaya{
		{ID: 16, Name: "Alger", Zone: 1},
		{ID: 31, Name: "Oran", Zone: 0},
	})
	assert.ErrorIs(t, err, tariff.ErrProviderUnavailable)
}

func TestNormalizeFees_EconomicFillsIn(t *testing.T) {
	eco := 450.0
	table, err := yalidine.NormalizeFees(16, 9, &yalidine.FeesResponse{
		Zone:          1,
		CODPercentage: 1,
		PerCommune: map[string]yalidine.CommuneFee{
			"901": {CommuneID: 901, CommuneName: "Blida", EconomicHome: &eco},
		},
	})
	require.NoError(t, err)
	rec, ok := table.Lookup("blida")
	require.True(t, ok)
	assert.Equal(t, 450.0, rec.HomePrice)
	assert.Equal(t, 1.0, rec.CODFeePercentage)
	assert.Nil(t, rec.OfficePrice)
}

func TestClient_Name(t *testing.T) {
	client := newTestClient(yalidine.NewMockAPIClient(), &countingScheduler{})
	assert.Equal(t, "yalidine", client.Name())
}

func TestClient_New_WithMock(t *testing.T) {
	client := yalidine.New(yalidine.Config{UseMock: true}, nil, otelzap.New(zap.NewNop()), nil)

	provinces, err := client.ListProvinces(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, provinces)
}

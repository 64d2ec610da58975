package recordstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/tournevent/tarif/pkg/tariff/recordstore"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func seeded(t *testing.T) (*recordstore.Provider, *recordstore.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	p := recordstore.NewProvider(store, nil, otelzap.New(zap.NewNop()))

	require.NoError(t, p.UpsertProvince(ctx, tariff.Province{Code: 31, Name: "Oran", Zone: 2}))
	require.NoError(t, p.Upsert(ctx, recordstore.Rate{ProvinceCode: 31, HomePrice: 600, OfficePrice: tariff.Float(450)}))
	require.NoError(t, p.Upsert(ctx, recordstore.Rate{ProvinceCode: 31, CommuneName: "Centre-ville", HomePrice: 400, OfficePrice: tariff.Float(350)}))
	require.NoError(t, p.Upsert(ctx, recordstore.Rate{ProvinceCode: 31, CommuneName: "Es Senia", HomePrice: 650}))
	return p, store
}

func TestProvider_GetFee(t *testing.T) {
	p, _ := seeded(t)

	table, err := p.GetFee(context.Background(), 16, 31)

	require.NoError(t, err)
	assert.Equal(t, 2, table.Zone)

	rec, ok := table.Lookup("centre ville")
	require.True(t, ok)
	assert.Equal(t, 400.0, rec.HomePrice)
	assert.Equal(t, 2, rec.Zone)

	rec, ok = table.Lookup("Bir El Djir")
	require.True(t, ok, "province default")
	assert.Equal(t, 600.0, rec.HomePrice)
}

func TestProvider_GetFee_UnknownProvince(t *testing.T) {
	p, _ := seeded(t)

	table, err := p.GetFee(context.Background(), 16, 9)

	require.NoError(t, err)
	_, ok := table.Lookup("Blida")
	assert.False(t, ok)
}

func TestProvider_ListCommunes(t *testing.T) {
	p, _ := seeded(t)

	communes, err := p.ListCommunes(context.Background(), 31)

	require.NoError(t, err)
	require.Len(t, communes, 2)
	assert.Equal(t, "Centre-ville", communes[0].Name)
	assert.True(t, communes[0].HasCounterDelivery)
	assert.False(t, communes[1].HasCounterDelivery)
	require.NotNil(t, communes[0].Tariff)
	assert.Equal(t, 400.0, communes[0].Tariff.HomePrice)
}

func TestProvider_SearchCommune(t *testing.T) {
	p, _ := seeded(t)

	matches, err := p.SearchCommune(context.Background(), "senia")

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Oran", matches[0].ProvinceName)
}

func TestProvider_UpsertNotifiesListeners(t *testing.T) {
	p, _ := seeded(t)
	var changed []recordstore.Rate
	p.OnChange(func(r recordstore.Rate) { changed = append(changed, r) })

	err := p.Upsert(context.Background(), recordstore.Rate{ProvinceCode: 31, CommuneName: "Es Senia", HomePrice: 700})

	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, 700.0, changed[0].HomePrice)

	table, err := p.GetFee(context.Background(), 16, 31)
	require.NoError(t, err)
	rec, _ := table.Lookup("es senia")
	assert.Equal(t, 700.0, rec.HomePrice, "upsert replaces the row")
}

func TestProvider_UpsertRejectsUnknownProvince(t *testing.T) {
	p, _ := seeded(t)
	notified := false
	p.OnChange(func(recordstore.Rate) { notified = true })

	err := p.Upsert(context.Background(), recordstore.Rate{ProvinceCode: 99, HomePrice: 100})

	assert.ErrorIs(t, err, recordstore.ErrUnknownProvince)
	assert.False(t, notified)
}

type brokenStore struct{ recordstore.Store }

func (brokenStore) ListProvinces(context.Context) ([]tariff.Province, error) {
	return nil, errors.New("connection refused")
}

func TestProvider_StoreFailureIsUnavailable(t *testing.T) {
	p := recordstore.NewProvider(brokenStore{recordstore.NewMemoryStore()}, nil, nil)

	_, err := p.ListProvinces(context.Background())

	assert.ErrorIs(t, err, tariff.ErrProviderUnavailable)
}

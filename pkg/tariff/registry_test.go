package tariff_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/tournevent/tarif/pkg/tariff/mock"
)

func TestRegistry_Register(t *testing.T) {
	registry := tariff.NewRegistry()
	registry.Register(mock.New("yalidine"))

	got, err := registry.Get("yalidine")
	require.NoError(t, err)
	assert.Equal(t, "yalidine", got.Name())
}

func TestRegistry_Register_OverrideKeepsPriority(t *testing.T) {
	registry := tariff.NewRegistry()

	registry.Register(mock.New("yalidine"))
	registry.Register(mock.New("zrexpress"))
	replacement := mock.New("yalidine")
	registry.Register(replacement)

	assert.Equal(t, 2, registry.Count())
	assert.Equal(t, []string{"yalidine", "zrexpress"}, registry.Names())

	got, err := registry.Get("yalidine")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
}

func TestRegistry_Get_NotFound(t *testing.T) {
	registry := tariff.NewRegistry()

	_, err := registry.Get("nonexistent")
	assert.True(t, errors.Is(err, tariff.ErrProviderNotFound))
}

func TestRegistry_AllInPriorityOrder(t *testing.T) {
	registry := tariff.NewRegistry()
	registry.Register(mock.New("recordstore"))
	registry.Register(mock.New("yalidine"))
	registry.Register(mock.New("zrexpress"))

	all := registry.All()
	require.Len(t, all, 3)
	assert.Equal(t, "recordstore", all[0].Name())
	assert.Equal(t, "zrexpress", all[2].Name())
}

func TestRegistry_ProbeAll(t *testing.T) {
	registry := tariff.NewRegistry()

	healthy := mock.New("yalidine")
	broken := mock.New("zrexpress")
	broken.FailWithStatus(503)

	registry.Register(healthy)
	registry.Register(broken)

	results := registry.ProbeAll(context.Background())
	require.Len(t, results, 2)
	assert.NoError(t, results["yalidine"])
	assert.ErrorIs(t, results["zrexpress"], tariff.ErrProviderUnavailable)
	assert.Equal(t, int64(1), healthy.Calls().Provinces)
}

package tariff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/tarif/pkg/tariff"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Béjaïa", "bejaia"},
		{"bejaia", "bejaia"},
		{"Centre-ville", "centre ville"},
		{"  centre   VILLE ", "centre ville"},
		{"Aïn Témouchent", "ain temouchent"},
		{"Ouled M'hamed", "ouled m hamed"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tariff.NormalizeName(tt.in), tt.in)
	}
}

func TestMatchCommunes_ExactBeatsPartial(t *testing.T) {
	provinces := tariff.ProvinceIndex([]tariff.Province{
		{Code: 31, Name: "Oran"},
		{Code: 6, Name: "Béjaïa"},
	})
	communes := []tariff.Commune{
		{Name: "Centre-ville", ProvinceCode: 31},
		{Name: "Centre ville", ProvinceCode: 6},
		{Name: "Centre-ville Est", ProvinceCode: 31},
	}

	matches := tariff.MatchCommunes(communes, provinces, "centre ville")
	require.Len(t, matches, 2)
	assert.True(t, matches[0].Exact)
	assert.Equal(t, 6, matches[0].Commune.ProvinceCode, "ties break on province code")
	assert.Equal(t, "Béjaïa", matches[0].ProvinceName)
	assert.Equal(t, 31, matches[1].Commune.ProvinceCode)
}

func TestMatchCommunes_PartialSortedAlphabetically(t *testing.T) {
	communes := []tariff.Commune{
		{Name: "Oued Smar", ProvinceCode: 16},
		{Name: "Oued Koriche", ProvinceCode: 16},
		{Name: "Bab El Oued", ProvinceCode: 16},
	}

	matches := tariff.MatchCommunes(communes, nil, "oued")
	require.Len(t, matches, 3)
	assert.Equal(t, "Bab El Oued", matches[0].Commune.Name)
	assert.Equal(t, "Oued Koriche", matches[1].Commune.Name)
	assert.Equal(t, "Oued Smar", matches[2].Commune.Name)
	assert.False(t, matches[0].Exact)
}

func TestMatchCommunes_EmptyTerm(t *testing.T) {
	assert.Empty(t, tariff.MatchCommunes([]tariff.Commune{{Name: "X"}}, nil, "  "))
}

func TestFindProvince(t *testing.T) {
	provinces := []tariff.Province{
		{Code: 31, Name: "Oran"},
		{Code: 6, Name: "Béjaïa"},
		{Code: 46, Name: "Aïn Témouchent"},
	}

	p, ok := tariff.FindProvince(provinces, "bejaia")
	require.True(t, ok)
	assert.Equal(t, 6, p.Code)

	p, ok = tariff.FindProvince(provinces, "temouchent")
	require.True(t, ok)
	assert.Equal(t, 46, p.Code)

	_, ok = tariff.FindProvince(provinces, "Nowhereville")
	assert.False(t, ok)
}

func TestTariffTable_Lookup(t *testing.T) {
	table := &tariff.TariffTable{
		Default: &tariff.TariffRecord{HomePrice: 600},
		PerCommune: map[string]tariff.TariffRecord{
			tariff.NormalizeName("Centre-ville"): {HomePrice: 400},
		},
	}

	rec, ok := table.Lookup("centre ville")
	require.True(t, ok)
	assert.Equal(t, 400.0, rec.HomePrice)

	rec, ok = table.Lookup("Es Senia")
	require.True(t, ok)
	assert.Equal(t, 600.0, rec.HomePrice)

	table.Default = nil
	_, ok = table.Lookup("Es Senia")
	assert.False(t, ok)

	var nilTable *tariff.TariffTable
	_, ok = nilTable.Lookup("x")
	assert.False(t, ok)
}

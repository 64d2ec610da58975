package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateInput_Rate(t *testing.T) {
	in := rateInput{province: 16, commune: " Bab Ezzouar ", home: 400, office: 350, codPercent: 1}

	r, err := in.rate(true)

	require.NoError(t, err)
	assert.Equal(t, 16, r.ProvinceCode)
	assert.Equal(t, "Bab Ezzouar", r.CommuneName)
	assert.Equal(t, 400.0, r.HomePrice)
	require.NotNil(t, r.OfficePrice)
	assert.Equal(t, 350.0, *r.OfficePrice)
	assert.Equal(t, 1.0, r.CODFeePercentage)
}

func TestRateInput_RateWithoutOffice(t *testing.T) {
	r, err := rateInput{province: 31, home: 600}.rate(false)

	require.NoError(t, err)
	assert.Nil(t, r.OfficePrice, "no --office means no counter service")
	assert.Empty(t, r.CommuneName)
}

func TestRateInput_RateRejectsMissingFields(t *testing.T) {
	_, err := rateInput{home: 400}.rate(false)
	assert.Error(t, err)

	_, err = rateInput{province: 16}.rate(false)
	assert.Error(t, err)
}

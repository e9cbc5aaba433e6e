package geometry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	s, err := ParseSize("600x400")
	require.NoError(t, err)
	assert.Equal(t, Sz(600, 400), s)

	s, err = ParseSize(" 12.5 X 8 ")
	require.NoError(t, err)
	assert.Equal(t, Sz(12.5, 8), s)

	for _, bad := range []string{"", "600", "ax4", "4xb", "600x"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}

	_, err = ParseSize("0x400")
	assert.True(t, errors.Is(err, ErrInvalidGeometry))

	for _, nonFinite := range []string{"inf x 300", "400xInf", "NaNx300", "+infx-inf"} {
		_, err := ParseSize(nonFinite)
		assert.ErrorIs(t, err, ErrInvalidGeometry, nonFinite)
	}
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint("10, -2.5")
	require.NoError(t, err)
	assert.Equal(t, Pt(10, -2.5), p)

	for _, bad := range []string{"", "10", "a,1", "1,b", "inf,1", "1,NaN"} {
		_, err := ParsePoint(bad)
		assert.Error(t, err, bad)
	}
}

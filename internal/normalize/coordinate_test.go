package normalize

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinate(t *testing.T) {
	t.Run("Plain Decimal", func(t *testing.T) {
		got, ok := Coordinate("14.6917", AxisLatitude)
		require.True(t, ok)
		assert.Equal(t, "14.6917", got)
	})

	t.Run("Comma Decimal Separator", func(t *testing.T) {
		got, ok := Coordinate("14,5", AxisLatitude)
		require.True(t, ok)
		assert.Equal(t, "14.5", got)
	})

	t.Run("Numeric Input", func(t *testing.T) {
		got, ok := Coordinate(-17.44, AxisLongitude)
		require.True(t, ok)
		assert.Equal(t, "-17.44", got)
	})

	t.Run("DMS With Cardinal Letter", func(t *testing.T) {
		got, ok := Coordinate(`14°41'30"N`, AxisLatitude)
		require.True(t, ok)
		assertApprox(t, 14.6917, got, 1e-3)
	})

	t.Run("DMS Southern Hemisphere", func(t *testing.T) {
		got, ok := Coordinate(`33°51'54"S`, AxisLatitude)
		require.True(t, ok)
		assertApprox(t, -33.865, got, 1e-3)
	})

	t.Run("DMS West Longitude", func(t *testing.T) {
		got, ok := Coordinate(`17°26'46"W`, AxisLongitude)
		require.True(t, ok)
		assertApprox(t, -17.44611111, got, 1e-6)
	})

	t.Run("Ouest Cardinal Word", func(t *testing.T) {
		got, ok := Coordinate("17.44 Ouest", AxisLongitude)
		require.True(t, ok)
		assert.Equal(t, "-17.44", got)
	})

	t.Run("Explicit Sign Overrides Letter", func(t *testing.T) {
		got, ok := Coordinate("-12.5 N", AxisLatitude)
		require.True(t, ok)
		assert.Equal(t, "-12.5", got, "explicit minus must beat the cardinal letter")
	})

	t.Run("Bounds Rejection", func(t *testing.T) {
		_, ok := Coordinate("91", AxisLatitude)
		assert.False(t, ok)
		_, ok = Coordinate("181", AxisLongitude)
		assert.False(t, ok)
		_, ok = Coordinate("-90.00000001", AxisLatitude)
		assert.False(t, ok)
	})

	t.Run("Longitude Bound Wider Than Latitude", func(t *testing.T) {
		got, ok := Coordinate("91", AxisLongitude)
		require.True(t, ok)
		assert.Equal(t, "91", got)
	})

	t.Run("No Numeric Token", func(t *testing.T) {
		_, ok := Coordinate("inconnu", AxisLatitude)
		assert.False(t, ok)
		_, ok = Coordinate("", AxisLatitude)
		assert.False(t, ok)
	})

	t.Run("Negative Zero Collapses", func(t *testing.T) {
		got, ok := Coordinate("-0.0", AxisLatitude)
		require.True(t, ok)
		assert.Equal(t, "0", got)
	})

	t.Run("Nil And Unsupported Types", func(t *testing.T) {
		_, ok := Coordinate(nil, AxisLatitude)
		assert.False(t, ok)
		_, ok = Coordinate(struct{}{}, AxisLatitude)
		assert.False(t, ok)
	})

	t.Run("Never Panics", func(t *testing.T) {
		inputs := []string{"--", "N", "°'\"", "1e99999", "14.5.6.7", ":::", "+-3"}
		for _, input := range inputs {
			assert.NotPanics(t, func() { Coordinate(input, AxisLongitude) }, "input %q", input)
		}
	})
}

func TestCoordinateRoundTrip(t *testing.T) {
	values := []float64{0, 14.6917, -17.44611111, 89.99999999, -180, 45.5}
	for _, v := range values {
		t.Run(fmt.Sprintf("%v", v), func(t *testing.T) {
			formatted := strconv.FormatFloat(v, 'f', -1, 64)
			got, ok := Coordinate(formatted, AxisLongitude)
			require.True(t, ok)
			assertApprox(t, v, got, 1e-8)
		})
	}
}

func assertApprox(t *testing.T, want float64, got string, tolerance float64) {
	t.Helper()
	f, err := strconv.ParseFloat(got, 64)
	require.NoError(t, err)
	assert.InDelta(t, want, f, tolerance)
}

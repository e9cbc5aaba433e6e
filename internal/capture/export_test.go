package capture

import (
	"strings"
	"testing"

	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{0.4, 0},
		{0.5, 1},
		{1.49, 1},
		{74.98, 75},
		{-0.5, 0},
		{-0.51, -1},
		{-1.5, -1},
		{-24.7, -25},
		{0.49999999999999994, 0},
		{-0.49999999999999994, 0},
		{2.5, 3},
		{-2.5, -2},
		{1e300, MaxCoordinate},
		{-1e300, -MaxCoordinate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round(tt.in), "Round(%v)", tt.in)
	}
}

func TestToJSON(t *testing.T) {
	pts := []geometry.Point{{X: 10.2, Y: 9.6}, {X: 50, Y: 10}, {X: 49.5, Y: 50.49}, {X: 10.2, Y: 9.6}}

	compact, err := ToJSON(pts, false)
	require.NoError(t, err)
	assert.Equal(t, `{"polygon_points":[[10,10],[50,10],[50,50],[10,10]]}`, string(compact))

	indented, err := ToJSON(pts, true)
	require.NoError(t, err)
	assert.Contains(t, string(indented), "\n  \"polygon_points\": [")
	assert.JSONEq(t, string(compact), string(indented))
}

func TestToJSON_Empty(t *testing.T) {
	b, err := ToJSON(nil, false)
	require.NoError(t, err)
	assert.Equal(t, `{"polygon_points":[]}`, string(b))
}

func TestToCSV(t *testing.T) {
	out, err := ToCSV([]geometry.Point{{X: 1.4, Y: 2.6}, {X: 3, Y: 4}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "index,x,y", lines[0])
	assert.Equal(t, "0,1,3", lines[1])
	assert.Equal(t, "1,3,4", lines[2])
}

func TestToText(t *testing.T) {
	assert.Empty(t, ToText(nil))
	assert.Equal(t, "(1.00, 2.50)\n(3.25, 4.00)", ToText([]geometry.Point{{X: 1, Y: 2.5}, {X: 3.25, Y: 4}}))
}

func TestParseExport(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		exp, err := ParseExport([]byte(`{"polygon_points":[[10,10],[50,10],[50,50],[10,10]]}`))
		require.NoError(t, err)
		assert.Len(t, exp.PolygonPoints, 4)
		assert.True(t, exp.Closed())
		assert.Equal(t, geometry.Pt(50, 50), exp.Points()[2])
	})

	t.Run("fractional values are rounded", func(t *testing.T) {
		exp, err := ParseExport([]byte(`{"polygon_points":[[1.6,2.2]]}`))
		require.NoError(t, err)
		assert.Equal(t, [2]int{2, 2}, exp.PolygonPoints[0])
		assert.False(t, exp.Closed())
	})

	t.Run("empty list", func(t *testing.T) {
		exp, err := ParseExport([]byte(`{"polygon_points":[]}`))
		require.NoError(t, err)
		assert.Empty(t, exp.PolygonPoints)
	})

	errorCases := map[string]string{
		"not json":       `polygon`,
		"missing field":  `{"points":[[1,2]]}`,
		"short pair":     `{"polygon_points":[[1]]}`,
		"long pair":      `{"polygon_points":[[1,2,3]]}`,
		"wrong type":     `{"polygon_points":"x"}`,
		"null list":      `{"polygon_points":null}`,
		"string numbers": `{"polygon_points":[["1","2"]]}`,
		"huge x":         `{"polygon_points":[[1e300,2]]}`,
		"huge y":         `{"polygon_points":[[1,-300000000]]}`,
	}
	for name, input := range errorCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseExport([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestParseExport_OutOfRange(t *testing.T) {
	_, err := ParseExport([]byte(`{"polygon_points":[[0,0],[300000000,5]]}`))
	assert.ErrorIs(t, err, ErrOutOfRange)

	exp, err := ParseExport([]byte(`{"polygon_points":[[16777216,-16777216]]}`))
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{MaxCoordinate, -MaxCoordinate}}, exp.PolygonPoints)
}

func TestExport_RoundTripThroughParse(t *testing.T) {
	pts := []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 0}}
	b, err := ToJSON(pts, true)
	require.NoError(t, err)

	exp, err := ParseExport(b)
	require.NoError(t, err)
	assert.Equal(t, pts, exp.Points())
}

func TestPolygonExport_Snapshot(t *testing.T) {
	empty := PolygonExport{PolygonPoints: [][2]int{}}
	assert.Equal(t, StatusEmpty, empty.Snapshot().Status)
	assert.NotNil(t, empty.Snapshot().Points)

	open := PolygonExport{PolygonPoints: [][2]int{{0, 0}, {5, 5}}}
	assert.Equal(t, StatusDrawing, open.Snapshot().Status)

	closed := PolygonExport{PolygonPoints: [][2]int{{0, 0}, {5, 0}, {5, 5}, {0, 0}}}
	snap := closed.Snapshot()
	assert.Equal(t, StatusClosed, snap.Status)
	assert.Len(t, snap.Points, 4)
	assert.Nil(t, snap.Geometry)
}

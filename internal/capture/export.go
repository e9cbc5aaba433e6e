package capture

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/polydraw/internal/geometry"
)

// PolygonExport is the serialized form of a captured polygon.
type PolygonExport struct {
	PolygonPoints [][2]int `json:"polygon_points"`
}

// MaxCoordinate bounds the magnitude of an image-space coordinate that can
// be captured, exported or read back.
const MaxCoordinate = 1 << 24

// ErrOutOfRange is returned for coordinates that are not finite or whose
// magnitude exceeds MaxCoordinate.
var ErrOutOfRange = errors.New("coordinate out of range")

// InRange reports whether v is a finite coordinate within MaxCoordinate.
func InRange(v float64) bool {
	return !math.IsNaN(v) && v >= -MaxCoordinate && v <= MaxCoordinate
}

// Round rounds to the nearest integer with halves going up, so -0.5 becomes 0
// and 0.49999999999999994 stays 0. Values outside MaxCoordinate saturate and
// NaN rounds to 0.
func Round(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > MaxCoordinate:
		return MaxCoordinate
	case v < -MaxCoordinate:
		return -MaxCoordinate
	}
	f := math.Floor(v)
	if v-f >= 0.5 {
		f++
	}
	return int(f)
}

// Export rounds every point to integer pixels. The closing duplicate of a
// closed polygon is kept.
func Export(points []geometry.Point) PolygonExport {
	out := make([][2]int, len(points))
	for i, p := range points {
		out[i] = [2]int{Round(p.X), Round(p.Y)}
	}
	return PolygonExport{PolygonPoints: out}
}

// Points converts the export back to float points.
func (e PolygonExport) Points() []geometry.Point {
	out := make([]geometry.Point, len(e.PolygonPoints))
	for i, p := range e.PolygonPoints {
		out[i] = geometry.Pt(float64(p[0]), float64(p[1]))
	}
	return out
}

// Closed reports whether the exported polygon ends at its first point.
func (e PolygonExport) Closed() bool {
	n := len(e.PolygonPoints)
	return n > DefaultMinPointsToClose && e.PolygonPoints[0] == e.PolygonPoints[n-1]
}

// ToJSON serializes the export. With indent the output uses two spaces.
func ToJSON(points []geometry.Point, indent bool) ([]byte, error) {
	exp := Export(points)
	if indent {
		return json.MarshalIndent(exp, "", "  ")
	}
	return json.Marshal(exp)
}

// ToCSV exports the rounded points as CSV with header.
func ToCSV(points []geometry.Point) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"index", "x", "y"})
	for i, p := range Export(points).PolygonPoints {
		_ = w.Write([]string{strconv.Itoa(i), strconv.Itoa(p[0]), strconv.Itoa(p[1])})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToText lists the unrounded points one per line.
func ToText(points []geometry.Point) string {
	if len(points) == 0 {
		return ""
	}
	lines := make([]string, 0, len(points))
	for _, p := range points {
		lines = append(lines, fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y))
	}
	return strings.Join(lines, "\n")
}

// ParseExport reads a polygon export produced by ToJSON.
func ParseExport(data []byte) (PolygonExport, error) {
	var raw struct {
		PolygonPoints *[][]float64 `json:"polygon_points"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return PolygonExport{}, fmt.Errorf("parse polygon export: %w", err)
	}
	if raw.PolygonPoints == nil {
		return PolygonExport{}, errors.New("parse polygon export: missing polygon_points")
	}

	out := make([][2]int, len(*raw.PolygonPoints))
	for i, pair := range *raw.PolygonPoints {
		if len(pair) != 2 {
			return PolygonExport{}, fmt.Errorf("parse polygon export: point %d has %d coordinates", i, len(pair))
		}
		if !InRange(pair[0]) || !InRange(pair[1]) {
			return PolygonExport{}, fmt.Errorf("parse polygon export: point %d (%g, %g): %w", i, pair[0], pair[1], ErrOutOfRange)
		}
		out[i] = [2]int{Round(pair[0]), Round(pair[1])}
	}
	return PolygonExport{PolygonPoints: out}, nil
}

// Snapshot builds a static snapshot of the exported polygon for rendering.
func (e PolygonExport) Snapshot() Snapshot {
	s := Snapshot{Points: e.Points(), MagnetRadius: DefaultMagnetRadius}
	switch {
	case len(s.Points) == 0:
		s.Status = StatusEmpty
	case e.Closed():
		s.Status = StatusClosed
	default:
		s.Status = StatusDrawing
	}
	return s
}

// Package render draws capture snapshots over images. It only reads
// snapshots and never changes capture state.
package render

import (
	"fmt"
	"image/color"
	"strings"
)

// Style controls how a polygon is drawn.
type Style struct {
	Line       color.NRGBA
	LineWidth  int
	Closed     color.NRGBA
	Preview    color.NRGBA
	FirstPoint color.NRGBA
	Point      color.NRGBA
	DotRadius  int
	Background color.NRGBA
	ShowStatus bool
}

// Hex colors used by DefaultStyle.
const (
	DefaultLineColor       = "#3b82f6"
	DefaultClosedColor     = "#3b82f6"
	DefaultPreviewColor    = "#ff0000"
	DefaultFirstPointColor = "#ef4444"
	DefaultPointColor      = "#3b82f6"
	DefaultBackground      = "#000000"
	DefaultLineWidth       = 2
	DefaultDotRadius       = 5
)

// DefaultStyle returns the stock annotation style.
func DefaultStyle() Style {
	s, err := NewStyle(StyleSpec{})
	if err != nil {
		panic(err)
	}
	return s
}

// StyleSpec is the hex string form of Style used by configuration.
type StyleSpec struct {
	Line       string
	Closed     string
	Preview    string
	FirstPoint string
	Point      string
	Background string
	LineWidth  int
	DotRadius  int
	ShowStatus bool
}

// NewStyle parses a StyleSpec. Empty fields take their defaults.
func NewStyle(spec StyleSpec) (Style, error) {
	s := Style{
		LineWidth:  orInt(spec.LineWidth, DefaultLineWidth),
		DotRadius:  orInt(spec.DotRadius, DefaultDotRadius),
		ShowStatus: spec.ShowStatus,
	}
	if spec.LineWidth < 0 || spec.DotRadius < 0 {
		return Style{}, fmt.Errorf("invalid style: line width %d and dot radius %d must be >= 0", spec.LineWidth, spec.DotRadius)
	}

	fields := []struct {
		name string
		val  string
		def  string
		dst  *color.NRGBA
	}{
		{"line", spec.Line, DefaultLineColor, &s.Line},
		{"closed", spec.Closed, DefaultClosedColor, &s.Closed},
		{"preview", spec.Preview, DefaultPreviewColor, &s.Preview},
		{"first_point", spec.FirstPoint, DefaultFirstPointColor, &s.FirstPoint},
		{"point", spec.Point, DefaultPointColor, &s.Point},
		{"background", spec.Background, DefaultBackground, &s.Background},
	}
	for _, f := range fields {
		v := f.val
		if v == "" {
			v = f.def
		}
		c, err := ParseHexColor(v)
		if err != nil {
			return Style{}, fmt.Errorf("invalid %s color: %w", f.name, err)
		}
		*f.dst = c
	}
	return s, nil
}

// ParseHexColor parses colors like "#RRGGBB", "RRGGBB" or "#RRGGBBAA".
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	var r, g, b, a int
	a = 255
	switch len(h) {
	case 6:
		if _, err := fmt.Sscanf(h, "%02x%02x%02x", &r, &g, &b); err != nil {
			return color.NRGBA{}, fmt.Errorf("parse color %q: %w", s, err)
		}
	case 8:
		if _, err := fmt.Sscanf(h, "%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
			return color.NRGBA{}, fmt.Errorf("parse color %q: %w", s, err)
		}
	default:
		return color.NRGBA{}, fmt.Errorf("parse color %q: expected #RRGGBB or #RRGGBBAA", s)
	}
	return color.NRGBA{uint8(r), uint8(g), uint8(b), uint8(a)}, nil //nolint:gosec // G115: values are two hex digits
}

// HexColor formats c as "#rrggbb", adding alpha only when it is not opaque.
func HexColor(c color.NRGBA) string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

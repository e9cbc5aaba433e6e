package render

import (
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/polydraw/internal/geometry"
)

// drawPolyline draws connected line segments without closing the path.
func drawPolyline(dst *image.NRGBA, pts []geometry.Point, col color.Color, thickness int) {
	if len(pts) < 2 {
		return
	}
	for i := 0; i+1 < len(pts); i++ {
		drawSegment(dst, pts[i], pts[i+1], col, thickness)
	}
}

func toPixel(p geometry.Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// drawSegment clips a-b to the canvas, padded by the stroke width, and
// rasterizes only the visible part.
func drawSegment(dst *image.NRGBA, a, b geometry.Point, col color.Color, thickness int) {
	a, b, ok := clipSegment(a, b, dst.Bounds(), float64(thickness+1))
	if !ok {
		return
	}
	drawLine(dst, toPixel(a), toPixel(b), col, thickness)
}

// clipSegment clips a-b to r grown by pad on every side (Liang-Barsky).
// It reports false when nothing of the segment is left.
func clipSegment(a, b geometry.Point, r image.Rectangle, pad float64) (geometry.Point, geometry.Point, bool) {
	if !finitePoint(a) || !finitePoint(b) {
		return a, b, false
	}
	xmin, xmax := float64(r.Min.X)-pad, float64(r.Max.X-1)+pad
	ymin, ymax := float64(r.Min.Y)-pad, float64(r.Max.Y-1)+pad

	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, a.X - xmin},
		{dx, xmax - a.X},
		{-dy, a.Y - ymin},
		{dy, ymax - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, t)
		}
	}

	ca, cb := a, b
	if t0 > 0 {
		ca = geometry.Pt(a.X+t0*dx, a.Y+t0*dy)
	}
	if t1 < 1 {
		cb = geometry.Pt(a.X+t1*dx, a.Y+t1*dy)
	}
	return ca, cb, true
}

// nearCanvas reports whether p lies within pad pixels of r.
func nearCanvas(p geometry.Point, r image.Rectangle, pad float64) bool {
	return finitePoint(p) &&
		p.X >= float64(r.Min.X)-pad && p.X <= float64(r.Max.X)+pad &&
		p.Y >= float64(r.Min.Y)-pad && p.Y <= float64(r.Max.Y)+pad
}

func finitePoint(p geometry.Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// drawLine draws a line between two points using a simple Bresenham variant.
func drawLine(dst *image.NRGBA, a, b image.Point, col color.Color, thickness int) {
	x0, y0 := a.X, a.Y
	x1, y1 := b.X, b.Y
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		drawThickPoint(dst, x0, y0, col, thickness)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawThickPoint(dst *image.NRGBA, x, y int, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r := (thickness - 1) / 2
	for yy := y - r; yy <= y+r+(thickness-1)%2; yy++ {
		for xx := x - r; xx <= x+r+(thickness-1)%2; xx++ {
			if image.Pt(xx, yy).In(dst.Bounds()) {
				dst.Set(xx, yy, col)
			}
		}
	}
}

// fillCircle draws a filled vertex dot.
func fillCircle(dst *image.NRGBA, c image.Point, radius int, col color.Color) {
	if radius < 1 {
		if c.In(dst.Bounds()) {
			dst.Set(c.X, c.Y, col)
		}
		return
	}
	r2 := radius * radius
	for yy := -radius; yy <= radius; yy++ {
		for xx := -radius; xx <= radius; xx++ {
			if xx*xx+yy*yy > r2 {
				continue
			}
			p := image.Pt(c.X+xx, c.Y+yy)
			if p.In(dst.Bounds()) {
				dst.Set(p.X, p.Y, col)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

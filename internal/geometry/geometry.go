// Package geometry maps pointer positions between the display surface and the
// native pixel space of the image being annotated.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when an image, viewport or rendered surface
// has a zero, negative or non-finite dimension, or when the sizes do not
// yield a usable scale.
var ErrInvalidGeometry = errors.New("invalid geometry")

// GeometryError describes which size made a mapping undefined.
type GeometryError struct {
	Operation string
	Name      string
	Size      Size
	// Reason overrides the default description of the bad dimension.
	Reason string
}

func (e *GeometryError) Error() string {
	reason := e.Reason
	switch {
	case reason != "":
	case !e.Size.Finite():
		reason = "has a non-finite dimension"
	default:
		reason = "has a non-positive dimension"
	}
	return fmt.Sprintf("%s: %s %s %s", e.Operation, e.Name, e.Size, reason)
}

// Unwrap lets errors.Is match ErrInvalidGeometry.
func (e *GeometryError) Unwrap() error { return ErrInvalidGeometry }

// Point is a 2D coordinate in float space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Sz is shorthand for Size{Width: w, Height: h}.
func Sz(w, h float64) Size { return Size{Width: w, Height: h} }

// Valid reports whether both dimensions are finite and strictly positive.
func (s Size) Valid() bool { return s.Finite() && s.Width > 0 && s.Height > 0 }

// Finite reports whether neither dimension is NaN or infinite.
func (s Size) Finite() bool { return finite(s.Width) && finite(s.Height) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// DisplayGeometry describes how an image is letterboxed into a viewport.
// It is a pure function of the two sizes and is never mutated in place.
type DisplayGeometry struct {
	Image    Size    `json:"image"`
	Viewport Size    `json:"viewport"`
	Scale    float64 `json:"scale"`
	OffsetX  float64 `json:"offset_x"`
	OffsetY  float64 `json:"offset_y"`
}

// ComputeGeometry fits the image into the viewport with a uniform scale and
// centers it.
func ComputeGeometry(image, viewport Size) (DisplayGeometry, error) {
	if !image.Valid() {
		return DisplayGeometry{}, &GeometryError{Operation: "compute geometry", Name: "image", Size: image}
	}
	if !viewport.Valid() {
		return DisplayGeometry{}, &GeometryError{Operation: "compute geometry", Name: "viewport", Size: viewport}
	}

	scale := math.Min(viewport.Width/image.Width, viewport.Height/image.Height)
	if !finite(scale) || scale <= 0 {
		return DisplayGeometry{}, &GeometryError{
			Operation: "compute geometry",
			Name:      "viewport",
			Size:      viewport,
			Reason:    fmt.Sprintf("yields a degenerate scale for image %s", image),
		}
	}

	return DisplayGeometry{
		Image:    image,
		Viewport: viewport,
		Scale:    scale,
		OffsetX:  (viewport.Width - image.Width*scale) / 2,
		OffsetY:  (viewport.Height - image.Height*scale) / 2,
	}, nil
}

// ScaledImageSize returns the on-screen size of the image inside the viewport.
func (g DisplayGeometry) ScaledImageSize() Size {
	return Size{Width: g.Image.Width * g.Scale, Height: g.Image.Height * g.Scale}
}

// ToImageSpace inverse-maps a position relative to the viewport's top-left
// corner into image-native coordinates.
func ToImageSpace(p Point, g DisplayGeometry) Point {
	return Point{
		X: (p.X - g.OffsetX) / g.Scale,
		Y: (p.Y - g.OffsetY) / g.Scale,
	}
}

// ToImageSpaceRendered maps a raw event position taken on a surface that is
// rendered at a different size than its backing buffer. The buffer is the
// viewport of g. A zero rendered size means the surface is shown 1:1.
func ToImageSpaceRendered(p Point, rendered Size, g DisplayGeometry) (Point, error) {
	buffer, err := RescaleToBuffer(p, rendered, g.Viewport)
	if err != nil {
		return Point{}, err
	}
	return ToImageSpace(buffer, g), nil
}

// RescaleToBuffer converts a position on the rendered element into the
// element's backing buffer coordinates.
func RescaleToBuffer(p Point, rendered, buffer Size) (Point, error) {
	if rendered.IsZero() {
		return p, nil
	}
	if !rendered.Valid() {
		return Point{}, &GeometryError{Operation: "rescale pointer", Name: "rendered surface", Size: rendered}
	}
	if !buffer.Valid() {
		return Point{}, &GeometryError{Operation: "rescale pointer", Name: "buffer", Size: buffer}
	}
	return Point{
		X: p.X * (buffer.Width / rendered.Width),
		Y: p.Y * (buffer.Height / rendered.Height),
	}, nil
}

// ToDisplaySpace is the exact inverse of ToImageSpace.
func ToDisplaySpace(p Point, g DisplayGeometry) Point {
	return Point{
		X: g.OffsetX + p.X*g.Scale,
		Y: g.OffsetY + p.Y*g.Scale,
	}
}

// ToDisplayPoints maps a slice of image-native points into display space.
func ToDisplayPoints(pts []Point, g DisplayGeometry) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = ToDisplaySpace(p, g)
	}
	return out
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

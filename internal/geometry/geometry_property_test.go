package geometry

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genSize generates a non-degenerate size.
func genSize() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(1, 4000),
		gen.Float64Range(1, 4000),
	).Map(func(vals []interface{}) Size {
		return Size{Width: vals[0].(float64), Height: vals[1].(float64)}
	})
}

// genPoint generates a random point, including points outside the image.
func genPoint() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-500, 4500),
		gen.Float64Range(-500, 4500),
	).Map(func(vals []interface{}) Point {
		return Point{X: vals[0].(float64), Y: vals[1].(float64)}
	})
}

func closeEnough(a, b Point) bool {
	const tol = 1e-6
	return math.Abs(a.X-b.X) <= tol*math.Max(1, math.Abs(a.X)) &&
		math.Abs(a.Y-b.Y) <= tol*math.Max(1, math.Abs(a.Y))
}

// TestRoundTrip_ImageDisplayImage verifies ToImageSpace inverts ToDisplaySpace.
func TestRoundTrip_ImageDisplayImage(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("image -> display -> image is identity", prop.ForAll(
		func(image, viewport Size, p Point) bool {
			g, err := ComputeGeometry(image, viewport)
			if err != nil {
				return false
			}
			return closeEnough(ToImageSpace(ToDisplaySpace(p, g), g), p)
		},
		genSize(),
		genSize(),
		genPoint(),
	))

	properties.TestingRun(t)
}

// TestComputeGeometry_FitsViewport verifies the scaled image never exceeds the viewport
// and is centered.
func TestComputeGeometry_FitsViewport(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("scaled image fits and is centered", prop.ForAll(
		func(image, viewport Size) bool {
			g, err := ComputeGeometry(image, viewport)
			if err != nil {
				return false
			}
			s := g.ScaledImageSize()
			const tol = 1e-6
			if s.Width > viewport.Width+tol || s.Height > viewport.Height+tol {
				return false
			}
			if g.OffsetX < -tol || g.OffsetY < -tol {
				return false
			}
			// One dimension is always filled exactly.
			fillsW := math.Abs(s.Width-viewport.Width) <= tol*viewport.Width
			fillsH := math.Abs(s.Height-viewport.Height) <= tol*viewport.Height
			return fillsW || fillsH
		},
		genSize(),
		genSize(),
	))

	properties.TestingRun(t)
}

// TestRescaleToBuffer_RoundTrip verifies rendered rescaling composes with the
// forward mapping.
func TestRescaleToBuffer_RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("rendered rescale inverts CSS scaling", prop.ForAll(
		func(image, viewport, rendered Size, p Point) bool {
			g, err := ComputeGeometry(image, viewport)
			if err != nil {
				return false
			}
			d := ToDisplaySpace(p, g)
			raw := Point{
				X: d.X * rendered.Width / viewport.Width,
				Y: d.Y * rendered.Height / viewport.Height,
			}
			got, err := ToImageSpaceRendered(raw, rendered, g)
			if err != nil {
				return false
			}
			return closeEnough(got, p)
		},
		genSize(),
		genSize(),
		genSize(),
		genPoint(),
	))

	properties.TestingRun(t)
}

package capture

import (
	"testing"

	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genFarPoints generates points that all lie outside the magnet radius of the
// first point, which is fixed at the origin.
func genFarPoints() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.Float64Range(DefaultMagnetRadius+1, 5000),
		gen.Float64Range(-5000, 5000),
	).Map(func(vals []interface{}) geometry.Point {
		return geometry.Point{X: vals[0].(float64), Y: vals[1].(float64)}
	}))
}

func genAnyPoint() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
	).Map(func(vals []interface{}) geometry.Point {
		return geometry.Point{X: vals[0].(float64), Y: vals[1].(float64)}
	})
}

func TestAddPoint_LengthProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	cfg := DefaultConfig()

	properties.Property("N non-closing adds give N points while drawing", prop.ForAll(
		func(rest []geometry.Point) bool {
			s, _ := AddPoint(NewSession(), geometry.Pt(0, 0), cfg)
			for _, p := range rest {
				s, _ = AddPoint(s, p, cfg)
			}
			return len(s.Points) == len(rest)+1 && s.Status == StatusDrawing && s.Check() == nil
		},
		genFarPoints(),
	))

	properties.TestingRun(t)
}

func TestAddPoint_ClosedIdempotentProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	cfg := DefaultConfig()

	properties.Property("closed sessions ignore further points", prop.ForAll(
		func(extra []geometry.Point) bool {
			s := Session{}
			for _, p := range []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 1, Y: 1}} {
				s, _ = AddPoint(s, p, cfg)
			}
			if !s.Closed() {
				return false
			}
			before := s.Clone()
			for _, p := range extra {
				var out Outcome
				s, out = AddPoint(s, p, cfg)
				if out != OutcomeIgnoredClosed {
					return false
				}
			}
			return len(s.Points) == len(before.Points) && s.Status == before.Status && s.Check() == nil
		},
		gen.SliceOf(genAnyPoint()),
	))

	properties.TestingRun(t)
}

func TestSession_InvariantsHoldProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	cfg := DefaultConfig()

	// op codes: 0-5 add, 6 undo, 7 reset
	properties.Property("any operation sequence keeps the session valid", prop.ForAll(
		func(ops []int, pts []geometry.Point) bool {
			s := NewSession()
			for i, op := range ops {
				switch {
				case op < 6:
					if len(pts) == 0 {
						continue
					}
					s, _ = AddPoint(s, pts[i%len(pts)], cfg)
				case op == 6:
					s, _ = Undo(s)
				default:
					s = Reset()
				}
				if err := s.Check(); err != nil {
					return false
				}
				if s.Closed() && s.Points[0] != s.Points[len(s.Points)-1] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 7)),
		gen.SliceOf(genAnyPoint()),
	))

	properties.TestingRun(t)
}

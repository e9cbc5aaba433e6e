package support

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/cucumber/godog"
)

const floatTolerance = 0.05

// aCaptureMachineWithDefaults creates a machine with the default settings.
func (testCtx *TestContext) aCaptureMachineWithDefaults() error {
	return testCtx.newMachine(capture.DefaultConfig())
}

// aCaptureMachineWithMagnetRadius creates a machine with a custom radius.
func (testCtx *TestContext) aCaptureMachineWithMagnetRadius(radius float64) error {
	cfg := capture.DefaultConfig()
	cfg.MagnetRadius = radius
	return testCtx.newMachine(cfg)
}

func (testCtx *TestContext) newMachine(cfg capture.Config) error {
	m, err := capture.NewMachine(cfg)
	if err != nil {
		return err
	}
	testCtx.Machine = m
	return nil
}

func (testCtx *TestContext) machine() (*capture.Machine, error) {
	if testCtx.Machine == nil {
		if err := testCtx.aCaptureMachineWithDefaults(); err != nil {
			return nil, err
		}
	}
	return testCtx.Machine, nil
}

// anImageIsLoaded loads an image synchronously.
func (testCtx *TestContext) anImageIsLoaded(iw, ih, vw, vh int) error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	return m.Load(size(iw, ih), size(vw, vh))
}

// iClickAtDisplayPosition sends a pointer down in display space.
func (testCtx *TestContext) iClickAtDisplayPosition(x, y float64) error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	out, err := m.PointerDown(capture.Pointer{Position: geometry.Pt(x, y)})
	if err != nil {
		return fmt.Errorf("pointer down at (%g, %g): %w", x, y, err)
	}
	testCtx.LastOutcome = out
	return nil
}

// iClickAtImagePoints clicks the display positions of the given image
// points, written as "x,y x,y ...".
func (testCtx *TestContext) iClickAtImagePoints(list string) error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	for _, field := range strings.Fields(list) {
		p, err := geometry.ParsePoint(field)
		if err != nil {
			return err
		}
		g, ok := m.Geometry()
		if !ok {
			out, err := m.PointerDown(capture.Pointer{Position: p})
			if err != nil {
				return err
			}
			testCtx.LastOutcome = out
			continue
		}
		d := geometry.ToDisplaySpace(p, g)
		if err := testCtx.iClickAtDisplayPosition(d.X, d.Y); err != nil {
			return err
		}
	}
	return nil
}

// iHoverAtImagePoint moves the pointer over an image point.
func (testCtx *TestContext) iHoverAtImagePoint(x, y float64) error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	g, _ := m.Geometry()
	out, err := m.PointerMove(capture.Pointer{Position: geometry.ToDisplaySpace(geometry.Pt(x, y), g)})
	if err != nil {
		return err
	}
	testCtx.LastOutcome = out
	return nil
}

func (testCtx *TestContext) thePointerLeaves() error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	testCtx.LastOutcome = m.PointerLeave()
	return nil
}

func (testCtx *TestContext) iUndo() error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	testCtx.LastOutcome = m.Undo()
	return nil
}

func (testCtx *TestContext) iReset() error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	testCtx.LastOutcome = m.Reset()
	return nil
}

func (testCtx *TestContext) theViewportIsResized(w, h int) error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	out, err := m.Resize(size(w, h))
	if err != nil {
		return err
	}
	testCtx.LastOutcome = out
	return nil
}

// iBeginLoadingImage starts an asynchronous load and remembers its token.
func (testCtx *TestContext) iBeginLoadingImage(name string) error {
	m, err := testCtx.machine()
	if err != nil {
		return err
	}
	testCtx.Loads[name] = m.BeginLoad()
	return nil
}

// imageFinishesLoading completes a named load into the default viewport.
func (testCtx *TestContext) imageFinishesLoading(name string, w, h int) error {
	token, ok := testCtx.Loads[name]
	if !ok {
		return fmt.Errorf("image %q was never loading", name)
	}
	testCtx.LastLoadErr = testCtx.Machine.ImageReady(token, size(w, h), size(600, 400))
	return nil
}

func (testCtx *TestContext) imageFailsToLoad(name string) error {
	token, ok := testCtx.Loads[name]
	if !ok {
		return fmt.Errorf("image %q was never loading", name)
	}
	testCtx.LastLoadErr = testCtx.Machine.CancelLoad(token)
	return nil
}

func (testCtx *TestContext) theLoadShouldBeRejectedAsStale() error {
	if !errors.Is(testCtx.LastLoadErr, capture.ErrStaleLoad) {
		return fmt.Errorf("expected stale load error, got %v", testCtx.LastLoadErr)
	}
	return nil
}

func (testCtx *TestContext) theLoadShouldFailWithInvalidGeometry() error {
	if !errors.Is(testCtx.LastLoadErr, geometry.ErrInvalidGeometry) {
		return fmt.Errorf("expected invalid geometry error, got %v", testCtx.LastLoadErr)
	}
	return nil
}

func (testCtx *TestContext) theLoadShouldSucceed() error {
	if testCtx.LastLoadErr != nil {
		return fmt.Errorf("expected load to succeed, got %w", testCtx.LastLoadErr)
	}
	return nil
}

func (testCtx *TestContext) theScaleShouldBe(want float64) error {
	g, err := testCtx.geometry()
	if err != nil {
		return err
	}
	if math.Abs(g.Scale-want) > 0.001 {
		return fmt.Errorf("expected scale %g, got %g", want, g.Scale)
	}
	return nil
}

func (testCtx *TestContext) theOffsetShouldBe(x, y float64) error {
	g, err := testCtx.geometry()
	if err != nil {
		return err
	}
	if math.Abs(g.OffsetX-x) > floatTolerance || math.Abs(g.OffsetY-y) > floatTolerance {
		return fmt.Errorf("expected offset (%g, %g), got (%g, %g)", x, y, g.OffsetX, g.OffsetY)
	}
	return nil
}

func (testCtx *TestContext) geometry() (geometry.DisplayGeometry, error) {
	m, err := testCtx.machine()
	if err != nil {
		return geometry.DisplayGeometry{}, err
	}
	g, ok := m.Geometry()
	if !ok {
		return g, errors.New("no image loaded")
	}
	return g, nil
}

func (testCtx *TestContext) theLastPointShouldRoundTo(x, y int) error {
	s := testCtx.Machine.Session()
	if len(s.Points) == 0 {
		return errors.New("session has no points")
	}
	last := s.Points[len(s.Points)-1]
	if capture.Round(last.X) != x || capture.Round(last.Y) != y {
		return fmt.Errorf("expected last point to round to (%d, %d), got (%g, %g)", x, y, last.X, last.Y)
	}
	return nil
}

func (testCtx *TestContext) thePolygonShouldBe(status string) error {
	got := testCtx.Machine.Session().Status.String()
	if got != status {
		return fmt.Errorf("expected polygon to be %s, got %s", status, got)
	}
	return nil
}

func (testCtx *TestContext) thePolygonShouldHavePoints(n int) error {
	if got := testCtx.Machine.Session().Len(); got != n {
		return fmt.Errorf("expected %d points, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) theOutcomeShouldBe(name string) error {
	if got := testCtx.LastOutcome.String(); got != name {
		return fmt.Errorf("expected outcome %s, got %s", name, got)
	}
	return nil
}

func (testCtx *TestContext) theExportedJSONShouldBe(want string) error {
	b, err := capture.ToJSON(testCtx.Machine.Session().Points, false)
	if err != nil {
		return err
	}
	if string(b) != want {
		return fmt.Errorf("expected export %s, got %s", want, b)
	}
	return nil
}

func (testCtx *TestContext) thePreviewShouldSnapToTheFirstPoint() error {
	snap := testCtx.Machine.Snapshot()
	if snap.Preview == nil {
		return errors.New("expected a preview")
	}
	if !snap.Preview.Snaps || snap.Preview.Target != snap.Points[0] {
		return fmt.Errorf("expected preview to snap to %v, got %+v", snap.Points[0], *snap.Preview)
	}
	return nil
}

func (testCtx *TestContext) thePreviewShouldEndAt(x, y float64) error {
	snap := testCtx.Machine.Snapshot()
	if snap.Preview == nil {
		return errors.New("expected a preview")
	}
	t := snap.Preview.Target
	if snap.Preview.Snaps || math.Abs(t.X-x) > floatTolerance || math.Abs(t.Y-y) > floatTolerance {
		return fmt.Errorf("expected free preview at (%g, %g), got %+v", x, y, *snap.Preview)
	}
	return nil
}

func (testCtx *TestContext) thereShouldBeNoPreview() error {
	if p := testCtx.Machine.Snapshot().Preview; p != nil {
		return fmt.Errorf("expected no preview, got %+v", *p)
	}
	return nil
}

func (testCtx *TestContext) captureShouldBe(state string) error {
	want := state == "enabled"
	if testCtx.Machine.Active() != want {
		return fmt.Errorf("expected capture to be %s", state)
	}
	return nil
}

func size(w, h int) geometry.Size {
	return geometry.Sz(float64(w), float64(h))
}

// RegisterCaptureSteps registers the capture machine step definitions.
func (testCtx *TestContext) RegisterCaptureSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a capture machine with default settings$`, testCtx.aCaptureMachineWithDefaults)
	sc.Step(`^a capture machine with magnet radius (\d+(?:\.\d+)?)$`, testCtx.aCaptureMachineWithMagnetRadius)
	sc.Step(`^an image of (\d+)x(\d+) is loaded into a (\d+)x(\d+) viewport$`, testCtx.anImageIsLoaded)
	sc.Step(`^the viewport is resized to (\d+)x(\d+)$`, testCtx.theViewportIsResized)

	sc.Step(`^I click at display position \((-?[\d.]+), (-?[\d.]+)\)$`, testCtx.iClickAtDisplayPosition)
	sc.Step(`^I click at image points? "([^"]*)"$`, testCtx.iClickAtImagePoints)
	sc.Step(`^I hover at image point \((-?[\d.]+), (-?[\d.]+)\)$`, testCtx.iHoverAtImagePoint)
	sc.Step(`^the pointer leaves the drawing surface$`, testCtx.thePointerLeaves)
	sc.Step(`^I undo$`, testCtx.iUndo)
	sc.Step(`^I reset$`, testCtx.iReset)

	sc.Step(`^I begin loading image "([^"]*)"$`, testCtx.iBeginLoadingImage)
	sc.Step(`^image "([^"]*)" finishes loading at (\d+)x(\d+)$`, testCtx.imageFinishesLoading)
	sc.Step(`^image "([^"]*)" fails to load$`, testCtx.imageFailsToLoad)
	sc.Step(`^the load should be rejected as stale$`, testCtx.theLoadShouldBeRejectedAsStale)
	sc.Step(`^the load should fail with invalid geometry$`, testCtx.theLoadShouldFailWithInvalidGeometry)
	sc.Step(`^the load should succeed$`, testCtx.theLoadShouldSucceed)

	sc.Step(`^the scale should be (-?[\d.]+)$`, testCtx.theScaleShouldBe)
	sc.Step(`^the offset should be \((-?[\d.]+), (-?[\d.]+)\)$`, testCtx.theOffsetShouldBe)
	sc.Step(`^the last point should round to \((-?\d+), (-?\d+)\)$`, testCtx.theLastPointShouldRoundTo)
	sc.Step(`^the polygon should be (empty|drawing|closed)$`, testCtx.thePolygonShouldBe)
	sc.Step(`^the polygon should have (\d+) points?$`, testCtx.thePolygonShouldHavePoints)
	sc.Step(`^the outcome should be "([a-z_]+)"$`, testCtx.theOutcomeShouldBe)
	sc.Step(`^the exported JSON should be '([^']*)'$`, testCtx.theExportedJSONShouldBe)
	sc.Step(`^the preview should snap to the first point$`, testCtx.thePreviewShouldSnapToTheFirstPoint)
	sc.Step(`^the preview should end at image point \((-?[\d.]+), (-?[\d.]+)\)$`, testCtx.thePreviewShouldEndAt)
	sc.Step(`^there should be no preview$`, testCtx.thereShouldBeNoPreview)
	sc.Step(`^capture should be (enabled|disabled)$`, testCtx.captureShouldBe)
}

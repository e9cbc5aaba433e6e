package render

import (
	"errors"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrNoGeometry is returned when a viewport render is requested for a
// snapshot without display geometry.
var ErrNoGeometry = errors.New("snapshot has no display geometry")

// Overlay draws the snapshot over a copy of img in image-native coordinates.
func Overlay(img image.Image, snap capture.Snapshot, style Style) *image.NRGBA {
	if img == nil {
		return nil
	}
	dst := imaging.Clone(img)
	drawSnapshot(dst, snap.Points, previewOf(snap), snap.Status, style)
	if style.ShowStatus {
		drawLabel(dst, statusLabel(snap), style.Line)
	}
	return dst
}

// Viewport renders what the interactive surface shows: the image letterboxed
// into the viewport with the polygon mapped into display space.
func Viewport(img image.Image, snap capture.Snapshot, style Style) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if snap.Geometry == nil {
		return nil, ErrNoGeometry
	}
	g := *snap.Geometry
	if !g.Viewport.Valid() || g.Scale <= 0 {
		return nil, &geometry.GeometryError{Operation: "render viewport", Name: "viewport", Size: g.Viewport}
	}

	vw, vh := int(math.Round(g.Viewport.Width)), int(math.Round(g.Viewport.Height))
	canvas := imaging.New(vw, vh, style.Background)

	scaled := g.ScaledImageSize()
	sw, sh := max(1, int(math.Round(scaled.Width))), max(1, int(math.Round(scaled.Height)))
	resized := imaging.Resize(img, sw, sh, imaging.Lanczos)
	canvas = imaging.Paste(canvas, resized, image.Pt(int(math.Round(g.OffsetX)), int(math.Round(g.OffsetY))))

	points := geometry.ToDisplayPoints(snap.Points, g)
	var preview *geometry.Point
	if p := previewOf(snap); p != nil {
		d := geometry.ToDisplaySpace(*p, g)
		preview = &d
	}
	drawSnapshot(canvas, points, preview, snap.Status, style)
	if style.ShowStatus {
		drawLabel(canvas, statusLabel(snap), style.Line)
	}
	return canvas, nil
}

func previewOf(snap capture.Snapshot) *geometry.Point {
	if snap.Preview == nil || snap.Status != capture.StatusDrawing {
		return nil
	}
	p := snap.Preview.Target
	return &p
}

// drawSnapshot draws edges, the preview edge and vertex dots. Points must
// already be in dst's coordinate space.
func drawSnapshot(dst *image.NRGBA, pts []geometry.Point, preview *geometry.Point, status capture.Status, style Style) {
	if len(pts) == 0 {
		return
	}
	lineCol := style.Line
	if status == capture.StatusClosed {
		lineCol = style.Closed
	}
	width := max(1, style.LineWidth)
	drawPolyline(dst, pts, lineCol, width)

	if preview != nil {
		drawSegment(dst, pts[len(pts)-1], *preview, style.Preview, 1)
	}

	vertices := pts
	if status == capture.StatusClosed && len(pts) > 1 {
		vertices = pts[:len(pts)-1]
	}
	for i, p := range vertices {
		if !nearCanvas(p, dst.Bounds(), float64(style.DotRadius+1)) {
			continue
		}
		col := style.Point
		if i == 0 && status == capture.StatusDrawing {
			col = style.FirstPoint
		}
		fillCircle(dst, toPixel(p), style.DotRadius, col)
	}
}

func statusLabel(snap capture.Snapshot) string {
	label := snap.Status.String()
	n := len(snap.Points)
	if snap.Status == capture.StatusClosed {
		n--
	}
	switch n {
	case 0:
		return label
	case 1:
		return label + " (1 point)"
	default:
		return label + " (" + strconv.Itoa(n) + " points)"
	}
}

func drawLabel(dst *image.NRGBA, text string, col color.Color) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(4, face.Metrics().Ascent.Ceil()+4),
	}
	drawer.DrawString(text)
}

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/polydraw/internal/batch"
	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/script"
	"github.com/MeKo-Tech/polydraw/internal/testutil"
	"github.com/disintegration/imaging"
)

// viewport is the drawing surface the generated sessions are recorded on.
var viewport = geometry.Sz(600, 400)

// shape is one generated annotation.
type shape struct {
	name     string
	size     testutil.ImageSize
	vertices []geometry.Point
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		generateImages  = flag.Bool("images", true, "Generate images with polygon sidecars")
		generateScripts = flag.Bool("scripts", true, "Generate replayable pointer scripts")
		outDir          = flag.String("dir", "testdata", "Output directory relative to the project root")
		verbose         = flag.Bool("v", false, "Verbose output")
		help            = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate annotated sample data for polydraw.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                 # Generate everything\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -scripts=false  # Only images and sidecars\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	if err := os.Chdir(root); err != nil {
		slog.Error("Failed to change to project root", "error", err)
		os.Exit(1)
	}
	if *verbose {
		slog.Info("Options", "root", root, "dir", *outDir, "images", *generateImages, "scripts", *generateScripts)
	}

	for _, s := range shapes() {
		events, points, err := record(s)
		if err != nil {
			slog.Error("Failed to record session", "shape", s.name, "error", err)
			os.Exit(1)
		}

		if *generateImages {
			if err := writeImage(*outDir, s, points); err != nil {
				slog.Error("Failed to write image", "shape", s.name, "error", err)
				os.Exit(1)
			}
		}
		if *generateScripts {
			if err := writeScript(*outDir, s, events); err != nil {
				slog.Error("Failed to write script", "shape", s.name, "error", err)
				os.Exit(1)
			}
		}
		slog.Info("Generated sample", "shape", s.name, "points", len(points))
	}

	slog.Info("Test data generation completed")
}

func shapes() []shape {
	return []shape{
		{
			name:     "triangle",
			size:     testutil.WideSize,
			vertices: []geometry.Point{{X: 40, Y: 40}, {X: 360, Y: 60}, {X: 200, Y: 260}},
		},
		{
			name:     "square",
			size:     testutil.SmallSize,
			vertices: []geometry.Point{{X: 60, Y: 40}, {X: 260, Y: 40}, {X: 260, Y: 200}, {X: 60, Y: 200}},
		},
		{
			name:     "pentagon",
			size:     testutil.MediumSize,
			vertices: regularPolygon(geometry.Pt(320, 240), 180, 5),
		},
	}
}

// regularPolygon returns n vertices on a circle, starting at the top.
func regularPolygon(center geometry.Point, radius float64, n int) []geometry.Point {
	out := make([]geometry.Point, n)
	for i := range out {
		a := -math.Pi/2 + 2*math.Pi*float64(i)/float64(n)
		out[i] = geometry.Pt(center.X+radius*math.Cos(a), center.Y+radius*math.Sin(a))
	}
	return out
}

// record clicks the vertices on a letterboxed surface and closes on the first
// one, returning the script events and the captured image-space points.
func record(s shape) ([]script.Event, []geometry.Point, error) {
	m, err := capture.NewMachine(capture.DefaultConfig())
	if err != nil {
		return nil, nil, err
	}
	imageSize := geometry.Sz(float64(s.size.Width), float64(s.size.Height))
	if err := m.Load(imageSize, viewport); err != nil {
		return nil, nil, err
	}
	g, _ := m.Geometry()

	clicks := append(append([]geometry.Point{}, s.vertices...), s.vertices[0])
	events := []script.Event{{Type: script.EventLoad}}
	for _, v := range clicks {
		d := geometry.ToDisplaySpace(v, g)
		if _, err := m.PointerDown(capture.Pointer{Position: d}); err != nil {
			return nil, nil, err
		}
		events = append(events, script.Event{Type: script.EventDown, X: d.X, Y: d.Y})
	}

	session := m.Session()
	if !session.Closed() {
		return nil, nil, fmt.Errorf("%s did not close", s.name)
	}
	return events, session.Points, nil
}

func writeImage(dir string, s shape, points []geometry.Point) error {
	imagesDir := filepath.Join(dir, "images")
	if err := testutil.EnsureDir(imagesDir); err != nil {
		return fmt.Errorf("failed to create images directory: %w", err)
	}

	config := testutil.DefaultTestImageConfig()
	config.Label = s.name
	config.Size = s.size

	imagePath := filepath.Join(imagesDir, s.name+".png")
	if err := imaging.Save(testutil.GenerateImage(config), imagePath); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	data, err := capture.ToJSON(points, true)
	if err != nil {
		return err
	}
	return os.WriteFile(batch.SidecarPath(imagePath), append(data, '\n'), 0o600)
}

func writeScript(dir string, s shape, events []script.Event) error {
	scriptsDir := filepath.Join(dir, "scripts")
	if err := testutil.EnsureDir(scriptsDir); err != nil {
		return fmt.Errorf("failed to create scripts directory: %w", err)
	}

	sc := &script.Script{
		Viewport: &script.Dim{Width: viewport.Width, Height: viewport.Height},
		Events:   events,
	}
	data, err := sc.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(scriptsDir, s.name+".yaml"), data, 0o600)
}

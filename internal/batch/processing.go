package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/imageio"
	"github.com/MeKo-Tech/polydraw/internal/render"
	"github.com/disintegration/imaging"
)

// Per-file statuses.
const (
	StatusRendered = "rendered"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// ErrNoSidecar marks images without a polygon export next to them.
var ErrNoSidecar = errors.New("no polygon sidecar")

// FileResult is the outcome for one image.
type FileResult struct {
	Image      string  `json:"image"`
	Polygon    string  `json:"polygon"`
	Output     string  `json:"output,omitempty"`
	Status     string  `json:"status"`
	Points     int     `json:"points"`
	Closed     bool    `json:"closed"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

type imageJob struct {
	index int
	path  string
}

type imageResult struct {
	index  int
	result FileResult
	err    error
}

// outputPath names the overlay written for imagePath.
func outputPath(dir, imagePath string) string {
	base := filepath.Base(imagePath)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_overlay.png")
}

// loadPolygon reads the sidecar export for imagePath.
func loadPolygon(imagePath string) (capture.PolygonExport, error) {
	data, err := os.ReadFile(SidecarPath(imagePath)) //nolint:gosec // G304: sidecar path derived from user-selected image
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return capture.PolygonExport{}, ErrNoSidecar
		}
		return capture.PolygonExport{}, fmt.Errorf("failed to read polygon: %w", err)
	}
	return capture.ParseExport(data)
}

// scalePoints maps native points onto a downscaled frame.
func scalePoints(pts []geometry.Point, from, to geometry.Size) []geometry.Point {
	if from == to {
		return pts
	}
	sx, sy := to.Width/from.Width, to.Height/from.Height
	out := make([]geometry.Point, len(pts))
	for i, p := range pts {
		out[i] = geometry.Pt(p.X*sx, p.Y*sy)
	}
	return out
}

// renderImage draws the polygon over frame in the configured mode.
func renderImage(frame *imageio.Frame, snap capture.Snapshot, cfg *Config) (image.Image, error) {
	if cfg.Mode != ModeViewport {
		return render.Overlay(frame.Image, snap, cfg.Style), nil
	}
	g, err := geometry.ComputeGeometry(frame.Size(), cfg.Viewport)
	if err != nil {
		return nil, err
	}
	snap.Geometry = &g
	return render.Viewport(frame.Image, snap, cfg.Style)
}

// processSingleImage renders one image with its sidecar polygon. Missing
// sidecars yield a skipped result, everything else that goes wrong a failed
// one.
func processSingleImage(path string, cfg *Config) FileResult {
	start := time.Now()
	res := FileResult{Image: path, Polygon: SidecarPath(path)}
	finish := func(status string, err error) FileResult {
		res.Status = status
		if err != nil {
			res.Error = err.Error()
		}
		res.DurationMS = float64(time.Since(start).Microseconds()) / 1000
		return res
	}

	exp, err := loadPolygon(path)
	if errors.Is(err, ErrNoSidecar) {
		return finish(StatusSkipped, err)
	}
	if err != nil {
		return finish(StatusFailed, err)
	}
	res.Points = len(exp.PolygonPoints)
	res.Closed = exp.Closed()

	frame, err := imageio.Load(path)
	if err != nil {
		return finish(StatusFailed, err)
	}
	native := frame.Size()
	if frame, err = imageio.FitWithin(frame, cfg.MaxWidth, cfg.MaxHeight); err != nil {
		return finish(StatusFailed, err)
	}

	snap := exp.Snapshot()
	snap.Points = scalePoints(snap.Points, native, frame.Size())

	out, err := renderImage(frame, snap, cfg)
	if err != nil {
		return finish(StatusFailed, err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return finish(StatusFailed, fmt.Errorf("failed to create output dir: %w", err))
	}
	res.Output = outputPath(cfg.OutputDir, path)
	if err := imaging.Save(out, res.Output); err != nil {
		res.Output = ""
		return finish(StatusFailed, fmt.Errorf("failed to save overlay: %w", err))
	}
	return finish(StatusRendered, nil)
}

// processImagesParallel renders files with a bounded worker pool. Results
// keep the order of files. With ContinueOnError unset the first failure
// cancels the remaining work.
func processImagesParallel(ctx context.Context, files []string, cfg *Config) ([]FileResult, error) {
	if len(files) == 0 {
		return nil, errors.New("no images provided")
	}
	progress := cfg.Progress
	if progress == nil {
		progress = NoOpProgress{}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := min(cfg.Workers, len(files))
	jobs := make(chan imageJob)
	results := make(chan imageResult, workers)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go worker(runCtx, jobs, results, &wg, cfg)
	}

	go func() {
		defer close(jobs)
		for i, path := range files {
			select {
			case jobs <- imageJob{index: i, path: path}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	progress.OnStart(len(files))
	out := make([]FileResult, len(files))
	var firstErr error
	processed := 0
	for r := range results {
		out[r.index] = r.result
		processed++
		if r.err != nil {
			progress.OnError(r.result.Image, r.err)
			slog.Warn("batch item failed", "file", r.result.Image, "error", r.err)
			if !cfg.ContinueOnError && firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", r.result.Image, r.err)
				cancel()
			}
		}
		progress.OnProgress(processed, len(files))
	}
	progress.OnComplete()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func worker(ctx context.Context, jobs <-chan imageJob, results chan<- imageResult, wg *sync.WaitGroup, cfg *Config) {
	defer wg.Done()

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}

			res := processSingleImage(job.path, cfg)
			var err error
			if res.Status == StatusFailed {
				err = errors.New(res.Error)
			}

			select {
			case results <- imageResult{index: job.index, result: res, err: err}:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

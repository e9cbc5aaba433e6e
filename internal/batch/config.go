package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/render"
)

// Overlay modes.
const (
	ModeImage    = "image"
	ModeViewport = "viewport"
)

// Config holds all configuration for batch rendering.
type Config struct {
	OutputDir string
	Mode      string
	Style     render.Style
	Viewport  geometry.Size

	// Downscale limits applied before rendering; zero disables.
	MaxWidth  int
	MaxHeight int

	Workers         int
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	Progress ProgressCallback
}

// Validate checks the configuration before any file is touched.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	switch c.Mode {
	case ModeImage:
	case ModeViewport:
		if !c.Viewport.Valid() {
			return &geometry.GeometryError{Operation: "batch", Name: "viewport", Size: c.Viewport}
		}
	default:
		return fmt.Errorf("invalid mode: %q (must be %s or %s)", c.Mode, ModeImage, ModeViewport)
	}
	return nil
}

// Result holds the result of a batch run.
type Result struct {
	Files       []FileResult
	Duration    time.Duration
	WorkerCount int
}

// Counts returns how many files ended in each status.
func (r *Result) Counts() (rendered, skipped, failed int) {
	for _, f := range r.Files {
		switch f.Status {
		case StatusRendered:
			rendered++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return rendered, skipped, failed
}

// FormatResults formats the per-file results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Files, format)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
	_, err = fmt.Fprint(w, output)
	return err
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	rendered, skipped, failed := r.Counts()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", len(r.Files))
	_, _ = fmt.Fprintf(w, "  Rendered: %d\n", rendered)
	_, _ = fmt.Fprintf(w, "  Skipped: %d\n", skipped)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", failed)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if len(r.Files) > 0 && r.Duration > 0 {
		_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", float64(len(r.Files))/r.Duration.Seconds())
	}
}

package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/render"
)

const (
	// Output and overlay modes.
	FormatJSON   = "json"
	FormatCSV    = "csv"
	FormatText   = "text"
	ModeImage    = "image"
	ModeViewport = "viewport"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Capture: CaptureConfig{
			MagnetRadius:     capture.DefaultMagnetRadius,
			MinPointsToClose: capture.DefaultMinPointsToClose,
		},
		Viewport: ViewportConfig{
			Width:  600,
			Height: 400,
		},
		Style: StyleConfig{
			LineColor:       render.DefaultLineColor,
			ClosedColor:     render.DefaultClosedColor,
			PreviewColor:    render.DefaultPreviewColor,
			FirstPointColor: render.DefaultFirstPointColor,
			PointColor:      render.DefaultPointColor,
			Background:      render.DefaultBackground,
			LineWidth:       render.DefaultLineWidth,
			DotRadius:       render.DefaultDotRadius,
			ShowStatus:      false,
		},
		Image: ImageConfig{
			MaxWidth:  0,
			MaxHeight: 0,
		},
		Output: OutputConfig{
			Format: FormatJSON,
			Indent: true,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			MaxViewportSide: 8192,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 120,
				RequestsPerHour:   3000,
			},
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: true,
			Recursive:       false,
			Mode:            ModeImage,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{FormatJSON, FormatCSV, FormatText}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := c.CaptureConfig().Validate(); err != nil {
		return fmt.Errorf("invalid capture config: %w", err)
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("invalid viewport: %dx%d (must be positive)", c.Viewport.Width, c.Viewport.Height)
	}
	if _, err := c.RenderStyle(); err != nil {
		return err
	}
	if c.Image.MaxWidth < 0 || c.Image.MaxHeight < 0 {
		return fmt.Errorf("invalid image limits: %dx%d (must be >= 0)", c.Image.MaxWidth, c.Image.MaxHeight)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.MaxViewportSide <= 0 {
		return fmt.Errorf("invalid max viewport side: %d (must be positive)", c.Server.MaxViewportSide)
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RequestsPerMinute <= 0 || c.Server.RateLimit.RequestsPerHour <= 0) {
		return fmt.Errorf("invalid rate limit: %d/min %d/hour (must be positive)",
			c.Server.RateLimit.RequestsPerMinute, c.Server.RateLimit.RequestsPerHour)
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	validModes := []string{ModeImage, ModeViewport}
	if c.Batch.Mode != "" && !slices.Contains(validModes, c.Batch.Mode) {
		return fmt.Errorf("invalid batch mode: %s (must be one of: %s)", c.Batch.Mode, strings.Join(validModes, ", "))
	}

	return nil
}

// CaptureConfig converts to the capture machine configuration.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		MagnetRadius:     c.Capture.MagnetRadius,
		MinPointsToClose: c.Capture.MinPointsToClose,
	}
}

// ViewportSize returns the configured drawing surface size.
func (c *Config) ViewportSize() geometry.Size {
	return geometry.Sz(float64(c.Viewport.Width), float64(c.Viewport.Height))
}

// RenderStyle parses the style section.
func (c *Config) RenderStyle() (render.Style, error) {
	s, err := render.NewStyle(render.StyleSpec{
		Line:       c.Style.LineColor,
		Closed:     c.Style.ClosedColor,
		Preview:    c.Style.PreviewColor,
		FirstPoint: c.Style.FirstPointColor,
		Point:      c.Style.PointColor,
		Background: c.Style.Background,
		LineWidth:  c.Style.LineWidth,
		DotRadius:  c.Style.DotRadius,
		ShowStatus: c.Style.ShowStatus,
	})
	if err != nil {
		return render.Style{}, fmt.Errorf("invalid style: %w", err)
	}
	return s, nil
}

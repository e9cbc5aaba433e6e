package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/polydraw/internal/config"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/imageio"
	"github.com/spf13/cobra"
)

// addCaptureFlags registers the capture and viewport overrides shared by
// several commands.
func addCaptureFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("magnet-radius", 30, "snap distance to the first point in image pixels")
	cmd.Flags().Int("min-points", 3, "distinct points required before the polygon can close")
	cmd.Flags().String("viewport", "600x400", "drawing surface size (WxH)")
}

// applyCaptureFlags copies changed capture flags into cfg.
func applyCaptureFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("magnet-radius") {
		cfg.Capture.MagnetRadius, _ = cmd.Flags().GetFloat64("magnet-radius")
	}
	if cmd.Flags().Changed("min-points") {
		cfg.Capture.MinPointsToClose, _ = cmd.Flags().GetInt("min-points")
	}
	if cmd.Flags().Changed("viewport") {
		s, _ := cmd.Flags().GetString("viewport")
		vp, err := geometry.ParseSize(s)
		if err != nil {
			return fmt.Errorf("invalid --viewport: %w", err)
		}
		cfg.Viewport.Width, cfg.Viewport.Height = int(vp.Width), int(vp.Height)
	}
	return nil
}

// addImageFlags registers crop and downscale flags.
func addImageFlags(cmd *cobra.Command) {
	cmd.Flags().String("crop", "", "crop the image to x,y,w,h before annotating")
	cmd.Flags().Int("max-width", 0, "downscale images wider than this (0 = no limit)")
	cmd.Flags().Int("max-height", 0, "downscale images taller than this (0 = no limit)")
}

// loadFrame loads path and applies the crop and fit flags.
func loadFrame(cmd *cobra.Command, cfg *config.Config, path string) (*imageio.Frame, error) {
	frame, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}

	if crop, _ := cmd.Flags().GetString("crop"); crop != "" {
		rect, err := imageio.ParseRect(crop)
		if err != nil {
			return nil, err
		}
		if frame, err = imageio.Crop(frame, rect); err != nil {
			return nil, err
		}
	}

	maxW, maxH := cfg.Image.MaxWidth, cfg.Image.MaxHeight
	if cmd.Flags().Changed("max-width") {
		maxW, _ = cmd.Flags().GetInt("max-width")
	}
	if cmd.Flags().Changed("max-height") {
		maxH, _ = cmd.Flags().GetInt("max-height")
	}
	return imageio.FitWithin(frame, maxW, maxH)
}

// writeOutput writes data to file, or to the command's stdout when file is
// empty.
func writeOutput(cmd *cobra.Command, file string, data []byte) error {
	if file == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

package cmd

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/polydraw/internal/batch"
	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/config"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/render"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

// renderCmd draws a stored polygon over its image.
var renderCmd = &cobra.Command{
	Use:   "render <image>",
	Short: "Render a stored polygon over an image",
	Long: `Render a polygon export over an image and save the result as PNG.

In image mode the polygon is drawn at native resolution. In viewport mode the
image is letterboxed into the drawing surface first, matching what an
interactive client shows.

Examples:
  polydraw render photo.jpg
  polydraw render photo.jpg --polygon shape.json --output out.png
  polydraw render photo.jpg --mode viewport --viewport 800x600 --status`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := applyCaptureFlags(cmd, cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("status") {
		cfg.Style.ShowStatus, _ = cmd.Flags().GetBool("status")
	}
	style, err := cfg.RenderStyle()
	if err != nil {
		return err
	}

	polygonPath, _ := cmd.Flags().GetString("polygon")
	if polygonPath == "" {
		polygonPath = batch.SidecarPath(args[0])
	}
	data, err := os.ReadFile(polygonPath) //nolint:gosec // G304: polygon path is user provided
	if err != nil {
		return fmt.Errorf("failed to read polygon: %w", err)
	}
	exp, err := capture.ParseExport(data)
	if err != nil {
		return err
	}

	frame, err := loadFrame(cmd, cfg, args[0])
	if err != nil {
		return err
	}

	mode, _ := cmd.Flags().GetString("mode")
	var out image.Image
	snap := exp.Snapshot()
	switch mode {
	case config.ModeImage:
		out = render.Overlay(frame.Image, snap, style)
	case config.ModeViewport:
		g, err := geometry.ComputeGeometry(frame.Size(), cfg.ViewportSize())
		if err != nil {
			return err
		}
		snap.Geometry = &g
		if out, err = render.Viewport(frame.Image, snap, style); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid mode: %s (must be %s or %s)", mode, config.ModeImage, config.ModeViewport)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = defaultOverlayPath(cfg.Output.OverlayDir, args[0])
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := imaging.Save(out, output); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Overlay written to %s\n", output)
	return nil
}

// defaultOverlayPath puts <base>_overlay.png in dir, or next to the image.
func defaultOverlayPath(dir, imagePath string) string {
	if dir == "" {
		dir = filepath.Dir(imagePath)
	}
	base := filepath.Base(imagePath)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_overlay.png")
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().String("polygon", "", "polygon export file (default <image>.polygon.json)")
	renderCmd.Flags().String("mode", config.ModeImage, "render mode (image, viewport)")
	renderCmd.Flags().StringP("output", "o", "", "output image path (default <image>_overlay.png)")
	renderCmd.Flags().Bool("status", false, "draw the capture status label")
	addCaptureFlags(renderCmd)
	addImageFlags(renderCmd)
}

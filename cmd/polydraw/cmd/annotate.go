package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/polydraw/internal/batch"
	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/config"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/render"
	"github.com/MeKo-Tech/polydraw/internal/script"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

// annotateCmd replays a recorded pointer session against an image.
var annotateCmd = &cobra.Command{
	Use:   "annotate <image>",
	Short: "Replay a pointer session over an image and export the polygon",
	Long: `Replay a recorded pointer session (YAML or JSON) against an image and
print the captured polygon in image pixel coordinates.

Events use display coordinates of the drawing surface; the image is
letterboxed into the viewport exactly as an interactive client would show it.

Examples:
  polydraw annotate photo.jpg --script session.yaml
  polydraw annotate photo.jpg --script session.yaml --format csv
  polydraw annotate photo.jpg --script session.yaml --sidecar --overlay out.png
  polydraw annotate photo.jpg --script session.yaml --report`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runAnnotate,
}

// annotateReport is the --report output.
type annotateReport struct {
	Image  string                `json:"image"`
	Size   geometry.Size         `json:"size"`
	Steps  []script.Step         `json:"steps"`
	Final  capture.Snapshot      `json:"final"`
	Export capture.PolygonExport `json:"export"`
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := applyCaptureFlags(cmd, cfg); err != nil {
		return err
	}
	applyOutputFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	scriptPath, _ := cmd.Flags().GetString("script")
	sc, err := script.LoadFile(scriptPath)
	if err != nil {
		return err
	}
	if sc.Viewport == nil {
		sc.Viewport = &script.Dim{Width: float64(cfg.Viewport.Width), Height: float64(cfg.Viewport.Height)}
	}

	frame, err := loadFrame(cmd, cfg, args[0])
	if err != nil {
		return err
	}

	machine, err := capture.NewMachine(cfg.CaptureConfig())
	if err != nil {
		return err
	}
	runner := &script.Runner{Machine: machine, Image: frame.Size()}
	res, err := runner.Run(sc)
	if err != nil {
		return err
	}
	if n := res.Errors(); n > 0 {
		slog.Warn("Some script steps failed", "failed", n, "total", len(res.Steps))
	}
	slog.Debug("Replay finished", "image", args[0], "points", len(res.Final.Points), "status", res.Final.Status)

	points := res.Final.Points
	if sidecar, _ := cmd.Flags().GetBool("sidecar"); sidecar {
		data, err := capture.ToJSON(points, cfg.Output.Indent)
		if err != nil {
			return err
		}
		if err := os.WriteFile(batch.SidecarPath(args[0]), data, 0o600); err != nil {
			return fmt.Errorf("failed to write polygon sidecar: %w", err)
		}
	}

	if overlay, _ := cmd.Flags().GetString("overlay"); overlay != "" {
		if err := saveOverlay(cfg, frame.Image, res.Final, overlay); err != nil {
			return err
		}
	}

	var out []byte
	if report, _ := cmd.Flags().GetBool("report"); report {
		out, err = json.MarshalIndent(annotateReport{
			Image:  args[0],
			Size:   frame.Size(),
			Steps:  res.Steps,
			Final:  res.Final,
			Export: capture.Export(points),
		}, "", "  ")
	} else {
		out, err = formatPoints(points, cfg.Output.Format, cfg.Output.Indent)
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd, cfg.Output.File, withNewline(out))
}

// saveOverlay renders the final snapshot in image space and saves it.
func saveOverlay(cfg *config.Config, img image.Image, snap capture.Snapshot, path string) error {
	style, err := cfg.RenderStyle()
	if err != nil {
		return err
	}
	if err := imaging.Save(render.Overlay(img, snap, style), path); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

// applyOutputFlags copies changed output flags into cfg.
func applyOutputFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("format") {
		cfg.Output.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.File, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("no-indent") {
		noIndent, _ := cmd.Flags().GetBool("no-indent")
		cfg.Output.Indent = !noIndent
	}
}

// formatPoints serializes image-space points in one of the export formats.
func formatPoints(points []geometry.Point, format string, indent bool) ([]byte, error) {
	switch format {
	case config.FormatJSON, "":
		return capture.ToJSON(points, indent)
	case config.FormatCSV:
		s, err := capture.ToCSV(points)
		return []byte(s), err
	case config.FormatText:
		return []byte(capture.ToText(points)), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func withNewline(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] != '\n' {
		return append(b, '\n')
	}
	return b
}

func init() {
	rootCmd.AddCommand(annotateCmd)
	annotateCmd.Flags().StringP("script", "s", "", "pointer session script (YAML or JSON)")
	_ = annotateCmd.MarkFlagRequired("script")
	annotateCmd.Flags().StringP("format", "f", "json", "output format (json, csv, text)")
	annotateCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	annotateCmd.Flags().Bool("no-indent", false, "write compact JSON")
	annotateCmd.Flags().Bool("report", false, "print the step log and final state as JSON")
	annotateCmd.Flags().Bool("sidecar", false, "write <image>.polygon.json next to the image")
	annotateCmd.Flags().String("overlay", "", "save an image-space overlay PNG to this path")
	addCaptureFlags(annotateCmd)
	addImageFlags(annotateCmd)
}

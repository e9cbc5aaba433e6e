package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/spf13/cobra"
)

// geometryCmd prints the letterbox geometry for an image and viewport.
var geometryCmd = &cobra.Command{
	Use:   "geometry",
	Short: "Compute display geometry and map a point to image pixels",
	Long: `Compute how an image is letterboxed into the drawing surface and,
optionally, map a display point back to image coordinates.

--rendered gives the on-screen size of the surface when it is scaled by CSS;
the point is then rescaled to the backing buffer first.

Examples:
  polydraw geometry --image 400x300
  polydraw geometry --image 400x300 --viewport 600x400 --point 133.33,0
  polydraw geometry --image 400x300 --point 150,100 --rendered 300x200`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runGeometry,
}

// geometryReport is the geometry command output.
type geometryReport struct {
	Geometry    geometry.DisplayGeometry `json:"geometry"`
	Scaled      geometry.Size            `json:"scaled"`
	ImagePoint  *geometry.Point          `json:"image_point,omitempty"`
	Exported    *[2]int                  `json:"exported,omitempty"`
	InsideImage *bool                    `json:"inside_image,omitempty"`
}

func runGeometry(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()
	if err := applyCaptureFlags(cmd, cfg); err != nil {
		return err
	}

	imageFlag, _ := cmd.Flags().GetString("image")
	img, err := geometry.ParseSize(imageFlag)
	if err != nil {
		return fmt.Errorf("invalid --image: %w", err)
	}

	g, err := geometry.ComputeGeometry(img, cfg.ViewportSize())
	if err != nil {
		return err
	}
	report := geometryReport{Geometry: g, Scaled: g.ScaledImageSize()}

	if pointFlag, _ := cmd.Flags().GetString("point"); pointFlag != "" {
		pt, err := geometry.ParsePoint(pointFlag)
		if err != nil {
			return fmt.Errorf("invalid --point: %w", err)
		}
		var rendered geometry.Size
		if r, _ := cmd.Flags().GetString("rendered"); r != "" {
			if rendered, err = geometry.ParseSize(r); err != nil {
				return fmt.Errorf("invalid --rendered: %w", err)
			}
		}
		p, err := geometry.ToImageSpaceRendered(pt, rendered, g)
		if err != nil {
			return err
		}
		exported := [2]int{capture.Round(p.X), capture.Round(p.Y)}
		inside := p.X >= 0 && p.Y >= 0 && p.X <= g.Image.Width && p.Y <= g.Image.Height
		report.ImagePoint, report.Exported, report.InsideImage = &p, &exported, &inside
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(cmd, "", append(out, '\n'))
}

func init() {
	rootCmd.AddCommand(geometryCmd)
	geometryCmd.Flags().String("image", "", "native image size (WxH)")
	_ = geometryCmd.MarkFlagRequired("image")
	geometryCmd.Flags().String("point", "", "display point to map (x,y)")
	geometryCmd.Flags().String("rendered", "", "rendered surface size when it differs from the viewport (WxH)")
	addCaptureFlags(geometryCmd)
}

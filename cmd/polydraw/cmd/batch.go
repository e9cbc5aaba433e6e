package cmd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/batch"
	"github.com/MeKo-Tech/polydraw/internal/config"
	"github.com/spf13/cobra"
)

// batchCmd renders stored polygons for many images in parallel.
var batchCmd = &cobra.Command{
	Use:   "batch [paths...]",
	Short: "Render stored polygons over many images in parallel",
	Long: `Render the polygon sidecar (<name>.polygon.json) of every image found in
the given files and directories. Images without a sidecar are skipped and
listed in the report.

Examples:
  polydraw batch images/ --output-dir overlays/
  polydraw batch images/ --recursive --workers 8 --format json
  polydraw batch a.png b.jpg --mode viewport --viewport 800x600
  polydraw batch images/ --include "scan_*" --exclude "*_draft.*" --progress`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps centralized configuration to batch.Config with
// CLI flag overrides.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) (*batch.Config, error) {
	if err := applyCaptureFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Batch.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Batch.OutputDir, _ = cmd.Flags().GetString("output-dir")
	}
	if cmd.Flags().Changed("mode") {
		cfg.Batch.Mode, _ = cmd.Flags().GetString("mode")
	}
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Batch.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	if cmd.Flags().Changed("recursive") {
		cfg.Batch.Recursive, _ = cmd.Flags().GetBool("recursive")
	}
	if cmd.Flags().Changed("include") {
		cfg.Batch.Include, _ = cmd.Flags().GetStringSlice("include")
	}
	if cmd.Flags().Changed("exclude") {
		cfg.Batch.Exclude, _ = cmd.Flags().GetStringSlice("exclude")
	}
	if cmd.Flags().Changed("max-width") {
		cfg.Image.MaxWidth, _ = cmd.Flags().GetInt("max-width")
	}
	if cmd.Flags().Changed("max-height") {
		cfg.Image.MaxHeight, _ = cmd.Flags().GetInt("max-height")
	}
	if cmd.Flags().Changed("status") {
		cfg.Style.ShowStatus, _ = cmd.Flags().GetBool("status")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	style, err := cfg.RenderStyle()
	if err != nil {
		return nil, err
	}

	outputDir := cfg.Batch.OutputDir
	if outputDir == "" {
		outputDir = cfg.Output.OverlayDir
	}
	if outputDir == "" {
		outputDir = "overlays"
	}

	return &batch.Config{
		OutputDir:       outputDir,
		Mode:            cfg.Batch.Mode,
		Style:           style,
		Viewport:        cfg.ViewportSize(),
		MaxWidth:        cfg.Image.MaxWidth,
		MaxHeight:       cfg.Image.MaxHeight,
		Workers:         cfg.Batch.Workers,
		ContinueOnError: cfg.Batch.ContinueOnError,
		Recursive:       cfg.Batch.Recursive,
		IncludePatterns: cfg.Batch.Include,
		ExcludePatterns: cfg.Batch.Exclude,
	}, nil
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	applyOutputFlags(cmd, cfg)

	batchConfig, err := configToBatchConfig(cfg, cmd)
	if err != nil {
		return fmt.Errorf("invalid batch configuration: %w", err)
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	if progress, _ := cmd.Flags().GetBool("progress"); progress && !quiet {
		interval, _ := cmd.Flags().GetDuration("progress-interval")
		batchConfig.Progress = batch.NewConsoleProgress(cmd.ErrOrStderr(), "Rendering: ").WithUpdateInterval(interval)
	}

	result, err := batch.ProcessBatch(cmd.Context(), args, batchConfig)
	if err != nil {
		return err
	}

	if err := result.SaveResults(cmd.OutOrStdout(), cfg.Output.Format, cfg.Output.File); err != nil {
		return err
	}
	if cfg.Output.File != "" && !quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", cfg.Output.File)
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats && !quiet {
		result.PrintStats(cmd.ErrOrStderr())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("format", "f", "text", "report format (text, json, csv)")
	batchCmd.Flags().StringP("output", "o", "", "report file (default stdout)")
	batchCmd.Flags().String("output-dir", "", "directory for overlay images (default overlays)")
	batchCmd.Flags().String("mode", config.ModeImage, "render mode (image, viewport)")
	batchCmd.Flags().Bool("status", false, "draw the capture status label")

	batchCmd.Flags().IntP("workers", "w", runtime.NumCPU(), "number of parallel workers")
	batchCmd.Flags().Bool("continue-on-error", true, "keep going when an image fails")

	batchCmd.Flags().BoolP("recursive", "r", false, "search directories recursively")
	batchCmd.Flags().StringSlice("include", nil, "glob patterns for files to include (default: supported images)")
	batchCmd.Flags().StringSlice("exclude", nil, "glob patterns for files to exclude")

	batchCmd.Flags().Bool("progress", false, "show a progress bar")
	batchCmd.Flags().Duration("progress-interval", 100*time.Millisecond, "progress bar refresh interval")
	batchCmd.Flags().BoolP("quiet", "q", false, "suppress progress and statistics")
	batchCmd.Flags().Bool("stats", false, "print processing statistics")

	addCaptureFlags(batchCmd)
	batchCmd.Flags().Int("max-width", 0, "downscale images wider than this (0 = no limit)")
	batchCmd.Flags().Int("max-height", 0, "downscale images taller than this (0 = no limit)")
}

package cmd

import (
	"encoding/json"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/polydraw/internal/batch"
	"github.com/MeKo-Tech/polydraw/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchCommand_JSONReport(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	testutil.SaveImage(t, testutil.CreateTestImage(60, 60, color.White), a)
	testutil.SaveImage(t, testutil.CreateTestImage(60, 60, color.White), b)
	testutil.WritePolygon(t, a, [][2]int{{5, 5}, {50, 5}, {50, 50}, {5, 5}})
	outDir := filepath.Join(t.TempDir(), "overlays")

	output, err := executeCommand(t, "batch", dir, "--output-dir", outDir, "--format", "json", "--workers", "2")
	require.NoError(t, err)

	var doc struct {
		Images   []batch.FileResult `json:"images"`
		Rendered int                `json:"rendered"`
		Skipped  int                `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &doc))
	require.Len(t, doc.Images, 2)
	assert.Equal(t, 1, doc.Rendered)
	assert.Equal(t, 1, doc.Skipped)
	assert.Equal(t, batch.StatusRendered, doc.Images[0].Status)
	assert.True(t, testutil.FileExists(filepath.Join(outDir, "a_overlay.png")))
}

func TestBatchCommand_ReportFile(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "only.png")
	testutil.SaveImage(t, testutil.CreateTestImage(20, 20, color.White), img)
	testutil.WritePolygon(t, img, [][2]int{{1, 1}, {10, 1}})
	report := filepath.Join(t.TempDir(), "report.csv")

	output, err := executeCommand(t, "batch", img, "--output-dir", t.TempDir(), "--format", "csv", "--output", report, "--quiet")
	require.NoError(t, err)
	assert.Empty(t, output)
	assert.True(t, testutil.FileExists(report))
}

func TestBatchCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no args", []string{"batch"}, "requires at least 1 arg"},
		{"bad workers", []string{"batch", t.TempDir(), "--workers", "0"}, "invalid batch workers"},
		{"bad mode", []string{"batch", t.TempDir(), "--mode", "svg"}, "invalid batch mode"},
		{"no images", []string{"batch", t.TempDir(), "--output-dir", t.TempDir()}, "no image files found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigToBatchConfig_Defaults(t *testing.T) {
	resetFlags(rootCmd)
	cfg := GetConfig()

	bc, err := configToBatchConfig(cfg, batchCmd)
	require.NoError(t, err)
	assert.Equal(t, "overlays", bc.OutputDir)
	assert.Equal(t, batch.ModeImage, bc.Mode)
	assert.Equal(t, 4, bc.Workers)
	assert.True(t, bc.ContinueOnError)
	assert.Equal(t, 600.0, bc.Viewport.Width)
}

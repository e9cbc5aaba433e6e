package batch

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []FileResult {
	return []FileResult{
		{Image: "/in/a.png", Polygon: "/in/a.polygon.json", Output: "/out/a_overlay.png", Status: StatusRendered, Points: 4, Closed: true},
		{Image: "/in/b.png", Polygon: "/in/b.polygon.json", Status: StatusSkipped, Error: "no polygon sidecar"},
		{Image: "/in/c.png", Polygon: "/in/c.polygon.json", Status: StatusFailed, Points: 2, Error: "image error in decode: bad, data"},
	}
}

func TestFormatBatchResults_Text(t *testing.T) {
	output, err := formatBatchResults(sampleResults(), "text")
	require.NoError(t, err)

	assert.Contains(t, output, "# /in/a.png\nrendered 4 points (closed) -> /out/a_overlay.png\n")
	assert.Contains(t, output, "# /in/b.png\nskipped: no polygon sidecar\n")
	assert.Contains(t, output, "failed: image error in decode")
}

func TestFormatBatchResults_DefaultIsText(t *testing.T) {
	output, err := formatBatchResults(sampleResults()[:1], "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "# /in/a.png"))
}

func TestFormatBatchResults_JSON(t *testing.T) {
	output, err := formatBatchResults(sampleResults(), "json")
	require.NoError(t, err)

	var doc struct {
		Images   []FileResult `json:"images"`
		Rendered int          `json:"rendered"`
		Skipped  int          `json:"skipped"`
		Failed   int          `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &doc))
	assert.Len(t, doc.Images, 3)
	assert.Equal(t, 1, doc.Rendered)
	assert.Equal(t, 1, doc.Skipped)
	assert.Equal(t, 1, doc.Failed)
	assert.NotContains(t, output, `"output": ""`)
}

func TestFormatBatchResults_JSONEmpty(t *testing.T) {
	output, err := formatBatchResults(nil, "json")
	require.NoError(t, err)
	assert.Contains(t, output, `"images": []`)
}

func TestFormatBatchResults_CSV(t *testing.T) {
	output, err := formatBatchResults(sampleResults(), "csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "image,polygon,output,status,points,closed,error", lines[0])
	assert.Equal(t, "/in/a.png,/in/a.polygon.json,/out/a_overlay.png,rendered,4,true,", lines[1])
	assert.Contains(t, lines[3], `"image error in decode: bad, data"`)
}

func TestFormatBatchResults_Unsupported(t *testing.T) {
	_, err := formatBatchResults(sampleResults(), "xml")
	assert.Error(t, err)
}

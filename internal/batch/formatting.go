package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// formatBatchResults formats the per-file results in the specified format.
func formatBatchResults(files []FileResult, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(files)
	case "csv":
		return formatCSV(files)
	case "text", "":
		return formatText(files), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(files []FileResult) (string, error) {
	rendered, skipped, failed := (&Result{Files: files}).Counts()
	doc := struct {
		Images   []FileResult `json:"images"`
		Rendered int          `json:"rendered"`
		Skipped  int          `json:"skipped"`
		Failed   int          `json:"failed"`
	}{Images: files, Rendered: rendered, Skipped: skipped, Failed: failed}
	if doc.Images == nil {
		doc.Images = []FileResult{}
	}

	bts, err := json.MarshalIndent(doc, "", "  ")
	return string(bts), err
}

func formatCSV(files []FileResult) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{"image", "polygon", "output", "status", "points", "closed", "error"}); err != nil {
		return "", err
	}
	for _, f := range files {
		if err := writer.Write([]string{
			f.Image,
			f.Polygon,
			f.Output,
			f.Status,
			strconv.Itoa(f.Points),
			strconv.FormatBool(f.Closed),
			f.Error,
		}); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func formatText(files []FileResult) string {
	var output strings.Builder
	for i, f := range files {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("# %s\n", f.Image))
		switch f.Status {
		case StatusRendered:
			state := "open"
			if f.Closed {
				state = "closed"
			}
			output.WriteString(fmt.Sprintf("rendered %d points (%s) -> %s\n", f.Points, state, f.Output))
		default:
			output.WriteString(fmt.Sprintf("%s: %s\n", f.Status, f.Error))
		}
	}
	return output.String()
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/render"
	"github.com/MeKo-Tech/polydraw/internal/version"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
	formatText = "text"
)

// maxJSONBody bounds JSON request bodies independently of the upload limit.
const maxJSONBody = 1 << 20

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// configHandler returns the capture settings clients need to mirror the
// server-side state machine.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := ConfigResponse{
		MagnetRadius:     s.capture.MagnetRadius,
		MinPointsToClose: s.capture.MinPointsToClose,
		Viewport:         s.viewport,
		Style: StyleInfo{
			Line:       render.HexColor(s.style.Line),
			Closed:     render.HexColor(s.style.Closed),
			Preview:    render.HexColor(s.style.Preview),
			FirstPoint: render.HexColor(s.style.FirstPoint),
			Point:      render.HexColor(s.style.Point),
			LineWidth:  s.style.LineWidth,
			DotRadius:  s.style.DotRadius,
		},
		MaxUploadMB: s.maxUploadMB,
	}
	s.writeJSON(w, http.StatusOK, response)
}

// geometryHandler computes the letterbox geometry for an image and maps an
// optional display point into image space.
func (s *Server) geometryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GeometryRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Viewport.IsZero() {
		req.Viewport = s.viewport
	}

	g, err := geometry.ComputeGeometry(req.Image, req.Viewport)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	response := GeometryResponse{Geometry: g, Scaled: g.ScaledImageSize()}
	if req.Point != nil {
		var rendered geometry.Size
		if req.Rendered != nil {
			rendered = *req.Rendered
		}
		p, err := geometry.ToImageSpaceRendered(*req.Point, rendered, g)
		if err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		exported := [2]int{capture.Round(p.X), capture.Round(p.Y)}
		inside := p.X >= 0 && p.Y >= 0 && p.X <= g.Image.Width && p.Y <= g.Image.Height
		response.ImagePoint = &p
		response.Exported = &exported
		response.InsideImage = &inside
	}

	s.writeJSON(w, http.StatusOK, response)
}

// exportHandler serializes a list of image-space points.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ExportRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		exportRequestsTotal.WithLabelValues("unknown", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	// Determine output format: default json; allow 'format' in query or body
	format := req.Format
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == "" {
		format = formatJSON
	}

	body, contentType, err := formatExport(req.Points, format, req.Indent)
	if err != nil {
		exportRequestsTotal.WithLabelValues(format, "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	exportRequestsTotal.WithLabelValues(format, "success").Inc()

	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(body); err != nil {
		slog.Error("Failed to write export response", "error", err)
	}
}

// formatExport renders points in one of the supported output formats.
func formatExport(points []geometry.Point, format string, indent bool) ([]byte, string, error) {
	switch format {
	case formatJSON:
		b, err := capture.ToJSON(points, indent)
		if err != nil {
			return nil, "", fmt.Errorf("formatting failed: %w", err)
		}
		return b, "application/json", nil
	case formatCSV:
		out, err := capture.ToCSV(points)
		if err != nil {
			return nil, "", fmt.Errorf("formatting failed: %w", err)
		}
		return []byte(out), "text/csv", nil
	case formatText:
		return []byte(capture.ToText(points)), "text/plain; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("unsupported format: %s", format)
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return err
	}
	return nil
}

// writeJSON writes v as a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding response: %v\n", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		// Log error, but can't send another response
		fmt.Fprintf(os.Stderr, "Error writing error response: %v\n", err)
	}
}

package server

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/imageio"
	"github.com/MeKo-Tech/polydraw/internal/render"
)

const (
	modeImage    = "image"
	modeViewport = "viewport"
)

// renderHandler draws an exported polygon over an uploaded image and returns
// the result as PNG.
func (s *Server) renderHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		// Distinguish body-too-large from generic parse error
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	mode := r.FormValue("mode")
	if mode == "" {
		mode = modeImage
	}
	if mode != modeImage && mode != modeViewport {
		s.writeErrorResponse(w, "Unsupported mode: "+mode, http.StatusBadRequest)
		return
	}

	vp, err := s.requestedViewport(r.FormValue("viewport"))
	if err != nil {
		renderRequestsTotal.WithLabelValues(mode, "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	frame, ok := s.readUploadedImage(w, r)
	if !ok {
		renderRequestsTotal.WithLabelValues(mode, "error").Inc()
		return
	}

	exp, err := readPolygon(r)
	if err != nil {
		renderRequestsTotal.WithLabelValues(mode, "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	style := s.style
	if r.FormValue("status") == "1" {
		style.ShowStatus = true
	}

	start := time.Now()
	out, err := s.renderFrame(frame, exp.Snapshot(), mode, vp, style)
	if err != nil {
		renderRequestsTotal.WithLabelValues(mode, "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Render failed: %v", err), http.StatusUnprocessableEntity)
		return
	}
	renderRequestsTotal.WithLabelValues(mode, "success").Inc()
	renderDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, out); err != nil {
		slog.Error("Failed to encode overlay", "error", err)
	}
}

// readUploadedImage decodes the "image" form file and applies the configured
// size limits. On failure the error response has already been written.
func (s *Server) readUploadedImage(w http.ResponseWriter, r *http.Request) (*imageio.Frame, bool) {
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, false
	}
	defer func() { _ = file.Close() }()

	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, false
	}

	frame, err := imageio.DecodeBytes(data, header.Filename)
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return nil, false
	}

	if rect := r.FormValue("crop"); rect != "" {
		rc, err := imageio.ParseRect(rect)
		if err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		if frame, err = imageio.Crop(frame, rc); err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
	}

	frame, err = imageio.FitWithin(frame, s.maxImageWidth, s.maxImageHeight)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return frame, true
}

// readPolygon reads the polygon export from the "polygon" form value or file.
func readPolygon(r *http.Request) (capture.PolygonExport, error) {
	data := []byte(r.FormValue("polygon"))
	if len(data) == 0 {
		file, _, err := r.FormFile("polygon")
		if err != nil {
			return capture.PolygonExport{}, fmt.Errorf("no polygon provided")
		}
		defer func() { _ = file.Close() }()
		if data, err = io.ReadAll(file); err != nil {
			return capture.PolygonExport{}, fmt.Errorf("failed to read polygon: %w", err)
		}
	}
	return capture.ParseExport(data)
}

// requestedViewport parses an optional "WxH" viewport and checks it against
// the server's limit. An empty value selects the configured viewport.
func (s *Server) requestedViewport(value string) (geometry.Size, error) {
	if value == "" {
		return s.viewport, nil
	}
	vp, err := geometry.ParseSize(value)
	if err != nil {
		return geometry.Size{}, err
	}
	if err := s.checkViewport(vp); err != nil {
		return geometry.Size{}, err
	}
	return vp, nil
}

// checkViewport rejects viewports larger than maxViewportSide on either axis.
func (s *Server) checkViewport(vp geometry.Size) error {
	limit := float64(s.maxViewportSide)
	if vp.Width > limit || vp.Height > limit {
		return &geometry.GeometryError{
			Operation: "check viewport",
			Name:      "viewport",
			Size:      vp,
			Reason:    fmt.Sprintf("exceeds the %dx%d limit", s.maxViewportSide, s.maxViewportSide),
		}
	}
	return nil
}

// renderFrame renders snap over the frame in image or viewport space.
func (s *Server) renderFrame(frame *imageio.Frame, snap capture.Snapshot, mode string, vp geometry.Size, style render.Style) (image.Image, error) {
	if mode == modeImage {
		return render.Overlay(frame.Image, snap, style), nil
	}

	g, err := geometry.ComputeGeometry(frame.Size(), vp)
	if err != nil {
		return nil, err
	}
	snap.Geometry = &g
	return render.Viewport(frame.Image, snap, style)
}

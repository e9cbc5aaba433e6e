package server

import (
	"fmt"
	"net/http"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int

	capture  capture.Config
	viewport geometry.Size
	style    render.Style

	maxImageWidth   int
	maxImageHeight  int
	maxViewportSide int

	rateLimiter *RateLimiter
}

// DefaultMaxViewportSide caps client-requested viewports when no limit is
// configured.
const DefaultMaxViewportSide = 8192

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int

	Capture  capture.Config
	Viewport geometry.Size
	Style    render.Style

	// Uploaded images larger than this are downscaled before annotation.
	// Zero disables the limit.
	MaxImageWidth  int
	MaxImageHeight int

	// Largest viewport width or height clients may request. Zero means
	// DefaultMaxViewportSide.
	MaxViewportSide int

	RateLimit RateLimitConfig
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed REST request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StyleInfo is the overlay style as hex colors.
type StyleInfo struct {
	Line       string `json:"line_color"`
	Closed     string `json:"closed_color"`
	Preview    string `json:"preview_color"`
	FirstPoint string `json:"first_point_color"`
	Point      string `json:"point_color"`
	LineWidth  int    `json:"line_width"`
	DotRadius  int    `json:"dot_radius"`
}

// ConfigResponse describes the capture settings clients should mirror.
type ConfigResponse struct {
	MagnetRadius     float64       `json:"magnet_radius"`
	MinPointsToClose int           `json:"min_points_to_close"`
	Viewport         geometry.Size `json:"viewport"`
	Style            StyleInfo     `json:"style"`
	MaxUploadMB      int64         `json:"max_upload_mb"`
}

// GeometryRequest asks for the display geometry of an image and optionally
// maps one display point into image space.
type GeometryRequest struct {
	Image    geometry.Size   `json:"image"`
	Viewport geometry.Size   `json:"viewport"`
	Rendered *geometry.Size  `json:"rendered,omitempty"`
	Point    *geometry.Point `json:"point,omitempty"`
}

// GeometryResponse carries the computed geometry and mapped point.
type GeometryResponse struct {
	Geometry    geometry.DisplayGeometry `json:"geometry"`
	Scaled      geometry.Size            `json:"scaled"`
	ImagePoint  *geometry.Point          `json:"image_point,omitempty"`
	Exported    *[2]int                  `json:"exported,omitempty"`
	InsideImage *bool                    `json:"inside_image,omitempty"`
}

// ExportRequest is a list of image-space points to export.
type ExportRequest struct {
	Points []geometry.Point `json:"points"`
	Format string           `json:"format,omitempty"`
	Indent bool             `json:"indent,omitempty"`
}

// NewServer creates a new annotation server instance.
func NewServer(config Config) (*Server, error) {
	if err := config.Capture.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if !config.Viewport.Valid() {
		return nil, fmt.Errorf("invalid viewport: %s", config.Viewport)
	}
	if config.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("invalid max upload size: %d", config.MaxUploadMB)
	}
	if config.MaxViewportSide < 0 {
		return nil, fmt.Errorf("invalid max viewport side: %d", config.MaxViewportSide)
	}
	if config.MaxViewportSide == 0 {
		config.MaxViewportSide = DefaultMaxViewportSide
	}

	s := &Server{
		corsOrigin:      config.CORSOrigin,
		maxUploadMB:     config.MaxUploadMB,
		timeoutSec:      config.TimeoutSec,
		capture:         config.Capture,
		viewport:        config.Viewport,
		style:           config.Style,
		maxImageWidth:   config.MaxImageWidth,
		maxImageHeight:  config.MaxImageHeight,
		maxViewportSide: config.MaxViewportSide,
	}
	if err := s.checkViewport(config.Viewport); err != nil {
		return nil, fmt.Errorf("invalid viewport: %w", err)
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit.RequestsPerMinute, config.RateLimit.RequestsPerHour)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/config", s.corsMiddleware(s.configHandler))
	mux.HandleFunc("/geometry", s.corsMiddleware(s.rateLimitMiddleware(s.geometryHandler)))
	mux.HandleFunc("/export", s.corsMiddleware(s.rateLimitMiddleware(s.exportHandler)))
	mux.HandleFunc("/render", s.corsMiddleware(s.rateLimitMiddleware(s.renderHandler)))
	mux.HandleFunc("/ws/annotate", s.rateLimitMiddleware(s.annotateWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

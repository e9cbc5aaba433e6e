package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polydraw_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polydraw_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Overlay rendering metrics
	renderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polydraw_render_requests_total",
			Help: "Total number of overlay render requests",
		},
		[]string{"mode", "status"}, // mode: image, viewport
	)

	renderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polydraw_render_duration_seconds",
			Help:    "Overlay render duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	exportRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polydraw_export_requests_total",
			Help: "Total number of polygon export requests",
		},
		[]string{"format", "status"},
	)

	// Capture state machine metrics
	captureTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polydraw_capture_transitions_total",
			Help: "Capture events handled, by outcome",
		},
		[]string{"outcome"},
	)

	polygonsClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "polydraw_polygons_closed_total",
			Help: "Total number of polygons closed over WebSocket sessions",
		},
	)

	imageLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polydraw_image_loads_total",
			Help: "Image loads by result",
		},
		[]string{"result"}, // result: loaded, failed, stale
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polydraw_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polydraw_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polydraw_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polydraw_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

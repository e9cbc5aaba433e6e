//nolint:lll
package config

// Config represents the complete configuration for polydraw.
// It includes settings for all commands (annotate, render, serve, batch) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Capture state machine tuning
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture" json:"capture"`

	// Drawing surface size
	Viewport ViewportConfig `mapstructure:"viewport" yaml:"viewport" json:"viewport"`

	// Overlay style
	Style StyleConfig `mapstructure:"style" yaml:"style" json:"style"`

	// Image loading
	Image ImageConfig `mapstructure:"image" yaml:"image" json:"image"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// CaptureConfig contains polygon capture settings.
type CaptureConfig struct {
	MagnetRadius     float64 `mapstructure:"magnet_radius" yaml:"magnet_radius" json:"magnet_radius"`
	MinPointsToClose int     `mapstructure:"min_points_to_close" yaml:"min_points_to_close" json:"min_points_to_close"`
}

// ViewportConfig is the backing buffer size of the drawing surface.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width" json:"width"`
	Height int `mapstructure:"height" yaml:"height" json:"height"`
}

// StyleConfig contains overlay colors and sizes as hex strings.
type StyleConfig struct {
	LineColor       string `mapstructure:"line_color" yaml:"line_color" json:"line_color"`
	ClosedColor     string `mapstructure:"closed_color" yaml:"closed_color" json:"closed_color"`
	PreviewColor    string `mapstructure:"preview_color" yaml:"preview_color" json:"preview_color"`
	FirstPointColor string `mapstructure:"first_point_color" yaml:"first_point_color" json:"first_point_color"`
	PointColor      string `mapstructure:"point_color" yaml:"point_color" json:"point_color"`
	Background      string `mapstructure:"background" yaml:"background" json:"background"`
	LineWidth       int    `mapstructure:"line_width" yaml:"line_width" json:"line_width"`
	DotRadius       int    `mapstructure:"dot_radius" yaml:"dot_radius" json:"dot_radius"`
	ShowStatus      bool   `mapstructure:"show_status" yaml:"show_status" json:"show_status"`
}

// ImageConfig controls how uploaded images are prepared.
type ImageConfig struct {
	MaxWidth  int `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	MaxHeight int `mapstructure:"max_height" yaml:"max_height" json:"max_height"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format     string `mapstructure:"format" yaml:"format" json:"format"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	Indent     bool   `mapstructure:"indent" yaml:"indent" json:"indent"`
	OverlayDir string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// Largest viewport width or height a client may ask the server to render.
	MaxViewportSide int             `mapstructure:"max_viewport_side" yaml:"max_viewport_side" json:"max_viewport_side"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	OutputDir       string   `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	Mode            string   `mapstructure:"mode" yaml:"mode" json:"mode"`
}

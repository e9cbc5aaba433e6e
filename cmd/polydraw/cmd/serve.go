package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/config"
	"github.com/MeKo-Tech/polydraw/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for polygon annotation",
	Long: `Start an HTTP server for interactive polygon capture and rendering.

The server provides the following endpoints:
  GET  /health       - Health check endpoint
  GET  /config       - Capture settings clients should mirror
  POST /geometry     - Display geometry and point mapping
  POST /export       - Export points as json, csv or text
  POST /render       - Render a polygon over an uploaded image
  GET  /ws/annotate  - Websocket annotation session
  GET  /metrics      - Prometheus metrics

Examples:
  polydraw serve
  polydraw serve --port 8080
  polydraw serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	RunE: runServe,
}

// serverConfig builds the server configuration from cfg with flag overrides.
func serverConfig(cmd *cobra.Command, cfg *config.Config) (server.Config, error) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	if cmd.Flags().Changed("max-upload-size") {
		cfg.Server.MaxUploadMB, _ = cmd.Flags().GetInt("max-upload-size")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Server.TimeoutSec, _ = cmd.Flags().GetInt("timeout")
	}
	if cmd.Flags().Changed("rate-limit-enabled") {
		cfg.Server.RateLimit.Enabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
	}
	if cmd.Flags().Changed("requests-per-minute") {
		cfg.Server.RateLimit.RequestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
	}
	if cmd.Flags().Changed("requests-per-hour") {
		cfg.Server.RateLimit.RequestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
	}
	if err := applyCaptureFlags(cmd, cfg); err != nil {
		return server.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return server.Config{}, err
	}
	style, err := cfg.RenderStyle()
	if err != nil {
		return server.Config{}, err
	}

	return server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSOrigin:      cfg.Server.CORSOrigin,
		MaxUploadMB:     int64(cfg.Server.MaxUploadMB),
		TimeoutSec:      cfg.Server.TimeoutSec,
		Capture:         cfg.CaptureConfig(),
		Viewport:        cfg.ViewportSize(),
		Style:           style,
		MaxImageWidth:   cfg.Image.MaxWidth,
		MaxImageHeight:  cfg.Image.MaxHeight,
		MaxViewportSide: cfg.Server.MaxViewportSide,
		RateLimit: server.RateLimitConfig{
			Enabled:           cfg.Server.RateLimit.Enabled,
			RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
			RequestsPerHour:   cfg.Server.RateLimit.RequestsPerHour,
		},
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()
	serverCfg, err := serverConfig(cmd, cfg)
	if err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if cmd.Flags().Changed("shutdown-timeout") {
		shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv, err := server.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(serverCfg.TimeoutSec) * time.Second,
		// Websocket sessions outlive a single request, so only idle
		// connections are bounded here.
		IdleTimeout: 2 * time.Minute,
	}

	go func() {
		slog.Info("Starting polydraw server", "host", serverCfg.Host, "port", serverCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}

	slog.Info("Graceful shutdown completed")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 120, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 3000, "maximum requests per hour per client")
	addCaptureFlags(serveCmd)
}

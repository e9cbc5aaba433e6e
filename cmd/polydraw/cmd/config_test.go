package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/polydraw/internal/config"
	"github.com/MeKo-Tech/polydraw/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigInit(t *testing.T) {
	file := filepath.Join(t.TempDir(), "conf", "polydraw.yaml")

	output, err := executeCommand(t, "config", "init", file)
	require.NoError(t, err)
	assert.Contains(t, output, "Configuration written to "+file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	defaults := config.DefaultConfig()
	assert.Equal(t, defaults.Capture, cfg.Capture)
	assert.Equal(t, defaults.Viewport, cfg.Viewport)
	assert.Equal(t, defaults.Style, cfg.Style)
	assert.Equal(t, defaults.Server, cfg.Server)

	_, err = executeCommand(t, "config", "init", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigShow(t *testing.T) {
	output, err := executeCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, output, "magnet_radius: 30")
	assert.Contains(t, output, "min_points_to_close: 3")
}

func TestServerConfig(t *testing.T) {
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	require.NoError(t, serveCmd.Flags().Set("port", "9090"))
	require.NoError(t, serveCmd.Flags().Set("rate-limit-enabled", "true"))
	require.NoError(t, serveCmd.Flags().Set("magnet-radius", "12"))
	require.NoError(t, serveCmd.Flags().Set("viewport", "800x600"))

	cfg := config.DefaultConfig()
	sc, err := serverConfig(serveCmd, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 9090, sc.Port)
	assert.Equal(t, "localhost", sc.Host)
	assert.Equal(t, int64(50), sc.MaxUploadMB)
	assert.True(t, sc.RateLimit.Enabled)
	assert.Equal(t, 120, sc.RateLimit.RequestsPerMinute)
	assert.Equal(t, 12.0, sc.Capture.MagnetRadius)
	assert.Equal(t, 800.0, sc.Viewport.Width)

	_, err = server.NewServer(sc)
	require.NoError(t, err)
}

func TestServerConfig_Invalid(t *testing.T) {
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	require.NoError(t, serveCmd.Flags().Set("port", "70000"))
	cfg := config.DefaultConfig()
	_, err := serverConfig(serveCmd, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

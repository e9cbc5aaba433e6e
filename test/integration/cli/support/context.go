package support

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/server"
	"github.com/gorilla/websocket"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastError    error
	LastDuration time.Duration

	// Capture state
	Machine     *capture.Machine
	LastOutcome capture.Outcome
	LastLoadErr error
	Loads       map[string]capture.LoadToken

	// Server management
	HTTPTestServer *HTTPTestServerWrapper

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string

	// WebSocket session state
	Socket         *websocket.Conn
	LastSocketMsg  server.AnnotateResponse
	SocketErrors   []server.AnnotateResponse
	socketRequests int

	// Test environment
	TempDir      string
	CreatedFiles []string
}

// NewTestContext creates a new test context with a fresh temp directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "polydraw-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		TempDir:      tempDir,
		Loads:        map[string]capture.LoadToken{},
		CreatedFiles: []string{},
	}, nil
}

// Cleanup closes connections and removes all temporary files.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if testCtx.Socket != nil {
		if err := testCtx.Socket.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close websocket: %w", err))
		}
		testCtx.Socket = nil
	}
	testCtx.StopServer()

	for _, file := range testCtx.CreatedFiles {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove file %s: %w", file, err))
		}
	}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// TrackFile adds a file to be cleaned up after the scenario.
func (testCtx *TestContext) TrackFile(filename string) {
	testCtx.CreatedFiles = append(testCtx.CreatedFiles, filename)
}

// TempPath returns name inside the scenario's temp directory.
func (testCtx *TestContext) TempPath(name string) string {
	return filepath.Join(testCtx.TempDir, name)
}

// expand replaces $TMP in a step argument with the scenario's temp directory.
func (testCtx *TestContext) expand(s string) string {
	return strings.ReplaceAll(s, "$TMP", testCtx.TempDir)
}

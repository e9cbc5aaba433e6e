package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/render"
)

// testConfig returns a server configuration with production defaults.
func testConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        8080,
		CORSOrigin:  "*",
		MaxUploadMB: 5,
		TimeoutSec:  30,
		Capture:     capture.DefaultConfig(),
		Viewport:    geometry.Sz(600, 400),
		Style:       render.DefaultStyle(),
	}
}

// newTestServer creates a server with the default test configuration.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(testConfig())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

// mockWebSocketConn records messages written to it.
type mockWebSocketConn struct {
	mu           sync.Mutex
	sentMessages []sentMessage
}

type sentMessage struct {
	messageType int
	data        []byte
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = append(m.sentMessages, sentMessage{
		messageType: messageType,
		data:        data,
	})
	return nil
}

func (m *mockWebSocketConn) getSentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sentMessages))
	copy(out, m.sentMessages)
	return out
}

// createTestImage creates a simple gradient image for testing.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			r := byte(x % 256)
			g := byte(y % 256)
			img.Set(x, y, color.RGBA{r, g, 0, 255})
		}
	}
	return img
}

// encodeImageToPNG encodes an image to PNG bytes.
func encodeImageToPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	return buf.Bytes(), err
}

// createRenderRequest creates a multipart /render request. A nil imageData
// omits the image part.
func createRenderRequest(
	imageData []byte,
	filename string,
	extraFields map[string]string,
) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if imageData != nil {
		part, err := writer.CreateFormFile("image", filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(imageData); err != nil {
			return nil, err
		}
	}

	for key, value := range extraFields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req := httptest.NewRequest(http.MethodPost, "/render", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return req, nil
}

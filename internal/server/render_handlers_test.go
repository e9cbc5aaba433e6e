package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const closedSquare = `{"polygon_points":[[20,20],[180,20],[180,80],[20,80],[20,20]]}`

var pointBlue = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 255}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestServer_RenderHandler(t *testing.T) {
	server := newTestServer(t)
	imageData, err := encodeImageToPNG(createTestImage(200, 100))
	require.NoError(t, err)

	t.Run("image mode", func(t *testing.T) {
		req, err := createRenderRequest(imageData, "test.png", map[string]string{"polygon": closedSquare})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.renderHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

		out, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 200, 100), out.Bounds())
		assert.Equal(t, pointBlue, nrgbaAt(out, 20, 20))
		assert.Equal(t, pointBlue, nrgbaAt(out, 180, 80))
	})

	t.Run("viewport mode", func(t *testing.T) {
		req, err := createRenderRequest(imageData, "test.png", map[string]string{
			"polygon": closedSquare,
			"mode":    "viewport",
		})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.renderHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		out, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 600, 400), out.Bounds())
		// scale 3, offset (0, 50)
		assert.Equal(t, pointBlue, nrgbaAt(out, 60, 110))
		assert.Equal(t, color.NRGBA{A: 255}, nrgbaAt(out, 5, 5))
	})

	t.Run("viewport override", func(t *testing.T) {
		req, err := createRenderRequest(imageData, "test.png", map[string]string{
			"polygon":  closedSquare,
			"mode":     "viewport",
			"viewport": "300x300",
		})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.renderHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		out, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 300, 300), out.Bounds())
	})

	t.Run("crop before render", func(t *testing.T) {
		req, err := createRenderRequest(imageData, "test.png", map[string]string{
			"polygon": `{"polygon_points":[[5,5],[30,5]]}`,
			"crop":    "10,10,50,40",
		})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.renderHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		out, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 50, 40), out.Bounds())
	})

	errorCases := []struct {
		name   string
		image  []byte
		fields map[string]string
		status int
	}{
		{"missing image", nil, map[string]string{"polygon": closedSquare}, http.StatusBadRequest},
		{"invalid image", []byte("not an image"), map[string]string{"polygon": closedSquare}, http.StatusBadRequest},
		{"missing polygon", imageData, nil, http.StatusBadRequest},
		{"bad polygon", imageData, map[string]string{"polygon": `{"points":[]}`}, http.StatusBadRequest},
		{"bad mode", imageData, map[string]string{"polygon": closedSquare, "mode": "thumbnail"}, http.StatusBadRequest},
		{"bad crop", imageData, map[string]string{"polygon": closedSquare, "crop": "500,500,10,10"}, http.StatusBadRequest},
		{"bad viewport", imageData, map[string]string{"polygon": closedSquare, "mode": "viewport", "viewport": "0x10"}, http.StatusBadRequest},
		{"infinite viewport", imageData, map[string]string{"polygon": closedSquare, "mode": "viewport", "viewport": "infx10"}, http.StatusBadRequest},
		{"oversize viewport", imageData, map[string]string{"polygon": closedSquare, "mode": "viewport", "viewport": "100000x100000"}, http.StatusBadRequest},
		{"far off polygon", imageData, map[string]string{"polygon": `{"polygon_points":[[0,0],[1e300,5]]}`}, http.StatusBadRequest},
	}

	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			req, err := createRenderRequest(tt.image, "test.png", tt.fields)
			require.NoError(t, err)
			w := httptest.NewRecorder()
			server.renderHandler(w, req)

			assert.Equal(t, tt.status, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.False(t, response.Success)
			assert.NotEmpty(t, response.Error)
		})
	}

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.renderHandler(w, httptest.NewRequest(http.MethodGet, "/render", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestServer_RenderHandler_FitsLargeImages(t *testing.T) {
	cfg := testConfig()
	cfg.MaxImageWidth = 100
	cfg.MaxImageHeight = 100
	server, err := NewServer(cfg)
	require.NoError(t, err)

	imageData, err := encodeImageToPNG(createTestImage(400, 200))
	require.NoError(t, err)
	req, err := createRenderRequest(imageData, "big.png", map[string]string{"polygon": `{"polygon_points":[]}`})
	require.NoError(t, err)
	w := httptest.NewRecorder()
	server.renderHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	out, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), out.Bounds())
}

func TestServer_RenderHandler_ViewportLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxViewportSide = 1000
	server, err := NewServer(cfg)
	require.NoError(t, err)

	imageData, err := encodeImageToPNG(createTestImage(200, 100))
	require.NoError(t, err)

	req, err := createRenderRequest(imageData, "test.png", map[string]string{
		"polygon":  closedSquare,
		"mode":     "viewport",
		"viewport": "1001x500",
	})
	require.NoError(t, err)
	w := httptest.NewRecorder()
	server.renderHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response.Error, "exceeds the 1000x1000 limit")

	req, err = createRenderRequest(imageData, "test.png", map[string]string{
		"polygon":  closedSquare,
		"mode":     "viewport",
		"viewport": "1000x500",
	})
	require.NoError(t, err)
	w = httptest.NewRecorder()
	server.renderHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	out, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1000, 500), out.Bounds())
}

func TestServer_RenderHandler_FarOffCanvasPolygon(t *testing.T) {
	server := newTestServer(t)
	imageData, err := encodeImageToPNG(createTestImage(10, 10))
	require.NoError(t, err)

	req, err := createRenderRequest(imageData, "test.png", map[string]string{
		"polygon": `{"polygon_points":[[0,0],[16000000,5]]}`,
	})
	require.NoError(t, err)
	w := httptest.NewRecorder()

	start := time.Now()
	server.renderHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Less(t, time.Since(start), 2*time.Second)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*annotationSession, *mockWebSocketConn) {
	t.Helper()
	conn := &mockWebSocketConn{}
	sess, err := newTestServer(t).newAnnotationSession(context.Background(), conn)
	require.NoError(t, err)
	return sess, conn
}

func sendRequest(t *testing.T, sess *annotationSession, req AnnotateRequest) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	sess.handleMessage(data)
}

func responses(t *testing.T, conn *mockWebSocketConn) []AnnotateResponse {
	t.Helper()
	msgs := conn.getSentMessages()
	out := make([]AnnotateResponse, len(msgs))
	for i, m := range msgs {
		assert.Equal(t, websocket.TextMessage, m.messageType)
		require.NoError(t, json.Unmarshal(m.data, &out[i]))
	}
	return out
}

func lastResponse(t *testing.T, conn *mockWebSocketConn) AnnotateResponse {
	t.Helper()
	all := responses(t, conn)
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := encodeImageToPNG(createTestImage(w, h))
	require.NoError(t, err)
	return data
}

func receiveLoad(t *testing.T, sess *annotationSession) loadResult {
	t.Helper()
	select {
	case res := <-sess.loads:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for image decode")
		return loadResult{}
	}
}

// loadImage sends an image message and completes the decode on the test goroutine.
func loadImage(t *testing.T, sess *annotationSession, w, h int) {
	t.Helper()
	sendRequest(t, sess, AnnotateRequest{Type: msgImage, Image: pngBytes(t, w, h), Viewport: &geometry.Size{Width: 600, Height: 400}})
	sess.handleLoad(receiveLoad(t, sess))
}

func down(t *testing.T, sess *annotationSession, x, y float64) {
	t.Helper()
	sendRequest(t, sess, AnnotateRequest{Type: msgPointerDown, Position: &geometry.Point{X: x, Y: y}})
}

func TestAnnotationSession_PointerWithoutImage(t *testing.T) {
	sess, conn := newTestSession(t)

	down(t, sess, 10, 10)

	resp := lastResponse(t, conn)
	assert.Equal(t, respState, resp.Type)
	assert.Equal(t, "no_active_image", resp.Outcome)
	require.NotNil(t, resp.State)
	assert.Empty(t, resp.State.Points)
	assert.False(t, resp.State.Active)
	assert.Empty(t, resp.Export.PolygonPoints)
}

func TestAnnotationSession_LoadImage(t *testing.T) {
	sess, conn := newTestSession(t)

	sendRequest(t, sess, AnnotateRequest{Type: msgImage, RequestID: "r1", Image: pngBytes(t, 300, 200)})
	loading := lastResponse(t, conn)
	assert.Equal(t, "loading", loading.Outcome)
	assert.True(t, loading.State.Loading)
	assert.False(t, loading.State.Active)
	assert.Equal(t, "r1", loading.RequestID)

	sess.handleLoad(receiveLoad(t, sess))

	loaded := lastResponse(t, conn)
	assert.Equal(t, "image_loaded", loaded.Outcome)
	assert.Equal(t, "r1", loaded.RequestID)
	assert.True(t, loaded.State.Active)
	assert.False(t, loaded.State.Loading)
	require.NotNil(t, loaded.State.Geometry)
	assert.InDelta(t, 2.0, loaded.State.Geometry.Scale, 1e-9)
	require.NotNil(t, sess.frame)
	assert.Equal(t, 300, sess.frame.Width)
}

func TestAnnotationSession_DrawAndClose(t *testing.T) {
	sess, conn := newTestSession(t)
	loadImage(t, sess, 600, 400)

	down(t, sess, 10, 10)
	assert.Equal(t, "appended", lastResponse(t, conn).Outcome)
	down(t, sess, 100, 10)
	down(t, sess, 100, 100)

	sendRequest(t, sess, AnnotateRequest{Type: msgPointerMove, Position: &geometry.Point{X: 15, Y: 15}})
	moved := lastResponse(t, conn)
	assert.Equal(t, "preview_updated", moved.Outcome)
	require.NotNil(t, moved.State.Preview)
	assert.True(t, moved.State.Preview.Snaps)
	assert.Equal(t, geometry.Pt(10, 10), moved.State.Preview.Target)

	down(t, sess, 12, 12)
	closed := lastResponse(t, conn)
	assert.Equal(t, "closed", closed.Outcome)
	assert.Equal(t, capture.StatusClosed, closed.State.Status)
	assert.Equal(t, [][2]int{{10, 10}, {100, 10}, {100, 100}, {10, 10}}, closed.Export.PolygonPoints)

	down(t, sess, 300, 300)
	assert.Equal(t, "ignored_closed", lastResponse(t, conn).Outcome)

	sendRequest(t, sess, AnnotateRequest{Type: msgUndo})
	assert.Equal(t, "ignored_closed", lastResponse(t, conn).Outcome)

	sendRequest(t, sess, AnnotateRequest{Type: msgReset})
	reset := lastResponse(t, conn)
	assert.Equal(t, "reset", reset.Outcome)
	assert.Equal(t, capture.StatusEmpty, reset.State.Status)
}

func TestAnnotationSession_ChangedFlag(t *testing.T) {
	sess, conn := newTestSession(t)

	sendRequest(t, sess, AnnotateRequest{Type: msgState})
	assert.False(t, lastResponse(t, conn).Changed)

	loadImage(t, sess, 600, 400)
	assert.True(t, lastResponse(t, conn).Changed, "a new image starts a fresh polygon")

	sendRequest(t, sess, AnnotateRequest{Type: msgUndo})
	assert.False(t, lastResponse(t, conn).Changed)

	down(t, sess, 10, 10)
	assert.True(t, lastResponse(t, conn).Changed)

	sendRequest(t, sess, AnnotateRequest{Type: msgPointerMove, Position: &geometry.Point{X: 50, Y: 50}})
	moved := lastResponse(t, conn)
	assert.Equal(t, "preview_updated", moved.Outcome)
	assert.False(t, moved.Changed)

	sendRequest(t, sess, AnnotateRequest{Type: msgUndo})
	assert.True(t, lastResponse(t, conn).Changed)
}

func TestAnnotationSession_UndoAndLeave(t *testing.T) {
	sess, conn := newTestSession(t)
	loadImage(t, sess, 600, 400)

	sendRequest(t, sess, AnnotateRequest{Type: msgUndo})
	assert.Equal(t, "nothing_to_undo", lastResponse(t, conn).Outcome)

	down(t, sess, 10, 10)
	down(t, sess, 50, 50)
	sendRequest(t, sess, AnnotateRequest{Type: msgUndo})
	undone := lastResponse(t, conn)
	assert.Equal(t, "undone", undone.Outcome)
	assert.Len(t, undone.State.Points, 1)

	sendRequest(t, sess, AnnotateRequest{Type: msgPointerLeave})
	left := lastResponse(t, conn)
	assert.Equal(t, "preview_cleared", left.Outcome)
	assert.Nil(t, left.State.Preview)
}

func TestAnnotationSession_LetterboxMapping(t *testing.T) {
	sess, conn := newTestSession(t)
	loadImage(t, sess, 1200, 400)

	// scale 0.5, offset (0, 100)
	down(t, sess, 300, 200)
	resp := lastResponse(t, conn)
	assert.Equal(t, [][2]int{{600, 200}}, resp.Export.PolygonPoints)

	sendRequest(t, sess, AnnotateRequest{
		Type:     msgPointerDown,
		Position: &geometry.Point{X: 150, Y: 100},
		Rendered: &geometry.Size{Width: 300, Height: 200},
	})
	resp = lastResponse(t, conn)
	assert.Equal(t, [][2]int{{600, 200}, {600, 200}}, resp.Export.PolygonPoints)
}

func TestAnnotationSession_StaleLoadIsDropped(t *testing.T) {
	sess, conn := newTestSession(t)

	sendRequest(t, sess, AnnotateRequest{Type: msgImage, RequestID: "first", Image: pngBytes(t, 100, 100)})
	sendRequest(t, sess, AnnotateRequest{Type: msgImage, RequestID: "second", Image: pngBytes(t, 200, 100)})

	results := []loadResult{receiveLoad(t, sess), receiveLoad(t, sess)}
	sort.Slice(results, func(i, j int) bool { return results[i].token < results[j].token })

	before := len(conn.getSentMessages())
	sess.handleLoad(results[0])
	assert.Len(t, conn.getSentMessages(), before, "stale completion must not produce messages")
	assert.False(t, sess.machine.Active())

	sess.handleLoad(results[1])
	resp := lastResponse(t, conn)
	assert.Equal(t, "image_loaded", resp.Outcome)
	assert.Equal(t, "second", resp.RequestID)
	assert.Equal(t, geometry.Sz(200, 100), resp.State.Geometry.Image)
}

func TestAnnotationSession_FailedLoad(t *testing.T) {
	t.Run("without previous image", func(t *testing.T) {
		sess, conn := newTestSession(t)
		sendRequest(t, sess, AnnotateRequest{Type: msgImage, Image: []byte("garbage")})
		sess.handleLoad(receiveLoad(t, sess))

		all := responses(t, conn)
		require.Len(t, all, 3)
		assert.Equal(t, respError, all[1].Type)
		assert.Equal(t, "processing_error", all[1].ErrorType)
		assert.Equal(t, "load_cancelled", all[2].Outcome)
		assert.False(t, all[2].State.Active)
	})

	t.Run("previous image stays active", func(t *testing.T) {
		sess, conn := newTestSession(t)
		loadImage(t, sess, 600, 400)
		down(t, sess, 10, 10)

		sendRequest(t, sess, AnnotateRequest{Type: msgImage, Image: []byte("garbage")})
		sess.handleLoad(receiveLoad(t, sess))

		resp := lastResponse(t, conn)
		assert.Equal(t, "load_cancelled", resp.Outcome)
		assert.True(t, resp.State.Active)
		assert.Len(t, resp.State.Points, 1)
	})

	t.Run("empty image", func(t *testing.T) {
		sess, conn := newTestSession(t)
		sendRequest(t, sess, AnnotateRequest{Type: msgImage})
		resp := lastResponse(t, conn)
		assert.Equal(t, respError, resp.Type)
		assert.Equal(t, "invalid_request", resp.ErrorType)
	})
}

func TestAnnotationSession_CropOnLoad(t *testing.T) {
	sess, conn := newTestSession(t)
	sendRequest(t, sess, AnnotateRequest{Type: msgImage, Image: pngBytes(t, 400, 400), Crop: "0,0,300,200"})
	sess.handleLoad(receiveLoad(t, sess))

	resp := lastResponse(t, conn)
	assert.Equal(t, "image_loaded", resp.Outcome)
	assert.Equal(t, geometry.Sz(300, 200), resp.State.Geometry.Image)
}

func TestAnnotationSession_Resize(t *testing.T) {
	sess, conn := newTestSession(t)

	sendRequest(t, sess, AnnotateRequest{Type: msgResize, Viewport: &geometry.Size{Width: 300, Height: 200}})
	assert.Equal(t, "no_active_image", lastResponse(t, conn).Outcome)

	loadImage(t, sess, 600, 400)
	down(t, sess, 60, 40)

	sendRequest(t, sess, AnnotateRequest{Type: msgResize, Viewport: &geometry.Size{Width: 300, Height: 200}})
	resp := lastResponse(t, conn)
	assert.Equal(t, "resized", resp.Outcome)
	assert.InDelta(t, 0.5, resp.State.Geometry.Scale, 1e-9)
	assert.Equal(t, [][2]int{{60, 40}}, resp.Export.PolygonPoints)

	sendRequest(t, sess, AnnotateRequest{Type: msgResize})
	assert.Equal(t, respError, lastResponse(t, conn).Type)
}

func TestAnnotationSession_RejectedGeometry(t *testing.T) {
	sess, conn := newTestSession(t)
	loadImage(t, sess, 600, 400)

	sendRequest(t, sess, AnnotateRequest{
		Type:     msgPointerDown,
		Position: &geometry.Point{X: 1, Y: 1},
		Rendered: &geometry.Size{Width: -1, Height: 5},
	})

	all := responses(t, conn)
	require.GreaterOrEqual(t, len(all), 2)
	assert.Equal(t, "invalid_geometry", all[len(all)-2].ErrorType)
	assert.Equal(t, "rejected", all[len(all)-1].Outcome)
	assert.Empty(t, all[len(all)-1].State.Points)
}

func TestAnnotationSession_OversizeViewport(t *testing.T) {
	sess, conn := newTestSession(t)
	loadImage(t, sess, 600, 400)

	huge := &geometry.Size{Width: 100000, Height: 100000}
	for _, req := range []AnnotateRequest{
		{Type: msgResize, Viewport: huge},
		{Type: msgPointerDown, Position: &geometry.Point{X: 10, Y: 10}, Viewport: huge},
		{Type: msgImage, Image: pngBytes(t, 10, 10), Viewport: huge},
	} {
		before := len(conn.getSentMessages())
		sendRequest(t, sess, req)

		all := responses(t, conn)
		require.Len(t, all, before+1, req.Type)
		assert.Equal(t, respError, all[before].Type)
		assert.Equal(t, "invalid_geometry", all[before].ErrorType)
	}

	snap := sess.machine.Snapshot()
	require.NotNil(t, snap.Geometry)
	assert.Equal(t, geometry.Sz(600, 400), snap.Geometry.Viewport)
	assert.Empty(t, snap.Points)
	assert.Equal(t, geometry.Sz(600, 400), sess.viewport)
}

func TestAnnotationSession_PointerOutOfRange(t *testing.T) {
	sess, conn := newTestSession(t)
	loadImage(t, sess, 600, 400)

	down(t, sess, 3e8, 5)
	all := responses(t, conn)
	require.GreaterOrEqual(t, len(all), 2)
	assert.Equal(t, "invalid_geometry", all[len(all)-2].ErrorType)
	assert.Equal(t, "rejected", all[len(all)-1].Outcome)
	assert.Empty(t, all[len(all)-1].State.Points)
}

func TestAnnotationSession_Export(t *testing.T) {
	sess, conn := newTestSession(t)
	loadImage(t, sess, 600, 400)
	down(t, sess, 10.4, 20.6)

	sendRequest(t, sess, AnnotateRequest{Type: msgExport})
	resp := lastResponse(t, conn)
	assert.Equal(t, respExport, resp.Type)
	assert.Equal(t, "json", resp.Format)
	assert.Equal(t, `{"polygon_points":[[10,21]]}`, resp.Data)

	sendRequest(t, sess, AnnotateRequest{Type: msgExport, Format: "csv"})
	assert.Equal(t, "index,x,y\n0,10,21\n", lastResponse(t, conn).Data)

	sendRequest(t, sess, AnnotateRequest{Type: msgExport, Format: "xml"})
	assert.Equal(t, respError, lastResponse(t, conn).Type)
}

func TestAnnotationSession_Render(t *testing.T) {
	sess, conn := newTestSession(t)

	sendRequest(t, sess, AnnotateRequest{Type: msgRender})
	assert.Equal(t, "no_image", lastResponse(t, conn).ErrorType)

	loadImage(t, sess, 300, 200)
	down(t, sess, 100, 100)

	for mode, bounds := range map[string]image.Rectangle{
		"":         image.Rect(0, 0, 600, 400),
		"viewport": image.Rect(0, 0, 600, 400),
		"image":    image.Rect(0, 0, 300, 200),
	} {
		sendRequest(t, sess, AnnotateRequest{Type: msgRender, Mode: mode})
		resp := lastResponse(t, conn)
		require.Equal(t, respRender, resp.Type, mode)
		out, err := png.Decode(bytes.NewReader(resp.Image))
		require.NoError(t, err)
		assert.Equal(t, bounds, out.Bounds(), mode)
	}

	sendRequest(t, sess, AnnotateRequest{Type: msgRender, Mode: "thumbnail"})
	assert.Equal(t, "invalid_request", lastResponse(t, conn).ErrorType)
}

func TestAnnotationSession_InvalidMessages(t *testing.T) {
	sess, conn := newTestSession(t)

	sess.handleMessage([]byte("{not json"))
	assert.Equal(t, "invalid_request", lastResponse(t, conn).ErrorType)

	sendRequest(t, sess, AnnotateRequest{Type: "teleport"})
	resp := lastResponse(t, conn)
	assert.Equal(t, respError, resp.Type)
	assert.Contains(t, resp.Error, "teleport")

	sendRequest(t, sess, AnnotateRequest{Type: msgPointerDown})
	assert.Contains(t, lastResponse(t, conn).Error, "No position")

	sendRequest(t, sess, AnnotateRequest{Type: msgState, RequestID: "s"})
	resp = lastResponse(t, conn)
	assert.Equal(t, respState, resp.Type)
	assert.Empty(t, resp.Outcome)
	assert.Equal(t, "s", resp.RequestID)
}

func TestServer_SendWebSocketError(t *testing.T) {
	server := &Server{}
	conn := &mockWebSocketConn{}

	server.sendWebSocketError(conn, "req-1", "invalid_request", "bad things")

	resp := lastResponse(t, conn)
	assert.Equal(t, respError, resp.Type)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "invalid_request", resp.ErrorType)
	assert.Equal(t, "bad things", resp.Error)
}

func readResponse(t *testing.T, ws *websocket.Conn) AnnotateResponse {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp AnnotateResponse
	require.NoError(t, ws.ReadJSON(&resp))
	return resp
}

func TestAnnotateWebSocket_EndToEnd(t *testing.T) {
	server := newTestServer(t)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/annotate"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = ws.Close() }()

	hello := readResponse(t, ws)
	assert.Equal(t, respState, hello.Type)
	assert.False(t, hello.State.Active)

	require.NoError(t, ws.WriteJSON(AnnotateRequest{Type: msgImage, Image: pngBytes(t, 600, 400)}))
	assert.Equal(t, "loading", readResponse(t, ws).Outcome)
	assert.Equal(t, "image_loaded", readResponse(t, ws).Outcome)

	points := [][2]float64{{10, 10}, {200, 10}, {200, 200}, {11, 11}}
	var last AnnotateResponse
	for _, p := range points {
		require.NoError(t, ws.WriteJSON(AnnotateRequest{Type: msgPointerDown, Position: &geometry.Point{X: p[0], Y: p[1]}}))
		last = readResponse(t, ws)
	}
	assert.Equal(t, "closed", last.Outcome)
	assert.Equal(t, [][2]int{{10, 10}, {200, 10}, {200, 200}, {10, 10}}, last.Export.PolygonPoints)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/imageio"
	"github.com/MeKo-Tech/polydraw/internal/render"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Client message types on /ws/annotate.
const (
	msgImage        = "image"
	msgPointerDown  = "pointer_down"
	msgPointerMove  = "pointer_move"
	msgPointerLeave = "pointer_leave"
	msgUndo         = "undo"
	msgReset        = "reset"
	msgResize       = "resize"
	msgExport       = "export"
	msgRender       = "render"
	msgState        = "state"
)

// Server message types.
const (
	respState  = "state"
	respExport = "export"
	respRender = "render"
	respError  = "error"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		// In production, you should check against allowed origins
		return true
	},
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// AnnotateRequest is a client message on the annotation socket.
type AnnotateRequest struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Image     []byte          `json:"image,omitempty"`
	Name      string          `json:"name,omitempty"`
	Crop      string          `json:"crop,omitempty"`
	Position  *geometry.Point `json:"position,omitempty"`
	Viewport  *geometry.Size  `json:"viewport,omitempty"`
	Rendered  *geometry.Size  `json:"rendered,omitempty"`
	Format    string          `json:"format,omitempty"`
	Mode      string          `json:"mode,omitempty"`
}

// AnnotateResponse is a server message on the annotation socket.
type AnnotateResponse struct {
	Type      string                 `json:"type"` // "state", "export", "render", "error"
	RequestID string                 `json:"request_id,omitempty"`
	Outcome   string                 `json:"outcome,omitempty"`
	Changed   bool                   `json:"changed,omitempty"`
	State     *capture.Snapshot      `json:"state,omitempty"`
	Export    *capture.PolygonExport `json:"export,omitempty"`
	Format    string                 `json:"format,omitempty"`
	Data      string                 `json:"data,omitempty"`
	Image     []byte                 `json:"image,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorType string                 `json:"error_type,omitempty"`
}

// loadResult is the completion of an off-loop image decode.
type loadResult struct {
	token     capture.LoadToken
	requestID string
	frame     *imageio.Frame
	viewport  geometry.Size
	err       error
}

// annotationSession is the per-connection capture state. All fields are
// owned by the connection's event loop; decode goroutines only talk back
// through loads.
type annotationSession struct {
	ctx      context.Context
	server   *Server
	conn     WebSocketConnWriter
	machine  *capture.Machine
	frame    *imageio.Frame
	viewport geometry.Size
	loads    chan loadResult
}

func (s *Server) newAnnotationSession(ctx context.Context, conn WebSocketConnWriter) (*annotationSession, error) {
	m, err := capture.NewMachine(s.capture)
	if err != nil {
		return nil, err
	}
	return &annotationSession{
		ctx:      ctx,
		server:   s,
		conn:     conn,
		machine:  m,
		viewport: s.viewport,
		loads:    make(chan loadResult),
	}, nil
}

// annotateWebSocketHandler handles WebSocket connections for interactive
// polygon capture.
func (s *Server) annotateWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := s.newAnnotationSession(ctx, conn)
	if err != nil {
		s.sendWebSocketError(conn, "", "internal_error", err.Error())
		return
	}
	sess.run(conn)
}

// run is the connection's event loop. It is the only goroutine that touches
// the capture machine or writes data frames.
func (a *annotationSession) run(conn *websocket.Conn) {
	conn.SetReadLimit(a.server.maxUploadMB * 1024 * 1024 * 2)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	incoming := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			select {
			case incoming <- data:
			case <-a.ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	a.sendState("")

	for {
		select {
		case data := <-incoming:
			websocketMessagesTotal.WithLabelValues("received").Inc()
			a.handleMessage(data)
		case res := <-a.loads:
			a.handleLoad(res)
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		case <-a.ctx.Done():
			return
		}
	}
}

// handleMessage applies one client message to the machine.
func (a *annotationSession) handleMessage(data []byte) {
	var req AnnotateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		a.server.sendWebSocketError(a.conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.Viewport != nil {
		if err := a.server.checkViewport(*req.Viewport); err != nil {
			a.server.sendWebSocketError(a.conn, req.RequestID, errorType(err), err.Error())
			return
		}
		if req.Viewport.Valid() {
			a.viewport = *req.Viewport
		}
	}

	switch req.Type {
	case msgImage:
		a.beginLoad(req)
	case msgPointerDown, msgPointerMove:
		if req.Position == nil {
			a.server.sendWebSocketError(a.conn, req.RequestID, "invalid_request", "No position provided")
			return
		}
		p := capture.Pointer{Position: *req.Position}
		if req.Viewport != nil {
			p.Viewport = *req.Viewport
		}
		if req.Rendered != nil {
			p.Rendered = *req.Rendered
		}
		var out capture.Outcome
		var err error
		if req.Type == msgPointerDown {
			out, err = a.machine.PointerDown(p)
		} else {
			out, err = a.machine.PointerMove(p)
		}
		a.reply(req.RequestID, out, err)
	case msgPointerLeave:
		a.reply(req.RequestID, a.machine.PointerLeave(), nil)
	case msgUndo:
		a.reply(req.RequestID, a.machine.Undo(), nil)
	case msgReset:
		a.reply(req.RequestID, a.machine.Reset(), nil)
	case msgResize:
		if req.Viewport == nil {
			a.server.sendWebSocketError(a.conn, req.RequestID, "invalid_request", "No viewport provided")
			return
		}
		out, err := a.machine.Resize(*req.Viewport)
		a.reply(req.RequestID, out, err)
	case msgExport:
		a.sendExport(req)
	case msgRender:
		a.sendRender(req)
	case msgState:
		a.sendState(req.RequestID)
	default:
		a.server.sendWebSocketError(a.conn, req.RequestID, "invalid_request", "Unsupported request type: "+req.Type)
	}
}

// reply sends the state after a transition, preceded by an error message
// when the event was rejected.
func (a *annotationSession) reply(requestID string, out capture.Outcome, err error) {
	if err != nil {
		a.server.sendWebSocketError(a.conn, requestID, errorType(err), err.Error())
	}
	if out == capture.OutcomeClosed {
		polygonsClosedTotal.Inc()
	}
	a.sendOutcome(requestID, out)
}

// beginLoad disables capture and decodes the image off the event loop.
func (a *annotationSession) beginLoad(req AnnotateRequest) {
	if len(req.Image) == 0 {
		a.server.sendWebSocketError(a.conn, req.RequestID, "invalid_request", "No image data provided")
		return
	}
	token := a.machine.BeginLoad()
	a.sendOutcome(req.RequestID, capture.OutcomeLoading)

	go func(viewport geometry.Size) {
		frame, err := a.server.prepareFrame(req.Image, req.Name, req.Crop)
		res := loadResult{token: token, requestID: req.RequestID, frame: frame, viewport: viewport, err: err}
		select {
		case a.loads <- res:
		case <-a.ctx.Done():
		}
	}(a.viewport)
}

// handleLoad completes a load on the event loop. Completions for superseded
// loads are dropped.
func (a *annotationSession) handleLoad(res loadResult) {
	if res.err != nil {
		if err := a.machine.CancelLoad(res.token); errors.Is(err, capture.ErrStaleLoad) {
			imageLoadsTotal.WithLabelValues("stale").Inc()
			slog.Debug("Dropping stale failed load", "token", res.token)
			return
		}
		imageLoadsTotal.WithLabelValues("failed").Inc()
		a.server.sendWebSocketError(a.conn, res.requestID, "processing_error", fmt.Sprintf("Failed to load image: %v", res.err))
		a.sendOutcome(res.requestID, capture.OutcomeLoadCancelled)
		return
	}

	err := a.machine.ImageReady(res.token, res.frame.Size(), res.viewport)
	switch {
	case errors.Is(err, capture.ErrStaleLoad):
		imageLoadsTotal.WithLabelValues("stale").Inc()
		slog.Debug("Dropping stale image", "token", res.token)
	case err != nil:
		imageLoadsTotal.WithLabelValues("failed").Inc()
		a.server.sendWebSocketError(a.conn, res.requestID, errorType(err), err.Error())
		a.sendOutcome(res.requestID, capture.OutcomeRejected)
	default:
		imageLoadsTotal.WithLabelValues("loaded").Inc()
		a.frame = res.frame
		a.sendOutcome(res.requestID, capture.OutcomeImageLoaded)
	}
}

// prepareFrame decodes, crops and fits an uploaded image.
func (s *Server) prepareFrame(data []byte, name, crop string) (*imageio.Frame, error) {
	frame, err := imageio.DecodeBytes(data, name)
	if err != nil {
		return nil, err
	}
	if crop != "" {
		rect, err := imageio.ParseRect(crop)
		if err != nil {
			return nil, err
		}
		if frame, err = imageio.Crop(frame, rect); err != nil {
			return nil, err
		}
	}
	return imageio.FitWithin(frame, s.maxImageWidth, s.maxImageHeight)
}

// sendOutcome reports a transition with the resulting state. Changed marks
// outcomes that edited the polygon, so clients know when to persist it.
func (a *annotationSession) sendOutcome(requestID string, out capture.Outcome) {
	captureTransitionsTotal.WithLabelValues(out.String()).Inc()
	a.sendStateMessage(requestID, out.String(), out.Changed())
}

// sendState reports the current state without a transition.
func (a *annotationSession) sendState(requestID string) {
	a.sendStateMessage(requestID, "", false)
}

func (a *annotationSession) sendStateMessage(requestID, outcome string, changed bool) {
	snap := a.machine.Snapshot()
	exp := capture.Export(snap.Points)
	a.server.sendWebSocketResponse(a.conn, AnnotateResponse{
		Type:      respState,
		RequestID: requestID,
		Outcome:   outcome,
		Changed:   changed,
		State:     &snap,
		Export:    &exp,
	})
}

func (a *annotationSession) sendExport(req AnnotateRequest) {
	format := req.Format
	if format == "" {
		format = formatJSON
	}
	body, _, err := formatExport(a.machine.Session().Points, format, false)
	if err != nil {
		exportRequestsTotal.WithLabelValues(format, "error").Inc()
		a.server.sendWebSocketError(a.conn, req.RequestID, "invalid_request", err.Error())
		return
	}
	exportRequestsTotal.WithLabelValues(format, "success").Inc()
	a.server.sendWebSocketResponse(a.conn, AnnotateResponse{
		Type:      respExport,
		RequestID: req.RequestID,
		Format:    format,
		Data:      string(body),
	})
}

func (a *annotationSession) sendRender(req AnnotateRequest) {
	if a.frame == nil {
		a.server.sendWebSocketError(a.conn, req.RequestID, "no_image", "No image loaded")
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = modeViewport
	}

	snap := a.machine.Snapshot()
	var out image.Image
	switch mode {
	case modeImage:
		out = render.Overlay(a.frame.Image, snap, a.server.style)
	case modeViewport:
		v, err := render.Viewport(a.frame.Image, snap, a.server.style)
		if err != nil {
			renderRequestsTotal.WithLabelValues(mode, "error").Inc()
			a.server.sendWebSocketError(a.conn, req.RequestID, "processing_error", err.Error())
			return
		}
		out = v
	default:
		a.server.sendWebSocketError(a.conn, req.RequestID, "invalid_request", "Unsupported mode: "+mode)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		renderRequestsTotal.WithLabelValues(mode, "error").Inc()
		a.server.sendWebSocketError(a.conn, req.RequestID, "processing_error", err.Error())
		return
	}
	renderRequestsTotal.WithLabelValues(mode, "success").Inc()
	a.server.sendWebSocketResponse(a.conn, AnnotateResponse{
		Type:      respRender,
		RequestID: req.RequestID,
		Format:    "png",
		Image:     buf.Bytes(),
	})
}

func errorType(err error) string {
	if errors.Is(err, geometry.ErrInvalidGeometry) || errors.Is(err, capture.ErrOutOfRange) {
		return "invalid_geometry"
	}
	return "processing_error"
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response AnnotateResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, AnnotateResponse{
		Type:      respError,
		RequestID: requestID,
		Error:     message,
		ErrorType: errorType,
	})
}

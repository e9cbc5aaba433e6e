package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/geometry"
	"github.com/MeKo-Tech/polydraw/internal/render"
	"github.com/MeKo-Tech/polydraw/internal/server"
	"github.com/MeKo-Tech/polydraw/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

const socketReadTimeout = 5 * time.Second

// HTTPTestServerWrapper wraps httptest.Server for integration tests.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
}

// URL returns the base URL of the running test server.
func (w *HTTPTestServerWrapper) URL() string {
	return w.Server.URL
}

func defaultServerConfig() server.Config {
	return server.Config{
		Host:        "localhost",
		CORSOrigin:  "*",
		MaxUploadMB: 5,
		TimeoutSec:  30,
		Capture:     capture.DefaultConfig(),
		Viewport:    geometry.Sz(600, 400),
		Style:       render.DefaultStyle(),
	}
}

// theAnnotationServerIsRunning starts the real handlers on an httptest server.
func (testCtx *TestContext) theAnnotationServerIsRunning() error {
	return testCtx.startServer(defaultServerConfig())
}

func (testCtx *TestContext) theAnnotationServerIsRunningWithRateLimit(perMinute int) error {
	cfg := defaultServerConfig()
	cfg.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute, RequestsPerHour: perMinute * 60}
	return testCtx.startServer(cfg)
}

func (testCtx *TestContext) startServer(cfg server.Config) error {
	testCtx.StopServer()

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(mux),
		TestServer: srv,
	}
	return nil
}

// StopServer stops the httptest server if one is running.
func (testCtx *TestContext) StopServer() {
	if testCtx.HTTPTestServer == nil {
		return
	}
	testCtx.HTTPTestServer.Server.Close()
	_ = testCtx.HTTPTestServer.TestServer.Close()
	testCtx.HTTPTestServer = nil
}

func (testCtx *TestContext) serverURL() (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPTestServer.URL(), nil
}

// iSendARequestTo issues a request without a body.
func (testCtx *TestContext) iSendARequestTo(method, path string) error {
	return testCtx.doRequest(method, path, "", nil)
}

// iPostJSONTo posts a doc string as JSON.
func (testCtx *TestContext) iPostJSONTo(path string, body *godog.DocString) error {
	return testCtx.doRequest(http.MethodPost, path, "application/json", strings.NewReader(body.Content))
}

func (testCtx *TestContext) doRequest(method, path, contentType string, body io.Reader) error {
	base, err := testCtx.serverURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(data)
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseFieldShouldEqual(path, expected string) error {
	return jsonFieldEquals(testCtx.LastHTTPResponse, path, expected)
}

func (testCtx *TestContext) theResponseBodyShouldBe(expected string) error {
	if strings.TrimSpace(testCtx.LastHTTPResponse) != expected {
		return fmt.Errorf("expected body %q, got %q", expected, testCtx.LastHTTPResponse)
	}
	return nil
}

// iOpenAnAnnotationSocket dials /ws/annotate and consumes the greeting state.
func (testCtx *TestContext) iOpenAnAnnotationSocket() error {
	base, err := testCtx.serverURL()
	if err != nil {
		return err
	}
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws/annotate"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}
	_ = resp.Body.Close()
	testCtx.Socket = conn

	return testCtx.readSocketState()
}

// send writes a request and waits for the next state message, collecting
// any error messages that precede it.
func (testCtx *TestContext) send(req server.AnnotateRequest) error {
	if testCtx.Socket == nil {
		return errors.New("no annotation socket open")
	}
	testCtx.socketRequests++
	req.RequestID = fmt.Sprintf("req-%d", testCtx.socketRequests)
	testCtx.SocketErrors = nil
	if err := testCtx.Socket.WriteJSON(req); err != nil {
		return err
	}
	return testCtx.readSocketState()
}

func (testCtx *TestContext) readSocketState() error {
	for {
		msg, err := testCtx.readSocket()
		if err != nil {
			return err
		}
		if msg.Type == "error" {
			testCtx.SocketErrors = append(testCtx.SocketErrors, msg)
			continue
		}
		testCtx.LastSocketMsg = msg
		return nil
	}
}

func (testCtx *TestContext) readSocket() (server.AnnotateResponse, error) {
	var msg server.AnnotateResponse
	_ = testCtx.Socket.SetReadDeadline(time.Now().Add(socketReadTimeout))
	if err := testCtx.Socket.ReadJSON(&msg); err != nil {
		return msg, fmt.Errorf("failed to read websocket message: %w", err)
	}
	return msg, nil
}

// iUploadAnImageOverTheSocket sends a PNG and waits for the load to finish.
func (testCtx *TestContext) iUploadAnImageOverTheSocket(w, h int) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testutil.CreateTestImage(w, h, color.White)); err != nil {
		return err
	}
	if err := testCtx.send(server.AnnotateRequest{Type: "image", Image: buf.Bytes(), Name: "upload.png"}); err != nil {
		return err
	}
	if testCtx.LastSocketMsg.Outcome != capture.OutcomeLoading.String() {
		return fmt.Errorf("expected loading state, got %q", testCtx.LastSocketMsg.Outcome)
	}
	return testCtx.readSocketState()
}

func (testCtx *TestContext) iSendPointerDownOverTheSocket(x, y float64) error {
	p := geometry.Pt(x, y)
	return testCtx.send(server.AnnotateRequest{Type: "pointer_down", Position: &p})
}

func (testCtx *TestContext) iSendPointerMoveOverTheSocket(x, y float64) error {
	p := geometry.Pt(x, y)
	return testCtx.send(server.AnnotateRequest{Type: "pointer_move", Position: &p})
}

// iSendAMessageOverTheSocket sends a request without arguments and records
// the single reply, which may be an error.
func (testCtx *TestContext) iSendAMessageOverTheSocket(kind string) error {
	return testCtx.sendOnce(server.AnnotateRequest{Type: kind})
}

// iRequestTheExportOverTheSocket asks for the export in a format.
func (testCtx *TestContext) iRequestTheExportOverTheSocket(format string) error {
	return testCtx.sendOnce(server.AnnotateRequest{Type: "export", Format: format})
}

func (testCtx *TestContext) sendOnce(req server.AnnotateRequest) error {
	if testCtx.Socket == nil {
		return errors.New("no annotation socket open")
	}
	testCtx.SocketErrors = nil
	if err := testCtx.Socket.WriteJSON(req); err != nil {
		return err
	}
	msg, err := testCtx.readSocket()
	if err != nil {
		return err
	}
	if msg.Type == "error" {
		testCtx.SocketErrors = append(testCtx.SocketErrors, msg)
		return nil
	}
	testCtx.LastSocketMsg = msg
	return nil
}

func (testCtx *TestContext) theSocketOutcomeShouldBe(name string) error {
	if testCtx.LastSocketMsg.Outcome != name {
		return fmt.Errorf("expected outcome %q, got %q (errors: %v)", name, testCtx.LastSocketMsg.Outcome, testCtx.SocketErrors)
	}
	return nil
}

func (testCtx *TestContext) theSocketPolygonShouldBe(status string) error {
	st := testCtx.LastSocketMsg.State
	if st == nil {
		return errors.New("last message carried no state")
	}
	if st.Status.String() != status {
		return fmt.Errorf("expected polygon %s, got %s", status, st.Status)
	}
	return nil
}

func (testCtx *TestContext) theSocketExportShouldBe(expected string) error {
	msg := testCtx.LastSocketMsg
	var got string
	switch {
	case msg.Type == "export":
		got = msg.Data
	case msg.Export != nil:
		b, err := json.Marshal(msg.Export)
		if err != nil {
			return err
		}
		got = string(b)
	default:
		return fmt.Errorf("last message %q carried no export", msg.Type)
	}
	if strings.TrimSpace(got) != expected {
		return fmt.Errorf("expected export %s, got %s", expected, got)
	}
	return nil
}

func (testCtx *TestContext) theSocketShouldReportError(errorType string) error {
	for _, e := range testCtx.SocketErrors {
		if e.ErrorType == errorType {
			return nil
		}
	}
	return fmt.Errorf("expected a %q error, got %v", errorType, testCtx.SocketErrors)
}

// RegisterServerSteps registers the HTTP and websocket step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the annotation server is running$`, testCtx.theAnnotationServerIsRunning)
	sc.Step(`^the annotation server is running with a limit of (\d+) requests per minute$`,
		testCtx.theAnnotationServerIsRunningWithRateLimit)
	sc.Step(`^I send a (GET|POST|PUT|DELETE) request to "([^"]*)"$`, testCtx.iSendARequestTo)
	sc.Step(`^I post JSON to "([^"]*)":$`, testCtx.iPostJSONTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response field "([^"]*)" should equal '([^']*)'$`, testCtx.theResponseFieldShouldEqual)
	sc.Step(`^the response body should be '([^']*)'$`, testCtx.theResponseBodyShouldBe)

	sc.Step(`^I open an annotation socket$`, testCtx.iOpenAnAnnotationSocket)
	sc.Step(`^I upload a (\d+)x(\d+) image over the socket$`, testCtx.iUploadAnImageOverTheSocket)
	sc.Step(`^I press at \((-?[\d.]+), (-?[\d.]+)\) over the socket$`, testCtx.iSendPointerDownOverTheSocket)
	sc.Step(`^I hover at \((-?[\d.]+), (-?[\d.]+)\) over the socket$`, testCtx.iSendPointerMoveOverTheSocket)
	sc.Step(`^I send an? "([a-z_]+)" message over the socket$`, testCtx.iSendAMessageOverTheSocket)
	sc.Step(`^I request the "([a-z]+)" export over the socket$`, testCtx.iRequestTheExportOverTheSocket)
	sc.Step(`^the socket outcome should be "([a-z_]+)"$`, testCtx.theSocketOutcomeShouldBe)
	sc.Step(`^the socket polygon should be (empty|drawing|closed)$`, testCtx.theSocketPolygonShouldBe)
	sc.Step(`^the socket export should be '([^']*)'$`, testCtx.theSocketExportShouldBe)
	sc.Step(`^the socket should report an? "([a-z_]+)" error$`, testCtx.theSocketShouldReportError)
}

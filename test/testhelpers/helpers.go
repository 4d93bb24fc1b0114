// Package testhelpers provides common utilities for testing the intern-chat
// relay: spinning up a full relay over httptest, dialing WebSocket clients,
// and exchanging wire frames.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/VaagenIM-CardSharp/intern-chat/internal/server"
	"github.com/VaagenIM-CardSharp/intern-chat/internal/store"
)

// Frame is the union of every server-to-client payload, decoded loosely so
// tests can branch on Type.
type Frame struct {
	Type         string `json:"type"`
	Seq          int64  `json:"seq"`
	OK           bool   `json:"ok"`
	Duplicate    bool   `json:"duplicate"`
	ServerOffset int64  `json:"serverOffset"`
	Error        string `json:"error"`
	Limit        int    `json:"limit"`
	ID           int64  `json:"id"`
	Content      string `json:"content"`
}

// StartRelay builds a relay around a fresh temp-dir store and serves it over
// an httptest server. The hub and store are torn down with the test.
func StartRelay(t *testing.T, customize func(cfg *server.Config)) *httptest.Server {
	t.Helper()

	cfg := &server.Config{
		Host:             "127.0.0.1",
		MaxMessageLength: 500,
		DBPath:           filepath.Join(t.TempDir(), "chat.db"),
		PublicDir:        t.TempDir(),
		AllowedOrigins:   []string{"*"},
		RateLimitBurst:   1000,
		RateLimitRefill:  time.Second,
		ShutdownTimeout:  2 * time.Second,
	}
	if customize != nil {
		customize(cfg)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	srv := server.New(cfg, st, zerolog.Nop())
	go srv.Hub().Run()

	testServer := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		testServer.Close()
		_ = srv.Hub().Shutdown(2 * time.Second)
		_ = st.Close()
	})

	return testServer
}

// WebSocketURL rewrites an httptest base URL into the relay's WebSocket
// endpoint, appending the given query string ("serverOffset=3&resumed=1").
func WebSocketURL(baseURL, query string) string {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	if query != "" {
		wsURL += "?" + query
	}
	return wsURL
}

// Connect dials the relay's WebSocket endpoint with a valid Origin header.
func Connect(t *testing.T, baseURL, query string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", baseURL)

	conn, resp, err := dialer.Dial(WebSocketURL(baseURL, query), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Submit sends one submit envelope. seq and clientToken may be nil.
func Submit(t *testing.T, conn *websocket.Conn, seq *int64, content any, clientToken *string) {
	t.Helper()

	raw, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("Failed to marshal content: %v", err)
	}

	frame := map[string]any{
		"type":    "submit",
		"content": json.RawMessage(raw),
	}
	if seq != nil {
		frame["seq"] = *seq
	}
	if clientToken != nil {
		frame["clientToken"] = *clientToken
	}

	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to write submit frame: %v", err)
	}
}

// ReadFrame reads the next frame within the timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return frame
}

// ReadFrameOfType reads frames until one with the wanted type arrives,
// discarding others. Fails the test when the timeout elapses first.
func ReadFrameOfType(t *testing.T, conn *websocket.Conn, wanted string, timeout time.Duration) Frame {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("No %q frame within %s", wanted, timeout)
		}
		frame := ReadFrame(t, conn, remaining)
		if frame.Type == wanted {
			return frame
		}
	}
}

// ReadAckAndDelivery reads the two frames a submitter receives after a
// successful acknowledged submission — its ack and its own broadcast copy —
// which may arrive in either order.
func ReadAckAndDelivery(t *testing.T, conn *websocket.Conn, timeout time.Duration) (ack Frame, delivery Frame) {
	t.Helper()

	first := ReadFrame(t, conn, timeout)
	second := ReadFrame(t, conn, timeout)
	for _, frame := range []Frame{first, second} {
		switch frame.Type {
		case "ack":
			ack = frame
		case "message":
			delivery = frame
		default:
			t.Fatalf("Unexpected frame type %q", frame.Type)
		}
	}
	if ack.Type != "ack" || delivery.Type != "message" {
		t.Fatalf("Expected one ack and one delivery, got %+v and %+v", first, second)
	}
	return ack, delivery
}

// ExpectNoFrame asserts that no frame arrives within the timeout.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var frame Frame
	err := conn.ReadJSON(&frame)
	if err == nil {
		t.Fatalf("Expected no frame, but received %+v", frame)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of frame: %v", err)
}

// Int64 returns a pointer to v, for optional seq fields.
func Int64(v int64) *int64 {
	return &v
}

// Str returns a pointer to s, for optional clientToken fields.
func Str(s string) *string {
	return &s
}

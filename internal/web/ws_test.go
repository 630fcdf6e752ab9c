package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, ts *testServer, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v (resp %+v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return frame
}

func TestWSRejectsBadToken(t *testing.T) {
	stub := newScriptedBackend(t, textResponse("primary-m", "ok", 2))
	ts := newTestServer(t, stub.server.URL)

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWSStreamingTurn(t *testing.T) {
	stub := newScriptedBackend(t, textResponse("primary-m", "hello", 5))
	ts := newTestServer(t, stub.server.URL)

	conn := dialWS(t, ts, "web-user-alice")

	connected := readFrame(t, conn)
	if connected["type"] != "connected" || connected["session_id"] == "" {
		t.Fatalf("expected connected frame, got %v", connected)
	}

	if err := conn.WriteJSON(map[string]string{"type": "message", "content": "hello"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var types []string
	var streamed string
	var endFrame map[string]any
	for {
		frame := readFrame(t, conn)
		frameType := frame["type"].(string)
		if frameType == "ping" {
			conn.WriteJSON(map[string]string{"type": "pong"})
			continue
		}
		types = append(types, frameType)
		if frameType == "stream" {
			streamed += frame["content"].(string)
		}
		if frameType == "end" {
			endFrame = frame
			break
		}
		if frameType == "error" {
			t.Fatalf("unexpected error frame: %v", frame)
		}
	}

	if types[0] != "start" {
		t.Fatalf("first frame = %s, want start", types[0])
	}
	if streamed != "hello" {
		t.Fatalf("streamed = %q", streamed)
	}
	if endFrame["total_tokens"] != float64(5) {
		t.Fatalf("end frame tokens = %v", endFrame["total_tokens"])
	}
	if endFrame["model"] != "fast-m" {
		t.Fatalf("end frame model = %v", endFrame["model"])
	}
}

func TestWSRejectsOversizeMessage(t *testing.T) {
	stub := newScriptedBackend(t, textResponse("primary-m", "ok", 2))
	ts := newTestServer(t, stub.server.URL)

	conn := dialWS(t, ts, "web-user-alice")
	readFrame(t, conn) // connected

	long := strings.Repeat("a", maxMessageLength+1)
	conn.WriteJSON(map[string]string{"type": "message", "content": long})

	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("expected error frame, got %v", frame)
	}
}

func TestWSTurnPersistsTranscript(t *testing.T) {
	stub := newScriptedBackend(t, textResponse("primary-m", "stored", 2))
	ts := newTestServer(t, stub.server.URL)

	conn := dialWS(t, ts, "web-user-alice")
	connected := readFrame(t, conn)
	sessionID := connected["session_id"].(string)

	conn.WriteJSON(map[string]string{"type": "message", "content": "persist me"})
	for {
		frame := readFrame(t, conn)
		if frame["type"] == "end" {
			break
		}
	}

	_, body := ts.request(t, http.MethodGet, "/api/messages?session_id="+sessionID, "web-user-alice", nil)
	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), "persist me") || !strings.Contains(string(raw), "stored") {
		t.Fatalf("transcript missing turn: %s", raw)
	}
}

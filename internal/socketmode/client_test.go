package socketmode

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/youmna-rabie/socket-relay/internal/types"
)

const testToken = "xapp-test"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type handlerFunc func(ctx context.Context, ev types.InboundEvent) types.Acknowledgement

func (f handlerFunc) HandleEvent(ctx context.Context, ev types.InboundEvent) types.Acknowledgement {
	return f(ctx, ev)
}

type receivedAck struct {
	EnvelopeID string `json:"envelope_id"`
	Payload    *struct {
		Text string `json:"text"`
	} `json:"payload"`
}

// fakeGateway serves the connections.open endpoint and a websocket whose
// behaviour is driven by script, called with the 1-based connection number.
type fakeGateway struct {
	srv   *httptest.Server
	opens atomic.Int32
}

func newFakeGateway(t *testing.T, script func(n int, conn *websocket.Conn)) *fakeGateway {
	t.Helper()
	g := &fakeGateway{}
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/open", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("open method = %s, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "invalid_auth"})
			return
		}
		g.opens.Add(1)
		wsURL := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "url": wsURL})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(int(conns.Add(1)), conn)
	})

	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) config(token string) Config {
	return Config{
		Token:          token,
		OpenURL:        g.srv.URL + "/open",
		ReconnectDelay: 10 * time.Millisecond,
	}
}

// drain blocks until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func runClient(t *testing.T, c *Client) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	return cancel, errCh
}

func waitAck(t *testing.T, acks <-chan receivedAck) receivedAck {
	t.Helper()
	select {
	case a := <-acks:
		return a
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ack")
		return receivedAck{}
	}
}

func stopClient(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_CommandReplyCarriesText(t *testing.T) {
	acks := make(chan receivedAck, 1)
	g := newFakeGateway(t, func(_ int, conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{"type": "hello", "num_connections": 1})
		conn.WriteJSON(map[string]any{
			"envelope_id":              "env-1",
			"type":                     "slash_commands",
			"accepts_response_payload": true,
			"payload":                  map[string]any{"command": "/deploy", "text": "api"},
		})
		var a receivedAck
		if err := conn.ReadJSON(&a); err == nil {
			acks <- a
		}
		drain(conn)
	})

	var gotPayload atomic.Value
	h := handlerFunc(func(_ context.Context, ev types.InboundEvent) types.Acknowledgement {
		if ev.Kind != types.KindCommand {
			t.Errorf("kind = %q, want command", ev.Kind)
		}
		raw, _ := json.Marshal(ev.Payload)
		gotPayload.Store(string(raw))
		return types.ReplyText("done")
	})

	cancel, errCh := runClient(t, NewClient(g.config(testToken), h, discard))

	a := waitAck(t, acks)
	if a.EnvelopeID != "env-1" {
		t.Errorf("envelope_id = %q, want env-1", a.EnvelopeID)
	}
	if a.Payload == nil || a.Payload.Text != "done" {
		t.Errorf("reply payload = %+v, want text done", a.Payload)
	}
	if p, _ := gotPayload.Load().(string); p != `{"command":"/deploy","text":"api"}` {
		t.Errorf("payload = %s", p)
	}

	stopClient(t, cancel, errCh)
}

func TestRun_CallbackAckedBeforeHandling(t *testing.T) {
	acks := make(chan receivedAck, 1)
	g := newFakeGateway(t, func(_ int, conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{
			"envelope_id": "env-2",
			"type":        "events_api",
			"payload":     map[string]any{"type": "event_callback"},
		})
		var a receivedAck
		if err := conn.ReadJSON(&a); err == nil {
			acks <- a
		}
		drain(conn)
	})

	release := make(chan struct{})
	var handled atomic.Bool
	h := handlerFunc(func(_ context.Context, ev types.InboundEvent) types.Acknowledgement {
		if ev.Kind != types.KindCallback {
			t.Errorf("kind = %q, want callback", ev.Kind)
		}
		<-release
		handled.Store(true)
		return types.NoReply
	})

	cancel, errCh := runClient(t, NewClient(g.config(testToken), h, discard))

	a := waitAck(t, acks)
	if a.EnvelopeID != "env-2" {
		t.Errorf("envelope_id = %q, want env-2", a.EnvelopeID)
	}
	if a.Payload != nil {
		t.Errorf("callback ack should carry no payload, got %+v", a.Payload)
	}
	if handled.Load() {
		t.Error("ack should be sent before the handler finishes")
	}

	close(release)
	stopClient(t, cancel, errCh)
	if !handled.Load() {
		t.Error("Run should wait for in-flight handlers")
	}
}

func TestRun_SlowCommandDoesNotBlockReadLoop(t *testing.T) {
	acks := make(chan receivedAck, 2)
	g := newFakeGateway(t, func(_ int, conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{"envelope_id": "slow", "type": "slash_commands", "payload": map[string]any{"text": "slow"}})
		conn.WriteJSON(map[string]any{"envelope_id": "fast", "type": "slash_commands", "payload": map[string]any{"text": "fast"}})
		for range 2 {
			var a receivedAck
			if err := conn.ReadJSON(&a); err != nil {
				return
			}
			acks <- a
		}
		drain(conn)
	})

	release := make(chan struct{})
	h := handlerFunc(func(_ context.Context, ev types.InboundEvent) types.Acknowledgement {
		raw, _ := json.Marshal(ev.Payload)
		if strings.Contains(string(raw), "slow") {
			<-release
			return types.ReplyText("slow done")
		}
		return types.ReplyText("fast done")
	})

	cancel, errCh := runClient(t, NewClient(g.config(testToken), h, discard))

	if first := waitAck(t, acks); first.EnvelopeID != "fast" {
		t.Errorf("first ack = %q, want fast", first.EnvelopeID)
	}
	close(release)
	if second := waitAck(t, acks); second.EnvelopeID != "slow" {
		t.Errorf("second ack = %q, want slow", second.EnvelopeID)
	}

	stopClient(t, cancel, errCh)
}

func TestRun_ReconnectsAfterDisconnect(t *testing.T) {
	acks := make(chan receivedAck, 1)
	g := newFakeGateway(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			conn.WriteJSON(map[string]any{"type": "disconnect", "reason": "refresh_requested"})
			drain(conn)
			return
		}
		conn.WriteJSON(map[string]any{"envelope_id": "env-3", "type": "slash_commands", "payload": map[string]any{}})
		var a receivedAck
		if err := conn.ReadJSON(&a); err == nil {
			acks <- a
		}
		drain(conn)
	})

	h := handlerFunc(func(context.Context, types.InboundEvent) types.Acknowledgement {
		return types.ReplyText("after reconnect")
	})

	cancel, errCh := runClient(t, NewClient(g.config(testToken), h, discard))

	a := waitAck(t, acks)
	if a.Payload == nil || a.Payload.Text != "after reconnect" {
		t.Errorf("reply = %+v", a.Payload)
	}
	if n := g.opens.Load(); n != 2 {
		t.Errorf("connections.open called %d times, want 2", n)
	}

	stopClient(t, cancel, errCh)
}

func TestRun_UnknownEnvelopeAcked(t *testing.T) {
	acks := make(chan receivedAck, 1)
	g := newFakeGateway(t, func(_ int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(map[string]any{"envelope_id": "env-4", "type": "something_new"})
		var a receivedAck
		if err := conn.ReadJSON(&a); err == nil {
			acks <- a
		}
		drain(conn)
	})

	h := handlerFunc(func(context.Context, types.InboundEvent) types.Acknowledgement {
		t.Error("handler should not be called for unknown envelopes")
		return types.NoReply
	})

	cancel, errCh := runClient(t, NewClient(g.config(testToken), h, discard))

	if a := waitAck(t, acks); a.EnvelopeID != "env-4" {
		t.Errorf("envelope_id = %q, want env-4", a.EnvelopeID)
	}
	stopClient(t, cancel, errCh)
}

func TestRun_FirstConnectFailureIsFatal(t *testing.T) {
	g := newFakeGateway(t, func(int, *websocket.Conn) {})

	c := NewClient(g.config("wrong-token"), handlerFunc(func(context.Context, types.InboundEvent) types.Acknowledgement {
		return types.NoReply
	}), discard)

	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for rejected token")
	}
	if !strings.Contains(err.Error(), "invalid_auth") {
		t.Errorf("error %q should mention invalid_auth", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http error", http.StatusInternalServerError, "oops", "status 500"},
		{"bad json", http.StatusOK, "{", "unmarshal response"},
		{"not ok", http.StatusOK, `{"ok":false,"error":"not_allowed_token_type"}`, "not_allowed_token_type"},
		{"missing url", http.StatusOK, `{"ok":true}`, "empty socket url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{Token: testToken, OpenURL: srv.URL}, nil, discard)
			_, err := c.Open(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Open() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

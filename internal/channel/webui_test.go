package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/recruitops/talentclaw/internal/bus"
	"github.com/recruitops/talentclaw/internal/config"
	"github.com/recruitops/talentclaw/internal/session"
)

func newWebUIFixture(t *testing.T) (*WebUIChannel, *bus.MessageBus, *session.Store, *websocket.Conn) {
	t.Helper()
	store, err := session.NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	b := bus.NewMessageBus(config.DefaultBufSize)
	ch, err := NewWebUIChannel(config.WebUIConfig{Enabled: true}, config.GatewayConfig{Port: 18890}, b, store)
	if err != nil {
		t.Fatalf("NewWebUIChannel: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(ch.handleWS))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	return ch, b, store, conn
}

func readResponse(t *testing.T, conn *websocket.Conn) wsResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp wsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return resp
}

func writeRequest(t *testing.T, conn *websocket.Conn, req wsRequest) {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebUIInitialSessionList(t *testing.T) {
	_, _, store, conn := newWebUIFixture(t)

	sess, err := store.CreateSession(&session.Message{Role: session.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	// The list snapshot sent on connect raced the session creation; ask
	// again for a deterministic read.
	readResponse(t, conn)
	writeRequest(t, conn, wsRequest{Type: "list_sessions"})

	resp := readResponse(t, conn)
	if resp.Type != "sessions" {
		t.Fatalf("type = %q", resp.Type)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].ID != sess.ID {
		t.Errorf("sessions = %+v", resp.Sessions)
	}
	if resp.CurrentID != sess.ID {
		t.Errorf("current = %q", resp.CurrentID)
	}
}

func TestWebUIMessageGoesToBus(t *testing.T) {
	_, b, _, conn := newWebUIFixture(t)
	readResponse(t, conn) // initial session list

	writeRequest(t, conn, wsRequest{Type: "message", Content: "find candidate john", SessionID: "session_1", Model: "test-model"})

	select {
	case msg := <-b.Inbound:
		if msg.Channel != "webui" || msg.Content != "find candidate john" {
			t.Errorf("inbound = %+v", msg)
		}
		if msg.SessionID != "session_1" || msg.Model != "test-model" {
			t.Errorf("session/model = %q/%q", msg.SessionID, msg.Model)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound message")
	}
}

func TestWebUIConfirmTranslatesToToken(t *testing.T) {
	_, b, _, conn := newWebUIFixture(t)
	readResponse(t, conn)

	writeRequest(t, conn, wsRequest{Type: "confirm", Tool: "delete_candidate", SessionID: "session_1"})

	select {
	case msg := <-b.Inbound:
		if msg.Content != "CONFIRMED: delete_candidate" {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound message")
	}
}

func TestWebUISessionOps(t *testing.T) {
	_, _, store, conn := newWebUIFixture(t)
	readResponse(t, conn)

	writeRequest(t, conn, wsRequest{Type: "new_session"})
	resp := readResponse(t, conn)
	if resp.Type != "sessions" || len(resp.Sessions) != 1 {
		t.Fatalf("after new_session: %+v", resp)
	}
	created := resp.Sessions[0].ID

	writeRequest(t, conn, wsRequest{Type: "delete_session", SessionID: created})
	resp = readResponse(t, conn)
	if len(resp.Sessions) != 0 {
		t.Errorf("after delete: %+v", resp.Sessions)
	}
	if store.CurrentSessionID() != "" {
		t.Errorf("current = %q, want empty", store.CurrentSessionID())
	}

	writeRequest(t, conn, wsRequest{Type: "new_session"})
	readResponse(t, conn)
	writeRequest(t, conn, wsRequest{Type: "clear_sessions"})
	resp = readResponse(t, conn)
	if len(resp.Sessions) != 0 {
		t.Errorf("after clear: %+v", resp.Sessions)
	}
}

func TestWebUISendRoutesToClient(t *testing.T) {
	ch, _, _, conn := newWebUIFixture(t)
	readResponse(t, conn)

	err := ch.Send(bus.OutboundMessage{
		Channel:   "webui",
		ChatID:    "webui-1",
		SessionID: "session_9",
		Content:   "I found 1 US candidate(s).",
		Type:      "candidate-list",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	resp := readResponse(t, conn)
	if resp.Type != "message" || resp.SessionID != "session_9" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.MsgType != "candidate-list" {
		t.Errorf("msg_type = %q", resp.MsgType)
	}
}

package channel

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/recruitops/talentclaw/internal/bus"
	"github.com/recruitops/talentclaw/internal/config"
	"github.com/recruitops/talentclaw/internal/session"
)

//go:embed static
var staticFiles embed.FS

const webUIChannelName = "webui"

// wsRequest is what the browser sends. Session management requests are
// answered directly from the store; chat requests go through the bus to the
// agent.
type wsRequest struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Tool      string `json:"tool,omitempty"`
}

type wsResponse struct {
	Type      string         `json:"type"`
	Content   string         `json:"content,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	MsgType   string         `json:"msg_type,omitempty"`
	Data      any            `json:"data,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`

	Sessions  []*session.Session `json:"sessions,omitempty"`
	CurrentID string             `json:"current_session_id,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

type WebUIChannel struct {
	BaseChannel
	port    int
	store   *session.Store
	server  *http.Server
	clients sync.Map
	nextID  atomic.Int64
}

func NewWebUIChannel(cfg config.WebUIConfig, gwCfg config.GatewayConfig, b *bus.MessageBus, store *session.Store) (*WebUIChannel, error) {
	port := gwCfg.Port
	if port == 0 {
		port = config.DefaultPort
	}

	return &WebUIChannel{
		BaseChannel: NewBaseChannel(webUIChannelName, b, cfg.AllowFrom),
		port:        port,
		store:       store,
	}, nil
}

func (w *WebUIChannel) Start(ctx context.Context) error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("embed static fs: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", w.handleWS)

	w.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", w.port),
		Handler: mux,
	}

	go func() {
		log.Printf("[webui] listening on :%d", w.port)
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[webui] server error: %v", err)
		}
	}()

	return nil
}

func (w *WebUIChannel) handleWS(wr http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(wr, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[webui] websocket accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("webui-%d", w.nextID.Add(1))
	client := &wsClient{conn: conn, id: clientID}
	w.clients.Store(clientID, client)
	log.Printf("[webui] client connected: %s", clientID)

	// New clients get the current session list immediately.
	w.sendSessions(client)

	defer func() {
		w.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[webui] client disconnected: %s", clientID)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		if !w.IsAllowed(clientID) {
			log.Printf("[webui] rejected message from %s", clientID)
			continue
		}

		w.handleRequest(client, req)
	}
}

func (w *WebUIChannel) handleRequest(client *wsClient, req wsRequest) {
	switch req.Type {
	case "message":
		if req.Content == "" {
			return
		}
		w.bus.Inbound <- bus.InboundMessage{
			Channel:   webUIChannelName,
			SenderID:  client.id,
			ChatID:    client.id,
			SessionID: req.SessionID,
			Content:   req.Content,
			Model:     req.Model,
			Timestamp: time.Now(),
		}

	case "confirm":
		// The approval travels through the normal turn path as a
		// structured confirmation utterance.
		if req.Tool == "" {
			return
		}
		w.bus.Inbound <- bus.InboundMessage{
			Channel:   webUIChannelName,
			SenderID:  client.id,
			ChatID:    client.id,
			SessionID: req.SessionID,
			Content:   "CONFIRMED: " + req.Tool,
			Model:     req.Model,
			Timestamp: time.Now(),
		}

	case "cancel":
		w.bus.Inbound <- bus.InboundMessage{
			Channel:   webUIChannelName,
			SenderID:  client.id,
			ChatID:    client.id,
			SessionID: req.SessionID,
			Content:   "Cancelled",
			Model:     req.Model,
			Timestamp: time.Now(),
		}

	case "new_session":
		if _, err := w.store.CreateSession(nil); err != nil {
			w.sendError(client, "failed to create session")
			return
		}
		w.sendSessions(client)

	case "switch_session":
		if err := w.store.SwitchSession(req.SessionID); err != nil {
			w.sendError(client, "failed to switch session")
			return
		}
		w.sendSessions(client)

	case "delete_session":
		if err := w.store.DeleteSession(req.SessionID); err != nil {
			w.sendError(client, "failed to delete session")
			return
		}
		w.sendSessions(client)

	case "clear_sessions":
		if err := w.store.ClearAll(); err != nil {
			w.sendError(client, "failed to clear sessions")
			return
		}
		w.sendSessions(client)

	case "list_sessions":
		w.sendSessions(client)
	}
}

func (w *WebUIChannel) sendSessions(client *wsClient) {
	sessions, err := w.store.ListSessions()
	if err != nil {
		log.Printf("[webui] list sessions failed: %v", err)
		w.sendError(client, "failed to load sessions")
		return
	}
	w.writeJSON(client, wsResponse{
		Type:      "sessions",
		Sessions:  sessions,
		CurrentID: w.store.CurrentSessionID(),
	})
}

func (w *WebUIChannel) sendError(client *wsClient, text string) {
	w.writeJSON(client, wsResponse{Type: "error", Content: text})
}

func (w *WebUIChannel) writeJSON(client *wsClient, resp wsResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[webui] marshal response: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.conn.Write(ctx, websocket.MessageText, data); err != nil {
		log.Printf("[webui] write to %s failed: %v", client.id, err)
	}
}

func (w *WebUIChannel) Send(msg bus.OutboundMessage) error {
	resp := wsResponse{
		Type:      "message",
		Content:   msg.Content,
		SessionID: msg.SessionID,
		MsgType:   msg.Type,
		Meta:      msg.Meta,
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	client, ok := w.clients.Load(msg.ChatID)
	if !ok {
		// Broadcast when the originating client is gone; another tab may
		// be watching the same session.
		w.clients.Range(func(key, value any) bool {
			c := value.(*wsClient)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.conn.Write(ctx, websocket.MessageText, data)
			return true
		})
		return nil
	}

	c := client.(*wsClient)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (w *WebUIChannel) Stop() error {
	if w.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.server.Shutdown(ctx); err != nil {
			log.Printf("[webui] shutdown error: %v", err)
		}
	}
	w.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		c.conn.CloseNow()
		return true
	})
	log.Printf("[webui] stopped")
	return nil
}

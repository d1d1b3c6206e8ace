package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/recruitops/talentclaw/internal/bus"
	"github.com/recruitops/talentclaw/internal/config"
	"github.com/recruitops/talentclaw/internal/cron"
	"github.com/recruitops/talentclaw/internal/llm"
	"github.com/recruitops/talentclaw/internal/session"
)

// fakeBackend serves the slices of the recruiting API the gateway touches
// during these tests.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"agent_models":        []string{"openai/gpt-4o", "openai/gpt-4o-mini"},
			"agent_default_model": "openai/gpt-4o",
		})
	})
	mux.HandleFunc("/api/campaigns/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"state": "SUCCESS"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T, client llm.Client) *Gateway {
	t.Helper()
	srv := fakeBackend(t)

	// Cron persistence resolves under $HOME.
	t.Setenv("HOME", t.TempDir())

	cfg := config.DefaultConfig()
	cfg.Sessions.DBPath = filepath.Join(t.TempDir(), "sessions.db")
	cfg.Backend.BaseURL = srv.URL
	cfg.Channels.WebUI.Enabled = false
	cfg.Campaign.PollIntervalSeconds = 1
	cfg.Campaign.PollTimeoutSeconds = 30

	g, err := NewWithOptions(cfg, Options{Client: client})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	t.Cleanup(func() { g.store.Close() })
	return g
}

func readOutbound(t *testing.T, b *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	select {
	case out := <-b.Outbound:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("no outbound message")
		return bus.OutboundMessage{}
	}
}

func TestHandleInboundDeliversReply(t *testing.T) {
	mock := &llm.MockClient{Replies: []*llm.Reply{{FinalResponse: "Hello! How can I help with your candidates today?"}}}
	g := newGateway(t, mock)

	g.handleInbound(context.Background(), bus.InboundMessage{
		Channel: "webui", SenderID: "webui-1", ChatID: "webui-1",
		Content: "hi there",
	})

	out := readOutbound(t, g.bus)
	if out.Channel != "webui" || out.ChatID != "webui-1" {
		t.Errorf("route = %s/%s", out.Channel, out.ChatID)
	}
	if out.Content != "Hello! How can I help with your candidates today?" {
		t.Errorf("content = %q", out.Content)
	}
	if out.SessionID == "" {
		t.Error("outbound should carry the session id the turn landed in")
	}
	if mock.Models[0] != g.cfg.Agent.Model {
		t.Errorf("model = %q, want config default", mock.Models[0])
	}
}

func TestHandleInboundConfirmationMeta(t *testing.T) {
	mock := &llm.MockClient{Replies: []*llm.Reply{{
		Tool: "delete_candidate",
		Args: map[string]any{"name": "John Doe"},
	}}}
	g := newGateway(t, mock)

	g.handleInbound(context.Background(), bus.InboundMessage{
		Channel: "webui", ChatID: "webui-1",
		Content: "delete john doe",
	})

	out := readOutbound(t, g.bus)
	if !strings.Contains(out.Content, "delete_candidate") {
		t.Errorf("content = %q", out.Content)
	}
	if out.Meta == nil || out.Meta["confirmation_request"] == nil {
		t.Fatalf("meta = %+v, want confirmation_request", out.Meta)
	}
	req := out.Meta["confirmation_request"].(*session.ConfirmationRequest)
	if req.Tool != "delete_candidate" {
		t.Errorf("tool = %q", req.Tool)
	}
}

func TestHandleInboundBusySession(t *testing.T) {
	g := newGateway(t, &llm.MockClient{})

	sess, err := g.store.CreateSession(&session.Message{Role: session.RoleUser, Content: "first"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !g.store.BeginProcessing(sess.ID) {
		t.Fatal("BeginProcessing")
	}
	defer g.store.EndProcessing(sess.ID)

	g.handleInbound(context.Background(), bus.InboundMessage{
		Channel: "webui", ChatID: "webui-1", SessionID: sess.ID,
		Content: "second",
	})

	out := readOutbound(t, g.bus)
	if !strings.Contains(out.Content, "still working") {
		t.Errorf("busy notice = %q", out.Content)
	}

	loaded, _ := g.store.GetSession(sess.ID)
	if len(loaded.Messages) != 1 {
		t.Errorf("busy turn must append nothing, got %d messages", len(loaded.Messages))
	}
}

func TestHandleInboundBlankIgnored(t *testing.T) {
	g := newGateway(t, &llm.MockClient{})

	g.handleInbound(context.Background(), bus.InboundMessage{
		Channel: "webui", ChatID: "webui-1", Content: "   ",
	})

	select {
	case out := <-g.bus.Outbound:
		t.Fatalf("unexpected outbound %+v", out)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRefreshModels(t *testing.T) {
	g := newGateway(t, &llm.MockClient{})

	g.RefreshModels(context.Background())

	if g.cfg.Agent.Model != "openai/gpt-4o" {
		t.Errorf("model = %q", g.cfg.Agent.Model)
	}
	if len(g.cfg.Agent.Models) != 2 {
		t.Errorf("models = %v", g.cfg.Agent.Models)
	}
}

func TestRunScheduledJobDelivers(t *testing.T) {
	mock := &llm.MockClient{Replies: []*llm.Reply{{FinalResponse: "You have 2 interviews today."}}}
	g := newGateway(t, mock)

	job := cron.NewCronJob("digest", cron.Schedule{Kind: "cron", Expr: "0 0 9 * * *"}, cron.Payload{
		Message: "What interviews do I have today?",
		Channel: "telegram",
		ChatID:  "100",
	})

	result, err := g.runScheduledJob(job)
	if err != nil {
		t.Fatalf("runScheduledJob: %v", err)
	}
	if result != "You have 2 interviews today." {
		t.Errorf("result = %q", result)
	}

	out := readOutbound(t, g.bus)
	if out.Channel != "telegram" || out.ChatID != "100" {
		t.Errorf("route = %s/%s", out.Channel, out.ChatID)
	}
}

func TestEnsureDigestJobSeedsOnce(t *testing.T) {
	g := newGateway(t, &llm.MockClient{})

	// No telegram: nothing to seed.
	if err := g.ensureDigestJob(); err != nil {
		t.Fatalf("ensureDigestJob: %v", err)
	}
	if got := len(g.cron.ListJobs()); got != 0 {
		t.Fatalf("jobs = %d, want 0 without telegram", got)
	}

	g.cfg.Channels.Telegram.Enabled = true
	g.cfg.Channels.Telegram.AllowFrom = []string{"42"}

	if err := g.ensureDigestJob(); err != nil {
		t.Fatalf("ensureDigestJob: %v", err)
	}
	if err := g.ensureDigestJob(); err != nil {
		t.Fatalf("second ensureDigestJob: %v", err)
	}

	jobs := g.cron.ListJobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Payload.Channel != "telegram" || jobs[0].Payload.ChatID != "42" {
		t.Errorf("payload = %+v", jobs[0].Payload)
	}
}

func TestCampaignResultFollowsRoute(t *testing.T) {
	g := newGateway(t, &llm.MockClient{})

	sess, err := g.store.CreateSession(&session.Message{Role: session.RoleUser, Content: "send it"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	g.rememberRoute(sess.ID, "webui", "webui-3")

	g.orch.OnCampaignStarted(sess.ID, "task-1")
	g.poller.Wait()

	out := readOutbound(t, g.bus)
	if out.Channel != "webui" || out.ChatID != "webui-3" || out.SessionID != sess.ID {
		t.Errorf("outbound = %+v", out)
	}
	if !strings.Contains(out.Content, "campaign completed") {
		t.Errorf("content = %q", out.Content)
	}

	loaded, _ := g.store.GetSession(sess.ID)
	last := loaded.Messages[len(loaded.Messages)-1]
	if last.Role != session.RoleAssistant {
		t.Errorf("campaign result not appended: %+v", last)
	}
}

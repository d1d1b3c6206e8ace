// Package gateway wires the pieces together: session store, backend client,
// tool registry, completion client, orchestrator, campaign poller, channels
// and the cron scheduler. One process loop consumes the bus and drives the
// agent; channels only ever talk to the bus.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/recruitops/talentclaw/internal/agent"
	"github.com/recruitops/talentclaw/internal/backend"
	"github.com/recruitops/talentclaw/internal/bus"
	"github.com/recruitops/talentclaw/internal/campaign"
	"github.com/recruitops/talentclaw/internal/channel"
	"github.com/recruitops/talentclaw/internal/config"
	"github.com/recruitops/talentclaw/internal/cron"
	"github.com/recruitops/talentclaw/internal/llm"
	"github.com/recruitops/talentclaw/internal/session"
	"github.com/recruitops/talentclaw/internal/skills"
)

// Options allow injecting fakes in tests.
type Options struct {
	Client     llm.Client     // completion client override
	SignalChan chan os.Signal // signal source override
}

type route struct {
	channel string
	chatID  string
}

type Gateway struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	store    *session.Store
	api      *backend.Client
	registry *skills.Registry
	orch     *agent.Orchestrator
	poller   *campaign.Poller
	channels *channel.ChannelManager
	cron     *cron.Service

	signalChan chan os.Signal

	// Last known delivery route per session, so async campaign results and
	// cron digests land on the channel that was last talking to the session.
	mu     sync.Mutex
	routes map[string]route

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:        cfg,
		signalChan: opts.SignalChan,
		routes:     make(map[string]route),
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	dbPath := cfg.Sessions.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "sessions.db")
	}
	store, err := session.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	g.store = store

	g.api = backend.NewClient(cfg.Backend.BaseURL)

	g.registry = skills.NewRegistry()
	for _, reg := range []interface{ Register(*skills.Registry) error }{
		skills.NewCandidateSkill(g.api),
		skills.NewScheduleSkill(g.api),
		skills.NewEmailSkill(g.api),
	} {
		if err := reg.Register(g.registry); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("register skills: %w", err)
		}
	}

	packsDir := cfg.Agent.PromptPacksDir
	if packsDir == "" {
		packsDir = filepath.Join(config.ConfigDir(), "skills")
	}
	packs, err := skills.LoadPromptPacks(packsDir)
	if err != nil {
		log.Printf("[gateway] prompt packs load warning: %v", err)
	}

	client := opts.Client
	if client == nil {
		client = llm.NewClient(cfg, g.registry.Catalog())
	}

	g.orch = agent.NewOrchestrator(store, g.registry, client, packs)
	g.poller = campaign.NewPoller(g.api, store, g.bus, cfg.Campaign)
	g.orch.OnCampaignStarted = func(sessionID, taskID string) {
		r := g.routeFor(sessionID)
		ctx := g.runCtx
		if ctx == nil {
			ctx = context.Background()
		}
		g.poller.Watch(ctx, sessionID, taskID, r.channel, r.chatID)
	}

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.cron = cron.NewService(filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json"))
	g.cron.OnJob = g.runScheduledJob

	return g, nil
}

const digestJobName = "interview-digest"

// ensureDigestJob seeds the daily interview digest when Telegram is set up
// with an allow-list; the digest lands in the first allowed chat each
// weekday morning. Operators can remove or disable the job afterwards.
func (g *Gateway) ensureDigestJob() error {
	tg := g.cfg.Channels.Telegram
	if !tg.Enabled || len(tg.AllowFrom) == 0 {
		return nil
	}
	for _, job := range g.cron.ListJobs() {
		if job.Name == digestJobName {
			return nil
		}
	}
	_, err := g.cron.AddJob(digestJobName,
		cron.Schedule{Kind: "cron", Expr: "0 0 9 * * 1-5"},
		cron.Payload{
			Message: "What interviews do I have scheduled today?",
			Channel: "telegram",
			ChatID:  tg.AllowFrom[0],
		})
	return err
}

// runScheduledJob feeds a cron payload through the agent and optionally
// delivers the reply to the payload's channel.
func (g *Gateway) runScheduledJob(job cron.CronJob) (string, error) {
	ctx := g.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	model := job.Payload.Model
	if model == "" {
		model = g.cfg.Agent.Model
	}

	targetID, err := g.orch.SendMessage(ctx, job.Payload.SessionID, job.Payload.Message, model)
	if err != nil {
		return "", err
	}

	reply, err := g.lastAssistantMessage(targetID)
	if err != nil {
		return "", err
	}

	if job.Payload.Channel != "" {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel:   job.Payload.Channel,
			ChatID:    job.Payload.ChatID,
			SessionID: targetID,
			Content:   reply.Content,
			Type:      reply.Type,
		}
	}
	return reply.Content, nil
}

func (g *Gateway) lastAssistantMessage(sessionID string) (*session.Message, error) {
	sess, err := g.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == session.RoleAssistant {
			return &sess.Messages[i], nil
		}
	}
	return nil, fmt.Errorf("session %s has no assistant reply", sessionID)
}

func (g *Gateway) routeFor(sessionID string) route {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.routes[sessionID]
}

func (g *Gateway) rememberRoute(sessionID, ch, chatID string) {
	if sessionID == "" || ch == "" {
		return
	}
	g.mu.Lock()
	g.routes[sessionID] = route{channel: ch, chatID: chatID}
	g.mu.Unlock()
}

// RefreshModels pulls the configured agent models from the backend settings
// endpoint. The backend being down is not fatal; the config defaults stand.
func (g *Gateway) RefreshModels(ctx context.Context) {
	settings, err := g.api.GetSettings(ctx)
	if err != nil {
		log.Printf("[gateway] settings fetch warning: %v", err)
		return
	}
	if len(settings.AgentModels) > 0 {
		g.cfg.Agent.Models = settings.AgentModels
	}
	if settings.AgentDefaultModel != "" {
		g.cfg.Agent.Model = settings.AgentDefaultModel
	}
	log.Printf("[gateway] agent model: %s (%d available)", g.cfg.Agent.Model, len(g.cfg.Agent.Models))
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.runCtx = ctx
	g.runCancel = cancel

	g.RefreshModels(ctx)

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}
	if err := g.ensureDigestJob(); err != nil {
		log.Printf("[gateway] ensure digest job warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			// Sessions are independent; the per-session in-flight marker
			// serializes turns that do belong together.
			go g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

	g.rememberRoute(msg.SessionID, msg.Channel, msg.ChatID)

	model := msg.Model
	if model == "" {
		model = g.cfg.Agent.Model
	}

	targetID, err := g.orch.SendMessage(ctx, msg.SessionID, msg.Content, model)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrEmptyMessage):
			return
		case errors.Is(err, agent.ErrSessionBusy):
			g.bus.Outbound <- bus.OutboundMessage{
				Channel:   msg.Channel,
				ChatID:    msg.ChatID,
				SessionID: targetID,
				Content:   "I'm still working on your previous request. Please wait a moment.",
				Type:      session.TypeText,
			}
			return
		default:
			log.Printf("[gateway] turn failed: %v", err)
			g.bus.Outbound <- bus.OutboundMessage{
				Channel:   msg.Channel,
				ChatID:    msg.ChatID,
				SessionID: targetID,
				Content:   "System Error: " + err.Error(),
				Type:      session.TypeError,
			}
			return
		}
	}

	g.rememberRoute(targetID, msg.Channel, msg.ChatID)

	reply, err := g.lastAssistantMessage(targetID)
	if err != nil {
		log.Printf("[gateway] load reply for %s: %v", targetID, err)
		return
	}

	out := bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		SessionID: targetID,
		Content:   reply.Content,
		Type:      reply.Type,
	}
	if reply.Meta != nil || reply.Data != nil {
		out.Meta = make(map[string]any)
		if reply.Data != nil {
			out.Meta["data"] = reply.Data
		}
		if reply.Meta != nil && reply.Meta.ConfirmationRequest != nil {
			out.Meta["confirmation_request"] = reply.Meta.ConfirmationRequest
		}
	}
	g.bus.Outbound <- out
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	if g.runCancel != nil {
		g.runCancel()
	}
	g.poller.Wait()
	if err := g.store.Close(); err != nil {
		log.Printf("[gateway] close session store warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

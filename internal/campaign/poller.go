// Package campaign tracks email campaigns launched by the agent. Sending is
// asynchronous on the backend side, so after a send is accepted the poller
// watches the task until it settles and reports the outcome back into the
// conversation that started it.
package campaign

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/recruitops/talentclaw/internal/backend"
	"github.com/recruitops/talentclaw/internal/bus"
	"github.com/recruitops/talentclaw/internal/config"
	"github.com/recruitops/talentclaw/internal/session"
)

// StatusClient is the slice of the backend API the poller needs.
type StatusClient interface {
	CampaignStatus(ctx context.Context, taskID string) (*backend.TaskStatus, error)
}

type Poller struct {
	api      StatusClient
	store    *session.Store
	bus      *bus.MessageBus
	interval time.Duration
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewPoller(api StatusClient, store *session.Store, b *bus.MessageBus, cfg config.CampaignConfig) *Poller {
	return &Poller{
		api:      api,
		store:    store,
		bus:      b,
		interval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		timeout:  time.Duration(cfg.PollTimeoutSeconds) * time.Second,
	}
}

// Watch follows a campaign task in the background. When it settles the result
// is appended to the originating session and, if a delivery route is known,
// pushed to that channel.
func (p *Poller) Watch(ctx context.Context, sessionID, taskID, channel, chatID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.poll(ctx, sessionID, taskID, channel, chatID)
	}()
}

// Wait blocks until all watched campaigns have settled.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) poll(ctx context.Context, sessionID, taskID, channel, chatID string) {
	log.Printf("[campaign] watching task %s for session %s", taskID, sessionID)

	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, err := p.api.CampaignStatus(ctx, taskID)
			if err != nil {
				// Transient backend errors should not kill the watch.
				log.Printf("[campaign] status check for %s failed: %v", taskID, err)
				continue
			}
			switch status.State {
			case backend.TaskStateSuccess:
				p.report(sessionID, channel, chatID, session.TypeText,
					"Email campaign completed! All emails have been sent.")
				return
			case backend.TaskStateFailure:
				p.report(sessionID, channel, chatID, session.TypeError,
					"Email campaign failed. Please check the campaign logs on the backend.")
				return
			}
		case <-deadline.C:
			p.report(sessionID, channel, chatID, session.TypeText,
				fmt.Sprintf("Email campaign %s is still running after %s. Check its status later.", taskID, p.timeout))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) report(sessionID, channel, chatID, msgType, content string) {
	msg := session.Message{
		Role:    session.RoleAssistant,
		Content: content,
		Type:    msgType,
	}
	if err := p.store.AppendMessage(sessionID, msg); err != nil {
		log.Printf("[campaign] append result to session %s: %v", sessionID, err)
	}
	if channel != "" {
		p.bus.Outbound <- bus.OutboundMessage{
			Channel:   channel,
			ChatID:    chatID,
			SessionID: sessionID,
			Content:   content,
			Type:      msgType,
		}
	}
}

package channel

import (
	"context"

	"github.com/recruitops/talentclaw/internal/bus"
)

// Channel is one user-facing transport (web UI, Telegram). Channels push
// user input onto the bus and deliver agent replies back out.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel carries the shared plumbing: the bus handle and the sender
// allow-list.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom []string
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	return BaseChannel{name: name, bus: b, allowFrom: allowFrom}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsAllowed reports whether the sender may talk to the agent. An empty
// allow-list means everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	for _, allowed := range c.allowFrom {
		if allowed == senderID {
			return true
		}
	}
	return false
}

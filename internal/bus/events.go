package bus

import "time"

type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	SessionID string
	Content   string
	Model     string
	Timestamp time.Time
	Metadata  map[string]any
}

// SessionKey identifies the conversation an inbound message belongs to when
// the channel did not pin an explicit session id.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

type OutboundMessage struct {
	Channel   string
	ChatID    string
	SessionID string
	Content   string
	Type      string
	Meta      map[string]any
}

package channel

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/recruitops/talentclaw/internal/bus"
	"github.com/recruitops/talentclaw/internal/config"
)

func TestIsAllowed(t *testing.T) {
	b := bus.NewMessageBus(1)

	open := NewBaseChannel("test", b, nil)
	if !open.IsAllowed("anyone") {
		t.Error("empty allow-list should permit everyone")
	}

	restricted := NewBaseChannel("test", b, []string{"42"})
	if !restricted.IsAllowed("42") {
		t.Error("listed sender should be allowed")
	}
	if restricted.IsAllowed("43") {
		t.Error("unlisted sender should be rejected")
	}
}

func TestToTelegramHTML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"**bold** text", "<b>bold</b> text"},
		{"`code` here", "<code>code</code> here"},
		{"a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"```go\nfmt.Println()\n```", "<pre>fmt.Println()\n</pre>"},
	}
	for _, tc := range cases {
		if got := toTelegramHTML(tc.in); got != tc.want {
			t.Errorf("toTelegramHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type mockBot struct {
	sent    []tgbotapi.Chattable
	sendErr error
}

func (m *mockBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}
func (m *mockBot) StopReceivingUpdates() {}
func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	if m.sendErr != nil {
		err := m.sendErr
		m.sendErr = nil
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{}, nil
}
func (m *mockBot) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "testbot"} }

func TestTelegramSendFormatsMarkdown(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, err := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "token"}, b, nil)
	if err != nil {
		t.Fatalf("NewTelegramChannelWithFactory: %v", err)
	}
	bot := &mockBot{}
	ch.SetBot(bot)

	if err := ch.Send(bus.OutboundMessage{ChatID: "100", Content: "**done**"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %d messages", len(bot.sent))
	}
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	if msg.Text != "<b>done</b>" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q", msg.ParseMode)
	}
}

func TestTelegramSendRetriesWithoutHTML(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "token"}, b, nil)
	bot := &mockBot{sendErr: errors.New("can't parse entities")}
	ch.SetBot(bot)

	if err := ch.Send(bus.OutboundMessage{ChatID: "100", Content: "*odd* markup"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("sent = %d messages, want 2 (retry)", len(bot.sent))
	}
	retry := bot.sent[1].(tgbotapi.MessageConfig)
	if retry.ParseMode != "" || retry.Text != "*odd* markup" {
		t.Errorf("retry = %+v", retry)
	}
}

func TestTelegramSendInvalidChatID(t *testing.T) {
	b := bus.NewMessageBus(1)
	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "token"}, b, nil)
	ch.SetBot(&mockBot{})

	err := ch.Send(bus.OutboundMessage{ChatID: "webui-1", Content: "hi"})
	if err == nil || !strings.Contains(err.Error(), "invalid chat id") {
		t.Errorf("err = %v", err)
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/recruitops/talentclaw/internal/llm"
	"github.com/recruitops/talentclaw/internal/session"
	"github.com/recruitops/talentclaw/internal/skills"
)

// Sentinel rejections for sendMessage. Neither appends anything to the
// session; channels ignore the submission.
var (
	ErrEmptyMessage = errors.New("empty message")
	ErrSessionBusy  = errors.New("session already has a request in flight")
)

// Orchestrator is the control loop between user utterances, the completion
// model and the tool registry. State per session runs idle ->
// awaiting_completion -> (tool dispatch) -> idle; the processing marker in
// the store enforces at most one in-flight request per session while other
// sessions proceed independently.
type Orchestrator struct {
	store    *session.Store
	registry *skills.Registry
	client   llm.Client
	packs    []skills.PromptPack

	// OnCampaignStarted is invoked when a tool launches an async email
	// campaign, so the gateway can poll delivery progress back into the
	// originating session.
	OnCampaignStarted func(sessionID, taskID string)
}

func NewOrchestrator(store *session.Store, registry *skills.Registry, client llm.Client, packs []skills.PromptPack) *Orchestrator {
	return &Orchestrator{
		store:    store,
		registry: registry,
		client:   client,
		packs:    packs,
	}
}

// SendMessage runs one conversation turn. sessionID may be empty, in which
// case the active session is used or a new one is created seeded with the
// user message. The id of the session the turn landed in is returned so
// callers can thread it explicitly instead of relying on the active pointer.
func (o *Orchestrator) SendMessage(ctx context.Context, sessionID, content, model string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}

	targetID := sessionID
	if targetID == "" {
		targetID = o.store.CurrentSessionID()
	}

	var sess *session.Session
	var err error
	if targetID != "" {
		sess, err = o.store.GetSession(targetID)
		if err != nil {
			// Stale pointer; fall through to creating a fresh session.
			sess = nil
			targetID = ""
		}
	}

	userMsg := session.Message{Role: session.RoleUser, Content: content}
	if sess == nil {
		sess, err = o.store.CreateSession(&userMsg)
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
		targetID = sess.ID
		if !o.store.BeginProcessing(targetID) {
			return targetID, ErrSessionBusy
		}
	} else {
		if !o.store.BeginProcessing(targetID) {
			return targetID, ErrSessionBusy
		}
		if err := o.store.AppendMessage(targetID, userMsg); err != nil {
			o.store.EndProcessing(targetID)
			return targetID, fmt.Errorf("append user message: %w", err)
		}
	}
	// The marker is cleared no matter how the turn ends; the session always
	// returns to idle.
	defer o.store.EndProcessing(targetID)

	pending := sess.PendingConfirmation()

	reply := o.runTurn(ctx, sess, pending, content, model)
	if err := o.store.AppendMessage(targetID, reply); err != nil {
		return targetID, fmt.Errorf("append assistant message: %w", err)
	}
	return targetID, nil
}

// runTurn produces the assistant message for one accepted user utterance.
// Every failure path ends in a normal error-typed message; nothing escapes
// to the caller as a panic or error that would strand the session.
func (o *Orchestrator) runTurn(ctx context.Context, sess *session.Session, pending *session.ConfirmationRequest, content, model string) session.Message {
	if pending != nil {
		if isCancellation(content) {
			return session.Message{
				Role:    session.RoleAssistant,
				Content: fmt.Sprintf("Okay, I've cancelled the pending %s action.", pending.Tool),
				Type:    session.TypeText,
			}
		}
		if tool, ok := matchConfirmation(content); ok {
			if tool != "" && tool != pending.Tool {
				return session.Message{
					Role:    session.RoleAssistant,
					Content: fmt.Sprintf("That confirmation doesn't match the pending action (%s). Please confirm or cancel it first.", pending.Tool),
					Type:    session.TypeText,
				}
			}
			log.Printf("[agent] confirmed tool %s for session %s", pending.Tool, sess.ID)
			return o.dispatch(ctx, sess.ID, pending.Tool, pending.Args)
		}
	}

	history := buildHistory(sess.Messages, content, o.matchingGuidance(content))
	reply, err := o.client.Complete(ctx, history, model)
	if err != nil {
		log.Printf("[agent] completion failed for session %s: %v", sess.ID, err)
		return errorMessage(err)
	}

	if reply.Tool == "" {
		return session.Message{
			Role:    session.RoleAssistant,
			Content: reply.FinalResponse,
			Type:    session.TypeText,
		}
	}

	if !o.registry.Has(reply.Tool) {
		return errorMessage(&skills.UnknownToolError{Tool: reply.Tool})
	}

	if o.registry.IsGated(reply.Tool) {
		log.Printf("[agent] gated tool %s requested in session %s, asking for confirmation", reply.Tool, sess.ID)
		return session.Message{
			Role:    session.RoleAssistant,
			Content: fmt.Sprintf("I need your permission to execute %s.", reply.Tool),
			Type:    session.TypeText,
			Meta: &session.Meta{
				ConfirmationRequest: &session.ConfirmationRequest{
					Tool:    reply.Tool,
					Args:    reply.Args,
					Message: fmt.Sprintf("I need to %s.", strings.ReplaceAll(reply.Tool, "_", " ")),
				},
			},
		}
	}

	return o.dispatch(ctx, sess.ID, reply.Tool, reply.Args)
}

func (o *Orchestrator) dispatch(ctx context.Context, sessionID, tool string, args map[string]any) session.Message {
	result, err := o.registry.Dispatch(ctx, tool, args)
	if err != nil {
		return errorMessage(err)
	}

	if result.TaskID != "" && o.OnCampaignStarted != nil {
		o.OnCampaignStarted(sessionID, result.TaskID)
	}

	msgType := result.Type
	if msgType == "" {
		msgType = session.TypeText
	}
	return session.Message{
		Role:    session.RoleAssistant,
		Content: result.Message,
		Type:    msgType,
		Data:    result.Data,
		Meta: &session.Meta{
			ToolOutputs: []session.ToolOutput{{Tool: tool, Output: result.Data}},
		},
	}
}

// matchingGuidance collects prompt-pack guidance relevant to the utterance.
func (o *Orchestrator) matchingGuidance(content string) string {
	var parts []string
	for i := range o.packs {
		if o.packs[i].Matches(content) && o.packs[i].Prompt != "" {
			parts = append(parts, o.packs[i].Prompt)
		}
	}
	return strings.Join(parts, "\n\n")
}

// buildHistory serializes prior turns as bare role+content pairs. Message
// metadata, payloads and type tags never travel upstream. The new user
// utterance is already the session's last message when this runs, so it is
// passed separately and appended once.
func buildHistory(messages []session.Message, latest, guidance string) []llm.Turn {
	turns := make([]llm.Turn, 0, len(messages)+2)
	if guidance != "" {
		turns = append(turns, llm.Turn{Role: session.RoleSystem, Content: guidance})
	}
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		turns = append(turns, llm.Turn{Role: msg.Role, Content: msg.Content})
	}
	if len(turns) == 0 || turns[len(turns)-1].Content != latest || turns[len(turns)-1].Role != session.RoleUser {
		turns = append(turns, llm.Turn{Role: session.RoleUser, Content: latest})
	}
	return turns
}

func errorMessage(err error) session.Message {
	return session.Message{
		Role:    session.RoleAssistant,
		Content: "System Error: " + err.Error(),
		Type:    session.TypeError,
	}
}

var confirmationPhrases = map[string]struct{}{
	"PROCEED":  {},
	"YES":      {},
	"CONFIRM":  {},
	"GO AHEAD": {},
	"DO IT":    {},
	"SURE":     {},
	"OK":       {},
	"OKAY":     {},
}

// matchConfirmation recognizes an approval of the pending action. The
// second return is false when the utterance is not a confirmation at all;
// tool is non-empty only for the structured "CONFIRMED: <tool>" form.
func matchConfirmation(content string) (tool string, ok bool) {
	normalized := strings.ToUpper(strings.TrimSpace(content))
	if strings.HasPrefix(normalized, "CONFIRMED:") {
		raw := strings.TrimSpace(content[len("CONFIRMED:"):])
		return strings.ToLower(raw), true
	}
	if _, found := confirmationPhrases[normalized]; found {
		return "", true
	}
	if strings.HasPrefix(normalized, "YES,") || strings.HasPrefix(normalized, "YES ") {
		return "", true
	}
	return "", false
}

func isCancellation(content string) bool {
	normalized := strings.ToUpper(strings.TrimRight(strings.TrimSpace(content), "."))
	switch normalized {
	case "CANCEL", "CANCELLED", "CANCELED", "NO":
		return true
	}
	return false
}

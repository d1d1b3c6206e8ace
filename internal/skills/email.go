package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recruitops/talentclaw/internal/backend"
)

// EmailSkill groups the draft and campaign tools.
type EmailSkill struct {
	api *backend.Client
}

func NewEmailSkill(api *backend.Client) *EmailSkill {
	return &EmailSkill{api: api}
}

func (s *EmailSkill) Register(r *Registry) error {
	specs := []ToolSpec{
		{
			Name:        "draft_email",
			Skill:       "email",
			Signature:   "name_or_email, subject, content?",
			Description: "Draft an email to a candidate (saved to Drafts).",
			Handler:     s.draftEmail,
		},
		{
			Name:        "send_email",
			Skill:       "email",
			Signature:   "name",
			Description: "Send the pending draft addressed to a candidate.",
			Handler:     s.sendEmail,
			Gated:       true,
		},
		{
			Name:        "list_drafts",
			Skill:       "email",
			Signature:   "",
			Description: "List saved drafts.",
			Handler:     s.listDrafts,
		},
		{
			Name:        "edit_draft",
			Skill:       "email",
			Signature:   "draft_id, field, value",
			Description: "Edit a draft's subject or body.",
			Handler:     s.editDraft,
		},
		{
			Name:        "delete_draft",
			Skill:       "email",
			Signature:   "draft_id",
			Description: "Delete a draft by ID.",
			Handler:     s.deleteDraft,
			Gated:       true,
		},
	}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *EmailSkill) draftEmail(ctx context.Context, args map[string]any) (*Result, error) {
	target := argString(args, "name", "recipient", "recipient_email", "to")
	subject := argString(args, "subject", "about")
	if target == "" || subject == "" {
		return &Result{Message: "I need a recipient and a subject to draft an email.", Type: TypeError}, nil
	}
	content := argString(args, "content", "body")

	var recipient backend.Recipient
	if strings.Contains(target, "@") {
		recipient = backend.Recipient{Email: target, Name: "there"}
		// Try to resolve a name for this address.
		if candidates, _, err := s.api.SearchCandidates(ctx, target, "", 1, 0); err == nil && len(candidates) > 0 {
			recipient = backend.Recipient{Email: candidates[0].Email, Name: candidates[0].DisplayName()}
		}
	} else {
		candidates, _, err := s.api.SearchCandidates(ctx, target, "", searchLimit, 0)
		if err != nil {
			return &Result{Message: "Failed to create draft. " + err.Error(), Type: TypeError}, nil
		}
		if len(candidates) == 0 {
			return &Result{
				Message: fmt.Sprintf("I couldn't find a candidate named %q. Please provide their **email address** directly to draft the email.", target),
				Type:    TypeError,
			}, nil
		}
		recipient = backend.Recipient{Email: candidates[0].Email, Name: candidates[0].DisplayName()}
	}

	if content == "" {
		content = fmt.Sprintf("<p>Hi %s,</p><p>Regarding: %s</p>", recipient.Name, subject)
	}
	recipientsJSON, err := json.Marshal([]backend.Recipient{recipient})
	if err != nil {
		return nil, fmt.Errorf("marshal recipients: %w", err)
	}

	draft, err := s.api.CreateDraft(ctx, &backend.Draft{
		Subject:     subject,
		HTMLContent: content,
		Recipients:  string(recipientsJSON),
	})
	if err != nil {
		return &Result{Message: "Failed to create draft. " + err.Error(), Type: TypeError}, nil
	}

	return &Result{
		Message: fmt.Sprintf("Draft created successfully! (ID: %d)\n\n**To: %s <%s>**\n**Subject:** %s",
			draft.ID, recipient.Name, recipient.Email, subject),
		Type: TypeText,
		Data: draft,
	}, nil
}

// sendEmail finds the candidate, locates their pending draft and launches
// the send as an async campaign. The returned TaskID lets the caller poll
// delivery progress.
func (s *EmailSkill) sendEmail(ctx context.Context, args map[string]any) (*Result, error) {
	name := argString(args, "name", "recipient", "to")
	if name == "" {
		return &Result{Message: "I need a candidate name to send an email.", Type: TypeError}, nil
	}

	candidates, _, err := s.api.SearchCandidates(ctx, name, "", searchLimit, 0)
	if err != nil {
		return &Result{Message: "Failed to send email. " + err.Error(), Type: TypeError}, nil
	}
	if len(candidates) == 0 {
		return &Result{Message: fmt.Sprintf("I couldn't find %q.", name), Type: TypeError}, nil
	}
	if len(candidates) > 1 {
		return &Result{
			Message: fmt.Sprintf("I found multiple candidates matching %q. Please be more specific.", name),
			Type:    TypeCandidateList,
			Data:    candidates,
		}, nil
	}
	candidate := candidates[0]

	drafts, err := s.api.ListDrafts(ctx)
	if err != nil {
		return &Result{Message: "Failed to send email. " + err.Error(), Type: TypeError}, nil
	}
	var relevant *backend.Draft
	for i := range drafts {
		if strings.Contains(drafts[i].Recipients, candidate.Email) {
			relevant = &drafts[i]
			break
		}
	}
	if relevant == nil {
		return &Result{
			Message: fmt.Sprintf("I didn't find any pending drafts for **%s**. Please draft one first.", candidate.FirstName),
			Type:    TypeText,
		}, nil
	}

	var recipients []backend.Recipient
	if err := json.Unmarshal([]byte(relevant.Recipients), &recipients); err != nil {
		return &Result{Message: "Failed to send email: the draft's recipient list is corrupted.", Type: TypeError}, nil
	}

	taskID, err := s.api.SendEmails(ctx, &backend.SendEmailsRequest{
		SenderEmail:   relevant.SenderEmail,
		Subject:       relevant.Subject,
		Recipients:    recipients,
		HTMLTemplate:  relevant.HTMLContent,
		PlainTemplate: "Please view this email in an HTML-compatible client.",
	})
	if err != nil {
		return &Result{Message: "Failed to send email. " + err.Error(), Type: TypeError}, nil
	}

	return &Result{
		Message: fmt.Sprintf("Email sent to **%s** (Subject: %s).", candidate.FirstName, relevant.Subject),
		Type:    TypeText,
		TaskID:  taskID,
	}, nil
}

func (s *EmailSkill) listDrafts(ctx context.Context, args map[string]any) (*Result, error) {
	drafts, err := s.api.ListDrafts(ctx)
	if err != nil {
		return &Result{Message: "Failed to list drafts.", Type: TypeError}, nil
	}
	if len(drafts) == 0 {
		return &Result{Message: "You have no saved drafts.", Type: TypeText}, nil
	}

	var lines []string
	for _, d := range drafts {
		to := d.Recipients
		if len(to) > 20 {
			to = to[:20]
		}
		lines = append(lines, fmt.Sprintf("- **[ID: %d]** To: %s... | Subject: %s", d.ID, to, d.Subject))
	}
	return &Result{
		Message: "**Your Drafts:**\n" + strings.Join(lines, "\n"),
		Type:    TypeText,
		Data:    drafts,
	}, nil
}

func (s *EmailSkill) editDraft(ctx context.Context, args map[string]any) (*Result, error) {
	id, ok := argInt(args, "draft_id", "id")
	if !ok {
		return &Result{Message: "I need a Draft ID to edit.", Type: TypeError}, nil
	}
	field := argString(args, "field")
	value := argString(args, "value", "new_value")

	fields := make(map[string]any)
	switch field {
	case "subject":
		fields["subject"] = value
	case "content", "body":
		fields["html_content"] = value
	default:
		return &Result{Message: "I can only edit 'subject' or 'body'.", Type: TypeError}, nil
	}

	if err := s.api.UpdateDraft(ctx, id, fields); err != nil {
		return &Result{Message: "Failed to update draft.", Type: TypeError}, nil
	}
	return &Result{Message: fmt.Sprintf("Draft %d updated successfully.", id), Type: TypeText}, nil
}

func (s *EmailSkill) deleteDraft(ctx context.Context, args map[string]any) (*Result, error) {
	id, ok := argInt(args, "draft_id", "id")
	if !ok {
		return &Result{Message: "I need a Draft ID to delete.", Type: TypeError}, nil
	}
	if err := s.api.DeleteDraft(ctx, id); err != nil {
		return &Result{Message: "Failed to delete draft.", Type: TypeError}, nil
	}
	return &Result{Message: fmt.Sprintf("Draft %d deleted.", id), Type: TypeText}, nil
}

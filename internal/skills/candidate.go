package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recruitops/talentclaw/internal/backend"
)

const searchLimit = 20

// CandidateSkill groups the candidate-management tools: search, listing,
// creation, updates and deletion.
type CandidateSkill struct {
	api *backend.Client
}

func NewCandidateSkill(api *backend.Client) *CandidateSkill {
	return &CandidateSkill{api: api}
}

func (s *CandidateSkill) Register(r *Registry) error {
	specs := []ToolSpec{
		{
			Name:        "find_candidates",
			Skill:       "candidate",
			Signature:   "name, country?",
			Description: "Search candidates by name, email or phone.",
			Handler:     s.findCandidates,
		},
		{
			Name:        "find_uk_candidates",
			Skill:       "candidate",
			Signature:   "name",
			Description: "Search UK candidates by name, email or phone.",
			Handler:     s.findUKCandidates,
		},
		{
			Name:        "list_candidates",
			Skill:       "candidate",
			Signature:   "",
			Description: "Show the most recent candidates.",
			Handler:     s.listCandidates,
		},
		{
			Name:        "count_candidates",
			Skill:       "candidate",
			Signature:   "",
			Description: "Count candidates in the database.",
			Handler:     s.countCandidates,
		},
		{
			Name:        "get_candidate_details",
			Skill:       "candidate",
			Signature:   "candidate_id",
			Description: "Get full details for one candidate by ID.",
			Handler:     s.getCandidateDetails,
		},
		{
			Name:        "add_candidate",
			Skill:       "candidate",
			Signature:   "name, email, country?",
			Description: "Add a new candidate.",
			Handler:     s.addCandidate,
			Gated:       true,
		},
		{
			Name:        "update_candidate",
			Skill:       "candidate",
			Signature:   "candidate_id, fields...",
			Description: "Update candidate details (email, phone, status, notes).",
			Handler:     s.updateCandidate,
			Gated:       true,
		},
		{
			Name:        "delete_candidate",
			Skill:       "candidate",
			Signature:   "name",
			Description: "Delete a candidate found by name.",
			Handler:     s.deleteCandidate,
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

func (s *CandidateSkill) findCandidates(ctx context.Context, args map[string]any) (*Result, error) {
	query := argString(args, "name", "query", "search")
	country := argString(args, "country")
	if query == "" {
		return &Result{Message: "I need a name or search term to find candidates.", Type: TypeError}, nil
	}

	candidates, _, err := s.api.SearchCandidates(ctx, query, country, searchLimit, 0)
	if err != nil {
		return &Result{Message: "I encountered an error searching for candidates.", Type: TypeError}, nil
	}
	if len(candidates) == 0 {
		return &Result{
			Message: fmt.Sprintf("I couldn't find any US candidates matching %q. (Pro-tip: Ask for 'UK candidate' if appropriate).", query),
			Type:    TypeText,
		}, nil
	}
	return &Result{
		Message: fmt.Sprintf("I found %d US candidate(s) matching %q.", len(candidates), query),
		Type:    TypeCandidateList,
		Data:    candidates,
	}, nil
}

func (s *CandidateSkill) findUKCandidates(ctx context.Context, args map[string]any) (*Result, error) {
	query := argString(args, "name", "query", "search")
	if query == "" {
		return &Result{Message: "I need a name or search term to find candidates.", Type: TypeError}, nil
	}

	candidates, _, err := s.api.SearchCandidates(ctx, query, "UK", searchLimit, 0)
	if err != nil {
		return &Result{Message: "I encountered an error searching for UK candidates.", Type: TypeError}, nil
	}
	if len(candidates) == 0 {
		return &Result{Message: fmt.Sprintf("I couldn't find any UK candidates matching %q.", query), Type: TypeText}, nil
	}
	return &Result{
		Message: fmt.Sprintf("I found %d UK candidate(s) matching %q.", len(candidates), query),
		Type:    TypeCandidateList,
		Data:    candidates,
	}, nil
}

func (s *CandidateSkill) listCandidates(ctx context.Context, args map[string]any) (*Result, error) {
	candidates, _, err := s.api.SearchCandidates(ctx, "", "", 10, 0)
	if err != nil {
		return &Result{Message: "Failed to load candidates.", Type: TypeError}, nil
	}
	return &Result{
		Message: "Here are the most recent candidates.",
		Type:    TypeCandidateList,
		Data:    candidates,
	}, nil
}

func (s *CandidateSkill) countCandidates(ctx context.Context, args map[string]any) (*Result, error) {
	_, total, err := s.api.SearchCandidates(ctx, "", "", 1, 0)
	if err != nil {
		return &Result{Message: "Couldn't retrieve the count.", Type: TypeError}, nil
	}
	return &Result{
		Message: fmt.Sprintf("There are currently %d candidates in the US database.", total),
		Type:    TypeText,
	}, nil
}

func (s *CandidateSkill) getCandidateDetails(ctx context.Context, args map[string]any) (*Result, error) {
	id, ok := argInt(args, "candidate_id", "id")
	if !ok {
		return &Result{Message: "I need a candidate ID to look up details.", Type: TypeError}, nil
	}

	candidate, err := s.api.GetCandidate(ctx, id)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return &Result{Message: fmt.Sprintf("Candidate %d not found.", id), Type: TypeText}, nil
		}
		return &Result{Message: "Failed to load candidate details.", Type: TypeError}, nil
	}
	return &Result{
		Message: fmt.Sprintf("**%s** <%s> — %s, status: %s.", candidate.DisplayName(), candidate.Email, candidate.Country, candidate.Status),
		Type:    TypeText,
		Data:    candidate,
	}, nil
}

func (s *CandidateSkill) addCandidate(ctx context.Context, args map[string]any) (*Result, error) {
	email := argString(args, "email")
	firstName := argString(args, "first_name")
	lastName := argString(args, "last_name")
	if name := argString(args, "name"); name != "" && firstName == "" {
		parts := strings.Fields(name)
		firstName = parts[0]
		if len(parts) > 1 {
			lastName = strings.Join(parts[1:], " ")
		}
	}
	if firstName == "" || email == "" {
		return &Result{Message: "I need at least a name and an email address to add a candidate.", Type: TypeError}, nil
	}
	country := argString(args, "country")
	if country == "" {
		country = "US"
	}

	_, err := s.api.CreateCandidate(ctx, &backend.Candidate{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Country:   country,
		Status:    "new",
	})
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.IsDuplicateEmail() {
			// Look up the existing record for better feedback.
			if existing, _, searchErr := s.api.SearchCandidates(ctx, email, "", 1, 0); searchErr == nil && len(existing) > 0 {
				return &Result{
					Message: fmt.Sprintf("Candidate **%s** already exists with email %s (ID: %d).", existing[0].DisplayName(), email, existing[0].ID),
					Type:    TypeText,
				}, nil
			}
		}
		detail := ""
		if apiErr != nil {
			detail = apiErr.Detail
		}
		return &Result{Message: strings.TrimSpace("Failed to add candidate. " + detail), Type: TypeError}, nil
	}

	display := firstName
	if lastName != "" {
		display = firstName + " " + lastName
	}
	return &Result{
		Message: fmt.Sprintf("Successfully added candidate **%s** (%s).", display, email),
		Type:    TypeText,
	}, nil
}

func (s *CandidateSkill) updateCandidate(ctx context.Context, args map[string]any) (*Result, error) {
	id, ok := argInt(args, "candidate_id", "id")
	if !ok {
		return &Result{Message: "I need a candidate ID to update.", Type: TypeError}, nil
	}

	fields := make(map[string]any)
	var changes []string
	for _, field := range []string{"first_name", "last_name", "email", "phone", "country", "notes", "status"} {
		if v := argString(args, field); v != "" {
			fields[field] = v
			changes = append(changes, fmt.Sprintf("%s: %q", field, v))
		}
	}
	if len(fields) == 0 {
		return &Result{Message: "No changes made.", Type: TypeText}, nil
	}

	if err := s.api.UpdateCandidate(ctx, id, fields); err != nil {
		return &Result{Message: "Failed to update candidate.", Type: TypeError}, nil
	}
	return &Result{
		Message: fmt.Sprintf("Updated candidate %d. Changes: %s.", id, strings.Join(changes, ", ")),
		Type:    TypeText,
	}, nil
}

func (s *CandidateSkill) deleteCandidate(ctx context.Context, args map[string]any) (*Result, error) {
	query := argString(args, "name", "query")
	if query == "" {
		return &Result{Message: "I need a name to find the candidate to delete.", Type: TypeError}, nil
	}

	candidates, _, err := s.api.SearchCandidates(ctx, query, "", searchLimit, 0)
	if err != nil {
		return &Result{Message: "Failed to delete candidate.", Type: TypeError}, nil
	}
	if len(candidates) == 0 {
		return &Result{Message: fmt.Sprintf("I couldn't find any candidate named %q to delete.", query), Type: TypeText}, nil
	}
	if len(candidates) > 1 {
		return &Result{
			Message: fmt.Sprintf("I found multiple candidates matching %q. Please be more specific (e.g., provide the full name).", query),
			Type:    TypeCandidateList,
			Data:    candidates,
		}, nil
	}

	candidate := candidates[0]
	if err := s.api.DeleteCandidate(ctx, candidate.ID); err != nil {
		return &Result{Message: "Failed to delete candidate.", Type: TypeError}, nil
	}
	return &Result{
		Message: fmt.Sprintf("Successfully deleted candidate **%s** (%s).", candidate.DisplayName(), candidate.Email),
		Type:    TypeText,
	}, nil
}

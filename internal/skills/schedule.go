package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recruitops/talentclaw/internal/backend"
)

// ScheduleSkill groups the interview-scheduling tools.
type ScheduleSkill struct {
	api *backend.Client
	now func() time.Time
}

func NewScheduleSkill(api *backend.Client) *ScheduleSkill {
	return &ScheduleSkill{api: api, now: time.Now}
}

func (s *ScheduleSkill) Register(r *Registry) error {
	specs := []ToolSpec{
		{
			Name:        "schedule_interview",
			Skill:       "schedule",
			Signature:   "name, time",
			Description: "Schedule an interview for a candidate at a requested time.",
			Handler:     s.scheduleInterview,
			Gated:       true,
		},
		{
			Name:        "check_availability",
			Skill:       "schedule",
			Signature:   "start_date, end_date",
			Description: "Check available interview slots for a date range.",
			Handler:     s.checkAvailability,
		},
		{
			Name:        "list_schedule",
			Skill:       "schedule",
			Signature:   "",
			Description: "Show upcoming interviews.",
			Handler:     s.listSchedule,
		},
		{
			Name:        "delete_interview",
			Skill:       "schedule",
			Signature:   "interview_id",
			Description: "Cancel an interview by ID.",
			Handler:     s.deleteInterview,
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

func (s *ScheduleSkill) scheduleInterview(ctx context.Context, args map[string]any) (*Result, error) {
	query := argString(args, "name", "candidate", "query")
	timeString := argString(args, "time", "interview_date", "start_time", "when")
	if query == "" || timeString == "" {
		return &Result{Message: "I need a candidate name and a time to schedule an interview.", Type: TypeError}, nil
	}

	candidates, err := s.findCandidate(ctx, query)
	if err != nil {
		return &Result{Message: "Failed to schedule interview. " + err.Error(), Type: TypeError}, nil
	}
	if len(candidates) == 0 {
		return &Result{Message: fmt.Sprintf("I couldn't find %q to schedule an interview.", query), Type: TypeText}, nil
	}
	if len(candidates) > 1 {
		return &Result{
			Message: fmt.Sprintf("Found multiple people named %q. Please be specific.", query),
			Type:    TypeCandidateList,
			Data:    candidates,
		}, nil
	}
	candidate := candidates[0]

	// The note keeps the original free-text request visible even when the
	// fallback time was used.
	when, _ := parseRequestedTime(timeString, s.now())
	req := &backend.InterviewRequest{
		CandidateID:   candidate.ID,
		InterviewDate: when.Format(time.RFC3339),
		InterviewTime: when.Format("15:04"),
		Notes:         "Requested time: " + timeString,
	}

	interview, err := s.api.CreateInterview(ctx, req)
	if err != nil {
		var conflict *backend.ConflictError
		if errors.As(err, &conflict) {
			return &Result{
				Message: fmt.Sprintf("I couldn't schedule that because of a conflict: %s. (%s). Please check availability first.",
					conflict.Detail, strings.Join(conflict.Conflicts, "; ")),
				Type: TypeError,
			}, nil
		}
		return &Result{Message: "Failed to schedule interview. " + err.Error(), Type: TypeError}, nil
	}

	date := when.Format("2006-01-02")
	clock := when.Format("15:04")
	if interview != nil {
		if interview.InterviewDate != "" {
			if t, perr := time.Parse(time.RFC3339, interview.InterviewDate); perr == nil {
				date = t.Format("2006-01-02")
			}
		}
		if interview.InterviewTime != "" {
			clock = interview.InterviewTime
		}
	}
	return &Result{
		Message: fmt.Sprintf("I've scheduled an interview for **%s** on **%s at %s**.", candidate.FirstName, date, clock),
		Type:    TypeText,
		Data:    interview,
	}, nil
}

// findCandidate searches by the full query, then falls back to a first-name
// search with a local fuzzy match when a full-name search finds nothing.
func (s *ScheduleSkill) findCandidate(ctx context.Context, query string) ([]backend.Candidate, error) {
	candidates, _, err := s.api.SearchCandidates(ctx, query, "", searchLimit, 0)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 || !strings.Contains(query, " ") {
		return candidates, nil
	}

	firstName := strings.Fields(query)[0]
	potential, _, err := s.api.SearchCandidates(ctx, firstName, "", searchLimit, 0)
	if err != nil {
		return nil, err
	}
	lowerQuery := strings.ToLower(query)
	var matched []backend.Candidate
	for _, c := range potential {
		full := strings.ToLower(c.DisplayName())
		if strings.Contains(full, lowerQuery) || strings.Contains(lowerQuery, full) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

var requestedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseRequestedTime parses a free-text time expression. When nothing
// parses, the fallback is tomorrow at 10:00 and the second return is false;
// the original request stays visible in the interview note.
func parseRequestedTime(raw string, now time.Time) (time.Time, bool) {
	candidate := strings.TrimSpace(raw)
	for _, layout := range requestedTimeLayouts {
		if t, err := time.ParseInLocation(layout, candidate, now.Location()); err == nil {
			return t, true
		}
	}

	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 10, 0, 0, 0, now.Location()), false
}

func (s *ScheduleSkill) checkAvailability(ctx context.Context, args map[string]any) (*Result, error) {
	start := argString(args, "start_date", "start")
	end := argString(args, "end_date", "end")
	if start == "" || end == "" {
		return &Result{Message: "I need a start and end date to check availability.", Type: TypeError}, nil
	}

	slots, err := s.api.AvailableSlots(ctx, start, end)
	if err != nil {
		return &Result{Message: "Failed to check availability. " + err.Error(), Type: TypeError}, nil
	}
	if len(slots) == 0 {
		return &Result{Message: fmt.Sprintf("No slots available between %s and %s.", start, end), Type: TypeText}, nil
	}
	return &Result{
		Message: "**Available Slots:**\n- " + strings.Join(slots, "\n- "),
		Type:    TypeText,
		Data:    slots,
	}, nil
}

func (s *ScheduleSkill) listSchedule(ctx context.Context, args map[string]any) (*Result, error) {
	interviews, err := s.api.ListInterviews(ctx, s.now().Format(time.RFC3339), 10)
	if err != nil {
		return &Result{Message: "Could not retrieve schedule.", Type: TypeError}, nil
	}
	if len(interviews) == 0 {
		return &Result{Message: "You have no upcoming interviews scheduled.", Type: TypeText}, nil
	}

	var lines []string
	for _, iv := range interviews {
		date := iv.InterviewDate
		if t, err := time.Parse(time.RFC3339, iv.InterviewDate); err == nil {
			date = t.Format("2006-01-02")
		}
		clock := iv.InterviewTime
		if clock == "" {
			clock = "TBD"
		}
		name := "Unknown Candidate"
		if iv.Candidate != nil {
			name = iv.Candidate.DisplayName()
		}
		lines = append(lines, fmt.Sprintf("- **%s @ %s**: %s (%s)", date, clock, name, strings.ToUpper(iv.Status)))
	}
	return &Result{
		Message: "**Upcoming Interviews:**\n" + strings.Join(lines, "\n"),
		Type:    TypeText,
		Data:    interviews,
	}, nil
}

func (s *ScheduleSkill) deleteInterview(ctx context.Context, args map[string]any) (*Result, error) {
	id, ok := argInt(args, "interview_id", "id")
	if !ok {
		return &Result{Message: "I need an interview ID to cancel.", Type: TypeError}, nil
	}

	if err := s.api.DeleteInterview(ctx, id); err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return &Result{Message: fmt.Sprintf("Interview %d not found.", id), Type: TypeText}, nil
		}
		return &Result{Message: "Failed to cancel the interview.", Type: TypeError}, nil
	}
	return &Result{Message: fmt.Sprintf("Deleted interview %d.", id), Type: TypeText}, nil
}

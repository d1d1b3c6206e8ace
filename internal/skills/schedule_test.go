package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/recruitops/talentclaw/internal/backend"
)

func TestParseRequestedTime(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)

	parsed, ok := parseRequestedTime("2026-09-03T14:30", now)
	if !ok {
		t.Fatal("ISO datetime should parse")
	}
	if parsed.Hour() != 14 || parsed.Minute() != 30 {
		t.Errorf("parsed = %v", parsed)
	}

	parsed, ok = parseRequestedTime("2026-09-03 14:30", now)
	if !ok || parsed.Day() != 3 {
		t.Errorf("space-separated datetime: ok=%v parsed=%v", ok, parsed)
	}

	fallback, ok := parseRequestedTime("next friday afternoon-ish", now)
	if ok {
		t.Error("free text should not parse")
	}
	if fallback.Day() != 31 || fallback.Hour() != 10 || fallback.Minute() != 0 {
		t.Errorf("fallback = %v, want tomorrow 10:00", fallback)
	}
}

func TestScheduleInterviewFallbackKeepsRequestedTimeNote(t *testing.T) {
	var captured backend.InterviewRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/candidates":
			candidateJSON(w, []backend.Candidate{{ID: 5, FirstName: "Ada", LastName: "Lovelace", Email: "ada@a.com"}})
		case r.URL.Path == "/api/interviews" && r.Method == http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Fatalf("decode: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]any{"interview": backend.Interview{
				ID: 1, CandidateID: 5, InterviewDate: captured.InterviewDate, InterviewTime: captured.InterviewTime,
			}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	skill := NewScheduleSkill(backend.NewClient(srv.URL))
	res, err := skill.scheduleInterview(context.Background(), map[string]any{"name": "Ada Lovelace", "time": "sometime soonish"})
	if err != nil {
		t.Fatalf("scheduleInterview: %v", err)
	}
	if res.Type != TypeText || !strings.Contains(res.Message, "I've scheduled an interview for **Ada**") {
		t.Errorf("res = %+v", res)
	}
	if captured.Notes != "Requested time: sometime soonish" {
		t.Errorf("notes = %q", captured.Notes)
	}
	if captured.InterviewTime != "10:00" {
		t.Errorf("fallback time = %q, want 10:00", captured.InterviewTime)
	}
}

func TestScheduleInterviewConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/candidates":
			candidateJSON(w, []backend.Candidate{{ID: 5, FirstName: "Ada", Email: "ada@a.com"}})
		case r.URL.Path == "/api/interviews":
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"error":     "Scheduling conflict detected",
				"conflicts": []string{"Candidate has another interview at 2026-09-01 10:00"},
			})
		}
	}))
	defer srv.Close()

	skill := NewScheduleSkill(backend.NewClient(srv.URL))
	res, err := skill.scheduleInterview(context.Background(), map[string]any{"name": "Ada", "time": "2026-09-01T10:00"})
	if err != nil {
		t.Fatalf("scheduleInterview: %v", err)
	}
	if res.Type != TypeError {
		t.Errorf("type = %q, want error", res.Type)
	}
	if !strings.Contains(res.Message, "conflict") || !strings.Contains(res.Message, "2026-09-01 10:00") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestScheduleInterviewDisambiguates(t *testing.T) {
	interviewCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/interviews" {
			interviewCalls++
			return
		}
		candidateJSON(w, []backend.Candidate{
			{ID: 1, FirstName: "Ada", LastName: "Lovelace", Email: "a@a.com"},
			{ID: 2, FirstName: "Ada", LastName: "Byron", Email: "b@b.com"},
		})
	}))
	defer srv.Close()

	skill := NewScheduleSkill(backend.NewClient(srv.URL))
	res, err := skill.scheduleInterview(context.Background(), map[string]any{"name": "Ada", "time": "2026-09-01T10:00"})
	if err != nil {
		t.Fatalf("scheduleInterview: %v", err)
	}
	if res.Type != TypeCandidateList {
		t.Errorf("type = %q", res.Type)
	}
	if interviewCalls != 0 {
		t.Errorf("interview calls = %d, want 0", interviewCalls)
	}
}

func TestListScheduleEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"interviews": []backend.Interview{}})
	}))
	defer srv.Close()

	skill := NewScheduleSkill(backend.NewClient(srv.URL))
	res, err := skill.listSchedule(context.Background(), nil)
	if err != nil {
		t.Fatalf("listSchedule: %v", err)
	}
	if res.Message != "You have no upcoming interviews scheduled." {
		t.Errorf("message = %q", res.Message)
	}
}

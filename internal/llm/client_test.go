package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/recruitops/talentclaw/internal/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = baseURL
	return cfg
}

func completionResponse(envelope string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": envelope}},
		},
	}
}

func TestCompleteStripsMetaAndPrependsSystemPrompt(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []Turn `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(completionResponse(`{"thought":"simple","tool":null,"args":{},"final_response":"Hello!"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), "- search_candidates(query)")
	reply, err := client.Complete(context.Background(), []Turn{{Role: "user", Content: "hi"}}, "openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.FinalResponse != "Hello!" {
		t.Errorf("final_response = %q", reply.FinalResponse)
	}
	if captured.Model != "openai/gpt-4o-mini" {
		t.Errorf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[0].Content, "AI Commander") {
		t.Error("system prompt missing")
	}
	if !strings.Contains(captured.Messages[0].Content, "search_candidates") {
		t.Error("tool catalog missing from system prompt")
	}
	if !strings.Contains(captured.Messages[0].Content, "Current Time:") {
		t.Error("current time missing from system prompt")
	}
}

func TestCompleteToolReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionResponse("```json\n{\"thought\":\"look her up\",\"tool\":\"find_candidates\",\"args\":{\"name\":\"Jane\"},\"final_response\":null}\n```"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), "")
	reply, err := client.Complete(context.Background(), []Turn{{Role: "user", Content: "find jane"}}, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Tool != "find_candidates" {
		t.Errorf("tool = %q", reply.Tool)
	}
	if name, _ := reply.Args["name"].(string); name != "Jane" {
		t.Errorf("args = %#v", reply.Args)
	}
}

func TestCompleteHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), "")
	_, err := client.Complete(context.Background(), nil, "")
	var cerr *CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompletionError, got %v", err)
	}
	if !strings.Contains(cerr.Error(), "429") {
		t.Errorf("error = %v", cerr)
	}
}

func TestParseReplyMalformed(t *testing.T) {
	if _, err := ParseReply("not json at all"); err == nil {
		t.Error("expected error for non-JSON content")
	}
	if _, err := ParseReply(`{"thought":"hm","tool":null,"args":{},"final_response":null}`); err == nil {
		t.Error("expected error when neither tool nor final_response is set")
	}
}

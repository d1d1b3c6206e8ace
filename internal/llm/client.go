package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/recruitops/talentclaw/internal/config"
)

const systemPromptTemplate = `You are the AI Commander for the Email Campaign System.
You have direct access to the recruiting database through system tools.
Your goal is to help the user manage candidates, interviews, and emails.

## CAPABILITIES
- Manage Candidates: Search, Add, Delete, Update.
- Manage Schedule: Check availability, Book interviews, Cancel interviews.
- Manage Emails: Draft, Edit, Send.

## RULES
1. **Be Precise**: Use the provided tools. Do not hallucinate data.
2. **Be Concise**: Keep responses short and professional.
3. **Safety**: If a user asks to delete something, verify the name/ID first.

## OUTPUT FORMAT
Reply with a single JSON object and nothing else:
{"thought": "<your reasoning>", "tool": "<tool name or null>", "args": {<arguments>}, "final_response": "<answer text or null>"}
Set "tool" when you need a tool; set "final_response" when you can answer directly. Never set both.

## AVAILABLE TOOLS
%s

Current Time: %s`

// Turn is one role+content pair sent upstream. Internal message metadata is
// never serialized into the model request.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the structured envelope the model returns. Exactly one of Tool
// and FinalResponse is expected to be set.
type Reply struct {
	Thought       string         `json:"thought"`
	Tool          string         `json:"tool"`
	Args          map[string]any `json:"args"`
	FinalResponse string         `json:"final_response"`
}

// CompletionError marks an upstream failure (network, HTTP, or an
// unparsable envelope). The orchestrator turns it into an error message in
// the conversation instead of crashing the session.
type CompletionError struct {
	Message string
	Err     error
}

func (e *CompletionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CompletionError) Unwrap() error { return e.Err }

type Client interface {
	Complete(ctx context.Context, history []Turn, model string) (*Reply, error)
}

type httpClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	toolCatalog string
	httpc       *http.Client
	now         func() time.Time
}

func NewClient(cfg *config.Config, toolCatalog string) Client {
	timeout := time.Duration(cfg.Agent.RequestTimeoutSeconds) * time.Second
	return &httpClient{
		apiKey:      cfg.Provider.APIKey,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/"),
		model:       cfg.Agent.Model,
		maxTokens:   cfg.Agent.MaxTokens,
		temperature: cfg.Agent.Temperature,
		toolCatalog: toolCatalog,
		httpc:       &http.Client{Timeout: timeout},
		now:         time.Now,
	}
}

func (c *httpClient) Complete(ctx context.Context, history []Turn, model string) (*Reply, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, &CompletionError{Message: "missing provider api key"}
	}
	if c.baseURL == "" {
		return nil, &CompletionError{Message: "missing provider base url"}
	}
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, &CompletionError{Message: "missing model id"}
	}

	system := fmt.Sprintf(systemPromptTemplate, c.toolCatalog, c.now().Format("2006-01-02 15:04:05"))
	messages := make([]Turn, 0, len(history)+1)
	messages = append(messages, Turn{Role: "system", Content: system})
	messages = append(messages, history...)

	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"response_format": map[string]string{
			"type": "json_object",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &CompletionError{Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &CompletionError{Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &CompletionError{Message: "completion request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CompletionError{Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CompletionError{Message: fmt.Sprintf("completion http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, &CompletionError{Message: "decode response", Err: err}
	}
	if len(decoded.Choices) == 0 {
		return nil, &CompletionError{Message: "empty choices in response"}
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, &CompletionError{Message: "empty content in response"}
	}

	return ParseReply(content)
}

// ParseReply decodes the model's JSON envelope, tolerating a markdown code
// fence around it.
func ParseReply(content string) (*Reply, error) {
	content = stripCodeFence(content)

	var reply Reply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, &CompletionError{Message: "malformed model reply", Err: err}
	}
	if reply.Tool == "" && reply.FinalResponse == "" {
		return nil, &CompletionError{Message: "model reply names neither a tool nor a final response"}
	}
	return &reply, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a typed wrapper around the recruiting API. Every method maps to
// one HTTP call; skills compose them into multi-step operations.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SearchCandidates queries /api/candidates. Empty query/country are omitted;
// limit<=0 means server default. Returns matches plus the server-side total.
func (c *Client) SearchCandidates(ctx context.Context, query, country string, limit, offset int) ([]Candidate, int, error) {
	params := url.Values{}
	if query != "" {
		params.Set("search", query)
	}
	if country != "" {
		params.Set("country", country)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	var out struct {
		Candidates []Candidate `json:"candidates"`
		Total      int         `json:"total"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/candidates?"+params.Encode(), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Candidates, out.Total, nil
}

func (c *Client) GetCandidate(ctx context.Context, id int) (*Candidate, error) {
	var out Candidate
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/candidates/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateCandidate(ctx context.Context, cand *Candidate) (*Candidate, error) {
	var out struct {
		Candidate *Candidate `json:"candidate"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/candidates", cand, &out); err != nil {
		return nil, err
	}
	if out.Candidate == nil {
		return cand, nil
	}
	return out.Candidate, nil
}

func (c *Client) UpdateCandidate(ctx context.Context, id int, fields map[string]any) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/candidates/%d", id), fields, nil)
}

func (c *Client) DeleteCandidate(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/candidates/%d", id), nil, nil)
}

// ListInterviews fetches interviews starting at startDate (ISO-8601, empty
// for all), capped at limit.
func (c *Client) ListInterviews(ctx context.Context, startDate string, limit int) ([]Interview, error) {
	params := url.Values{}
	if startDate != "" {
		params.Set("start_date", startDate)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var out struct {
		Interviews []Interview `json:"interviews"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/interviews?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Interviews, nil
}

// CreateInterview books an interview. A scheduling conflict comes back as
// *ConflictError with the occupied windows listed.
func (c *Client) CreateInterview(ctx context.Context, req *InterviewRequest) (*Interview, error) {
	var out struct {
		Interview *Interview `json:"interview"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/interviews", req, &out); err != nil {
		return nil, err
	}
	return out.Interview, nil
}

func (c *Client) DeleteInterview(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/interviews/%d", id), nil, nil)
}

// AvailableSlots returns open interview slots as ISO-8601 timestamps.
func (c *Client) AvailableSlots(ctx context.Context, startDate, endDate string) ([]string, error) {
	params := url.Values{}
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)

	var out struct {
		Slots []string `json:"slots"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/schedule/available-slots?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

func (c *Client) ListDrafts(ctx context.Context) ([]Draft, error) {
	var out struct {
		Drafts []Draft `json:"drafts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/drafts", nil, &out); err != nil {
		return nil, err
	}
	return out.Drafts, nil
}

func (c *Client) CreateDraft(ctx context.Context, draft *Draft) (*Draft, error) {
	var out struct {
		Draft *Draft `json:"draft"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/drafts", draft, &out); err != nil {
		return nil, err
	}
	if out.Draft == nil {
		return draft, nil
	}
	return out.Draft, nil
}

func (c *Client) UpdateDraft(ctx context.Context, id int, fields map[string]any) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/drafts/%d", id), fields, nil)
}

func (c *Client) DeleteDraft(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/drafts/%d", id), nil, nil)
}

// SendEmails kicks off an async campaign and returns its task id for
// status polling.
func (c *Client) SendEmails(ctx context.Context, req *SendEmailsRequest) (string, error) {
	var out SendEmailsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/send-emails", req, &out); err != nil {
		return "", err
	}
	if !out.Success || out.TaskID == "" {
		return "", fmt.Errorf("send-emails accepted but no task id returned")
	}
	return out.TaskID, nil
}

func (c *Client) CampaignStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var out TaskStatus
	path := "/api/campaigns/" + url.PathEscape(taskID) + "/status"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var out Settings
	if err := c.doJSON(ctx, http.MethodGet, "/api/settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("missing backend base url")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	var decoded struct {
		Error     string   `json:"error"`
		Conflicts []string `json:"conflicts"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != "" {
		if strings.Contains(strings.ToLower(decoded.Error), "conflict") {
			return &ConflictError{Detail: decoded.Error, Conflicts: decoded.Conflicts}
		}
		return &APIError{Status: status, Detail: decoded.Error}
	}
	return &APIError{Status: status, Detail: strings.TrimSpace(string(body))}
}

// Package backend is the HTTP client for the remote first-PR coaching
// service. Every operation is one POST with a JSON body and a JSON reply;
// the service's internals are opaque to this gateway.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/confusedguy/firstpr-coach/internal/model/chat"
)

// APIError reports a failed exchange. Reason carries the backend's own
// explanation when it provided one, otherwise a plain HTTP status
// description.
type APIError struct {
	Status int
	Reason string
}

func (e *APIError) Error() string {
	return e.Reason
}

// Client talks to one coaching backend instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the backend at baseURL. timeout bounds each
// exchange end to end.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type initRequest struct {
	Skills []string `json:"skills"`
}

type recommendRequest struct {
	RepoURL   string `json:"repo_url"`
	MaxIssues int    `json:"max_issues"`
}

type recommendResponse struct {
	Message string `json:"message"`
}

type planRequest struct {
	RepoURL     string `json:"repo_url"`
	IssueURL    string `json:"issue_url"`
	Constraints string `json:"constraints"`
}

type planResponse struct {
	Plan string `json:"plan"`
}

type chatRequest struct {
	RepoURL  string         `json:"repo_url"`
	IssueURL string         `json:"issue_url"`
	History  []chat.Message `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Init registers the user's skill list with the backend.
func (c *Client) Init(ctx context.Context, skills []string) error {
	return c.post(ctx, "/init", initRequest{Skills: skills}, nil)
}

// Recommend asks for beginner-friendly issues in the repository. The returned
// message is display text chosen by the backend.
func (c *Client) Recommend(ctx context.Context, repoURL string, maxIssues int) (string, error) {
	var res recommendResponse
	if err := c.post(ctx, "/recommend", recommendRequest{RepoURL: repoURL, MaxIssues: maxIssues}, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

// Plan asks for a step-by-step plan for one issue.
func (c *Client) Plan(ctx context.Context, repoURL, issueURL, constraints string) (string, error) {
	var res planResponse
	if err := c.post(ctx, "/plan", planRequest{RepoURL: repoURL, IssueURL: issueURL, Constraints: constraints}, &res); err != nil {
		return "", err
	}
	return res.Plan, nil
}

// Chat continues the conversation about the active issue. history is the
// trailing transcript window, oldest first.
func (c *Client) Chat(ctx context.Context, repoURL, issueURL string, history []chat.Message) (string, error) {
	var res chatResponse
	if err := c.post(ctx, "/chat", chatRequest{RepoURL: repoURL, IssueURL: issueURL, History: history}, &res); err != nil {
		return "", err
	}
	return res.Reply, nil
}

// post runs one exchange. The response body is decoded leniently: a body
// that is not JSON is ignored rather than treated as a failure, because the
// status code alone decides success.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw := json.RawMessage{}
	_ = json.NewDecoder(resp.Body).Decode(&raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Reason: failureReason(raw, resp.StatusCode)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// failureReason prefers the backend's detail field, then message, then a
// generic status description.
func failureReason(raw json.RawMessage, status int) string {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	if body.Detail != "" {
		return body.Detail
	}
	if body.Message != "" {
		return body.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}

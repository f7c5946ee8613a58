package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultServerURL is where a locally started agent server listens.
const DefaultServerURL = "http://127.0.0.1:4096"

// HTTPClient implements Client against the agent server's REST + SSE API.
// Requests carry no client-side timeout; callers bound them with ctx.
type HTTPClient struct {
	baseURL      string
	extraHeaders map[string]string
	httpClient   *http.Client
}

// NewHTTPClient creates a client for the server at baseURL.
func NewHTTPClient(baseURL string, extraHeaders map[string]string) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		extraHeaders: extraHeaders,
		httpClient:   &http.Client{},
	}
}

// BaseURL returns the server address the client talks to.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

// CreateSession creates a server session and returns its id.
func (c *HTTPClient) CreateSession(ctx context.Context, title string) (string, error) {
	var out createSessionResponse
	if err := c.postJSON(ctx, "/session", createSessionRequest{Title: title}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create session: empty id in response")
	}
	return out.ID, nil
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type promptBody struct {
	Parts []textPart `json:"parts"`
	Agent string     `json:"agent,omitempty"`
	Model *Model     `json:"model,omitempty"`
}

// Prompt submits a text turn to a session.
func (c *HTTPClient) Prompt(ctx context.Context, req PromptRequest) error {
	body := promptBody{
		Parts: []textPart{{Type: "text", Text: req.Text}},
		Agent: req.Agent,
		Model: req.Model,
	}
	return c.postJSON(ctx, "/session/"+url.PathEscape(req.SessionID)+"/message", body, nil)
}

type permissionReplyBody struct {
	Reply PermissionReply `json:"reply"`
}

// ReplyPermission answers a pending permission request.
func (c *HTTPClient) ReplyPermission(ctx context.Context, requestID string, reply PermissionReply) error {
	return c.postJSON(ctx, "/permission/"+url.PathEscape(requestID)+"/reply", permissionReplyBody{Reply: reply}, nil)
}

// Subscribe opens the server's event stream.
func (c *HTTPClient) Subscribe(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Method:     http.MethodGet,
			Path:       "/event",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	slog.Debug("backend: event stream opened", "url", c.baseURL+"/event")
	return newSSEStream(resp.Body), nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		body := strings.TrimSpace(string(raw))
		if len(body) > 300 {
			body = body[:300]
		}
		return &APIError{Method: http.MethodPost, Path: path, StatusCode: resp.StatusCode, Body: body}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}
}

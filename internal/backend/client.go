package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Client is the HTTP client for the external session backend.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}
	return responseBody, nil
}

// StartSession issues POST /sessions/start.
func (c *Client) StartSession(ctx context.Context, req StartSessionRequest) (*StartSessionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal start request: %w", err)
	}

	body, err := c.makeRequest(ctx, http.MethodPost, "/sessions/start", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var resp StartSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal start response: %w", err)
	}
	return &resp, nil
}

// StopSession issues PUT /sessions/{id}/stop.
func (c *Client) StopSession(ctx context.Context, sessionID uuid.UUID) (*StopSessionResponse, error) {
	body, err := c.makeRequest(ctx, http.MethodPut, fmt.Sprintf("/sessions/%s/stop", sessionID), bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}

	var resp StopSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stop response: %w", err)
	}
	return &resp, nil
}

// ActiveSessions issues GET /sessions/active?scope=... and returns the
// authoritative session list for the scope.
func (c *Client) ActiveSessions(ctx context.Context, scope string) ([]ActiveSession, error) {
	body, err := c.makeRequest(ctx, http.MethodGet, "/sessions/active?scope="+url.QueryEscape(scope), nil)
	if err != nil {
		return nil, err
	}

	var sessions []ActiveSession
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active sessions: %w", err)
	}
	return sessions, nil
}

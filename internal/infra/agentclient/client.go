// Package agentclient delivers prompts to agents over HTTP. The wire
// request carries only the agent id and the prompt text, so a probe is
// indistinguishable from ordinary traffic on this path.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aci/internal/usecase"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ usecase.AgentClient = (*Client)(nil)

func New(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("agent base URL required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

type askRequest struct {
	AgentID string `json:"agent_id"`
	Prompt  string `json:"prompt"`
}

type askResponse struct {
	Response string `json:"response"`
}

func (c *Client) Ask(ctx context.Context, agentID, prompt string) (string, error) {
	body, err := json.Marshal(askRequest{AgentID: agentID, Prompt: prompt})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/agents/%s/ask", c.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("agent call returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var payload askResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Plain-text agent endpoints are accepted as-is.
		return strings.TrimSpace(string(raw)), nil
	}
	return payload.Response, nil
}

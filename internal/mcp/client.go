package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DevRickLin/chat-relay/internal/api"
)

// Client is the HTTP client for the relay's admin API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new admin API client. An empty token sends no
// Authorization header.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetContext fetches the context window the relay would send for a conversation
func (c *Client) GetContext(ctx context.Context, conversationID string, limit int) (*api.ContextResponse, error) {
	var result api.ContextResponse
	if err := c.get(ctx, conversationPath(conversationID, "context", limit), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetHistory fetches stored messages, oldest first
func (c *Client) GetHistory(ctx context.Context, conversationID string, limit int) (*api.MessagesResponse, error) {
	var result api.MessagesResponse
	if err := c.get(ctx, conversationPath(conversationID, "messages", limit), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBuffer fetches the pending buffer without draining it
func (c *Client) GetBuffer(ctx context.Context, conversationID string) (*api.BufferResponse, error) {
	var result api.BufferResponse
	if err := c.get(ctx, conversationPath(conversationID, "buffer", 0), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func conversationPath(conversationID, view string, limit int) string {
	path := fmt.Sprintf("/api/conversations/%s/%s", url.PathEscape(conversationID), view)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	return path
}

// ============ HTTP Helpers ============

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

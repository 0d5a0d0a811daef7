package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

// Handler implements the MCP tools on top of the admin API client
type Handler struct {
	client *Client
}

// NewHandler creates a new MCP handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// ConversationInput selects a conversation and how many messages to look at
type ConversationInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The conversation id, e.g. telegram:group:-1001234 or feishu:user:ou_abc"`
	Limit          int    `json:"limit,omitempty" jsonschema:"Maximum number of messages (defaults to the relay's context window size)"`
}

// BufferInput selects a conversation
type BufferInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The conversation id, e.g. telegram:group:-1001234"`
}

// ContextOutput is the context window of a conversation
type ContextOutput struct {
	Context []domain.ChatMessage `json:"context,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// HistoryMessage is one stored message; times are RFC 3339 strings
type HistoryMessage struct {
	ID         string `json:"id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name,omitempty"`
	Content    string `json:"content"`
	Origin     string `json:"origin"`
	Timestamp  string `json:"timestamp"`
}

// HistoryOutput is the stored history of a conversation
type HistoryOutput struct {
	Messages []HistoryMessage `json:"messages,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// PendingEntry is one buffered message
type PendingEntry struct {
	MessageID string `json:"message_id"`
	AuthorID  string `json:"author_id,omitempty"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// BufferOutput is the pending buffer of a conversation
type BufferOutput struct {
	Size    int            `json:"size"`
	Pending []PendingEntry `json:"pending,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// GetContext handles relay_get_context
func (h *Handler) GetContext(ctx context.Context, req *mcpsdk.CallToolRequest, input ConversationInput) (*mcpsdk.CallToolResult, ContextOutput, error) {
	if input.ConversationID == "" {
		return nil, ContextOutput{Error: "conversation_id is required"}, nil
	}
	resp, err := h.client.GetContext(ctx, input.ConversationID, input.Limit)
	if err != nil {
		return nil, ContextOutput{Error: err.Error()}, nil
	}
	return nil, ContextOutput{Context: resp.Context}, nil
}

// GetHistory handles relay_get_history
func (h *Handler) GetHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input ConversationInput) (*mcpsdk.CallToolResult, HistoryOutput, error) {
	if input.ConversationID == "" {
		return nil, HistoryOutput{Error: "conversation_id is required"}, nil
	}
	resp, err := h.client.GetHistory(ctx, input.ConversationID, input.Limit)
	if err != nil {
		return nil, HistoryOutput{Error: err.Error()}, nil
	}
	messages := make([]HistoryMessage, len(resp.Messages))
	for i, m := range resp.Messages {
		messages[i] = HistoryMessage{
			ID:         m.ID,
			AuthorID:   m.AuthorID,
			AuthorName: m.AuthorName,
			Content:    m.Content,
			Origin:     m.Origin,
			Timestamp:  formatTime(m.Timestamp),
		}
	}
	return nil, HistoryOutput{Messages: messages}, nil
}

// GetBuffer handles relay_get_buffer
func (h *Handler) GetBuffer(ctx context.Context, req *mcpsdk.CallToolRequest, input BufferInput) (*mcpsdk.CallToolResult, BufferOutput, error) {
	if input.ConversationID == "" {
		return nil, BufferOutput{Error: "conversation_id is required"}, nil
	}
	resp, err := h.client.GetBuffer(ctx, input.ConversationID)
	if err != nil {
		return nil, BufferOutput{Error: err.Error()}, nil
	}
	pending := make([]PendingEntry, len(resp.Pending))
	for i, p := range resp.Pending {
		pending[i] = PendingEntry{
			MessageID: p.MessageID,
			AuthorID:  p.AuthorID,
			Content:   p.Content,
			CreatedAt: formatTime(p.CreatedAt),
		}
	}
	return nil, BufferOutput{Size: resp.Size, Pending: pending}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

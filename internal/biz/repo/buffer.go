package repo

import (
	"context"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

// BufferRepo is the durable per-conversation pending-message buffer
type BufferRepo interface {
	// Record appends a message to the conversation's buffer, creating it if
	// needed, and returns the buffer size after the append. A message id
	// recorded before, even one already drained, is not added again.
	Record(ctx context.Context, conversationID string, msg domain.PendingMessage) (int, error)

	// Drain atomically reads and deletes the buffer. Of two concurrent drains
	// on the same conversation, at most one observes the contents.
	Drain(ctx context.Context, conversationID string) ([]domain.PendingMessage, error)

	// Peek reads the buffer without changing it
	Peek(ctx context.Context, conversationID string) ([]domain.PendingMessage, error)
}

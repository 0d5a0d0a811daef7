package repo

import (
	"context"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

// ConversationRepo is the append-only per-conversation message log
type ConversationRepo interface {
	// Append stores a message. Timestamps are kept strictly increasing per
	// conversation. Appending a message ID that is already stored is a no-op
	// and reports inserted=false (platform redelivery).
	Append(ctx context.Context, msg *domain.Message) (inserted bool, err error)

	// QueryRecent returns up to limit messages ordered by timestamp descending
	QueryRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)

	Close() error
}

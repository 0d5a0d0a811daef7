package usecase

import (
	"context"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/repo"
)

// BufferUsecase handles the pending-message buffer
type BufferUsecase struct {
	bufferRepo repo.BufferRepo
}

// NewBufferUsecase creates a new buffer usecase
func NewBufferUsecase(bufferRepo repo.BufferRepo) *BufferUsecase {
	return &BufferUsecase{bufferRepo: bufferRepo}
}

// Record adds a stored user message to its conversation's buffer and
// returns the buffer size
func (uc *BufferUsecase) Record(ctx context.Context, msg *domain.Message) (int, error) {
	return uc.bufferRepo.Record(ctx, msg.ConversationID, domain.PendingMessage{
		Role:      domain.RoleFor(msg.Origin),
		Content:   msg.Content.String(),
		AuthorID:  msg.AuthorID,
		MessageID: msg.ID,
		CreatedAt: msg.Timestamp,
	})
}

// Drain empties the conversation's buffer. An empty result means there was
// nothing pending or another invocation drained it first.
func (uc *BufferUsecase) Drain(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	return uc.bufferRepo.Drain(ctx, conversationID)
}

// Peek reads the buffer without draining it
func (uc *BufferUsecase) Peek(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	return uc.bufferRepo.Peek(ctx, conversationID)
}

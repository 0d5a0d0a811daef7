package repo

import (
	"context"
	"errors"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

var (
	// ErrReasoningFailed wraps provider errors (quota, transport, timeout)
	ErrReasoningFailed = errors.New("reasoning failed")

	// ErrMalformedResponse is returned when the provider answers without usable text
	ErrMalformedResponse = errors.New("malformed reasoning response")
)

// ReasoningRepo is the chat-completion collaborator
type ReasoningRepo interface {
	// Complete returns the generated text for an ordered, role-tagged context
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

package repo

import (
	"context"
	"errors"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

// ErrUnknownPlatform is returned when no reply sink serves a handle's platform
var ErrUnknownPlatform = errors.New("unknown platform")

// ReplyRepo delivers text back into the originating conversation
type ReplyRepo interface {
	Reply(ctx context.Context, handle domain.ReplyHandle, text string) error
}

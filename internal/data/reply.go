package data

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/repo"
	"github.com/DevRickLin/chat-relay/internal/infra/telegram"
	"github.com/DevRickLin/chat-relay/internal/metrics"
)

// FeishuReplier is the part of the Feishu client the reply sink needs
type FeishuReplier interface {
	Reply(ctx context.Context, messageID, text string) error
}

// TelegramReplier is the part of the Telegram client the reply sink needs
type TelegramReplier interface {
	Reply(ctx context.Context, chatID int64, messageID int, text string) error
}

// replyRouter implements repo.ReplyRepo by dispatching on the handle's platform
type replyRouter struct {
	feishu   FeishuReplier
	telegram TelegramReplier
	log      zerolog.Logger
}

// NewReplyRouter creates a reply sink. Either platform may be nil when
// it is not configured.
func NewReplyRouter(feishu FeishuReplier, telegram TelegramReplier, log zerolog.Logger) repo.ReplyRepo {
	return &replyRouter{feishu: feishu, telegram: telegram, log: log}
}

// Reply implements repo.ReplyRepo
func (r *replyRouter) Reply(ctx context.Context, handle domain.ReplyHandle, text string) error {
	err := r.reply(ctx, handle, text)
	if err != nil {
		metrics.ReplyDeliveryErrors.WithLabelValues(string(handle.Platform)).Inc()
		return err
	}
	r.log.Debug().Str("platform", string(handle.Platform)).Str("chat_id", handle.ChatID).Msg("reply delivered")
	return nil
}

func (r *replyRouter) reply(ctx context.Context, handle domain.ReplyHandle, text string) error {
	switch handle.Platform {
	case domain.PlatformFeishu:
		if r.feishu == nil {
			return fmt.Errorf("%w: feishu not configured", repo.ErrUnknownPlatform)
		}
		return r.feishu.Reply(ctx, handle.MessageID, text)
	case domain.PlatformTelegram:
		if r.telegram == nil {
			return fmt.Errorf("%w: telegram not configured", repo.ErrUnknownPlatform)
		}
		chatID, err := telegram.ParseChatID(handle.ChatID)
		if err != nil {
			return err
		}
		messageID, err := strconv.Atoi(handle.MessageID)
		if err != nil {
			return fmt.Errorf("invalid telegram message id %q: %w", handle.MessageID, err)
		}
		return r.telegram.Reply(ctx, chatID, messageID, text)
	default:
		return fmt.Errorf("%w: %q", repo.ErrUnknownPlatform, handle.Platform)
	}
}

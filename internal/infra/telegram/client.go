package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Chat types reported by Telegram
const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
	ChatTypeChannel    = "channel"
)

// secretHeader carries the secret_token registered with setWebhook
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Message represents a received Telegram message
type Message struct {
	ChatID     int64
	ChatType   string
	ChatTitle  string
	MessageID  int
	SenderID   int64
	SenderName string
	Text       string
	Payload    json.RawMessage // Structured content for non-text messages
	Date       time.Time
}

// MessageHandler is the callback for received messages
type MessageHandler func(ctx context.Context, msg *Message) error

// Config contains bot credentials
type Config struct {
	Token         string
	WebhookSecret string
	APIEndpoint   string // Defaults to tgbotapi.APIEndpoint
}

// Client is the Telegram Bot API client
type Client struct {
	bot       *tgbotapi.BotAPI
	secret    string
	onMessage MessageHandler
	log       zerolog.Logger
}

// NewClient creates a new Telegram client. It calls getMe to learn the
// bot's own identity.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("bot", bot.Self.UserName).Msg("telegram bot authorized")
	return &Client{bot: bot, secret: cfg.WebhookSecret, log: log}, nil
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// BotID returns the bot's own user id
func (c *Client) BotID() int64 {
	return c.bot.Self.ID
}

// RegisterWebhook points Telegram at url, passing the configured secret
func (c *Client) RegisterWebhook(url string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", c.secret)

	resp, err := c.bot.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("set webhook failed: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("set webhook error: %s", resp.Description)
	}
	c.log.Info().Str("url", url).Msg("webhook registered")
	return nil
}

// WebhookHandler returns the handler Telegram posts updates to. A handler
// error answers 500 so Telegram redelivers the update.
func (c *Client) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(c.secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}

		msg := c.ParseUpdate(&update)
		if msg == nil || c.onMessage == nil {
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := c.onMessage(r.Context(), msg); err != nil {
			c.log.Error().Err(err).Int64("chat_id", msg.ChatID).Int("message_id", msg.MessageID).Msg("failed to handle update")
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ParseUpdate converts an update into a Message. It returns nil for updates
// that must be ignored: edits, service messages, unsupported content and
// anything the bot itself sent.
func (c *Client) ParseUpdate(update *tgbotapi.Update) *Message {
	raw := update.Message
	if raw == nil {
		raw = update.ChannelPost
	}
	if raw == nil || raw.Chat == nil {
		return nil
	}
	if raw.From != nil && raw.From.ID == c.bot.Self.ID {
		return nil
	}

	msg := &Message{
		ChatID:    raw.Chat.ID,
		ChatType:  raw.Chat.Type,
		ChatTitle: raw.Chat.Title,
		MessageID: raw.MessageID,
		Date:      time.Unix(int64(raw.Date), 0),
	}

	switch {
	case raw.From != nil:
		msg.SenderID = raw.From.ID
		msg.SenderName = raw.From.String()
	case raw.SenderChat != nil:
		msg.SenderID = raw.SenderChat.ID
		msg.SenderName = raw.SenderChat.Title
	default:
		msg.SenderID = raw.Chat.ID
		msg.SenderName = raw.Chat.Title
	}

	switch {
	case raw.Text != "":
		msg.Text = raw.Text
	case raw.Location != nil:
		msg.Payload = marshalPayload(map[string]any{
			"type":      "location",
			"latitude":  raw.Location.Latitude,
			"longitude": raw.Location.Longitude,
		})
	case raw.Sticker != nil:
		msg.Payload = marshalPayload(map[string]any{
			"type":  "sticker",
			"emoji": raw.Sticker.Emoji,
		})
	case len(raw.Photo) > 0:
		msg.Payload = marshalPayload(map[string]any{
			"type":    "photo",
			"caption": raw.Caption,
		})
	default:
		return nil
	}

	c.log.Debug().
		Int64("chat_id", msg.ChatID).
		Str("chat_type", msg.ChatType).
		Int("message_id", msg.MessageID).
		Msg("received message")
	return msg
}

func marshalPayload(v map[string]any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

// Reply answers a message in its chat
func (c *Client) Reply(ctx context.Context, chatID int64, messageID int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = messageID
	return c.send(ctx, msg)
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, tgbotapi.NewMessage(chatID, text))
}

// send delivers msg using a copy of the bot whose HTTP client carries ctx,
// so cancellation aborts the in-flight request
func (c *Client) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot := *c.bot
	bot.Client = ctxHTTPClient{ctx: ctx, next: c.bot.Client}
	if _, err := bot.Send(msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("send message failed: %w", ctxErr)
		}
		return fmt.Errorf("send message failed: %w", err)
	}
	c.log.Debug().Int64("chat_id", msg.ChatID).Msg("message sent")
	return nil
}

// ctxHTTPClient binds a context to every request the bot library makes
type ctxHTTPClient struct {
	ctx  context.Context
	next tgbotapi.HTTPClient
}

func (c ctxHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.next.Do(req.WithContext(c.ctx))
}

// ParseChatID parses a chat id as carried in a reply handle
func ParseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", s, err)
	}
	return id, nil
}

package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/core/httpserverext"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog"
)

// Chat types reported by Feishu
const (
	ChatTypeP2P   = "p2p"
	ChatTypeGroup = "group"
)

// Message represents a received Feishu message
type Message struct {
	ChatID     string
	MsgID      string
	MsgType    string            // text, post, image, sticker...
	ChatType   string            // p2p, group, topic_group
	Text       string            // Text content for text and post messages
	Payload    json.RawMessage   // Structured content for every other type
	Sender     *Sender           // Message sender info
	MentionMap map[string]string // Map from mention key (@_user_1) to real name
	CreateTime time.Time
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
	TenantKey  string
}

// MessageHandler is the callback for received messages
type MessageHandler func(ctx context.Context, msg *Message) error

// Config contains Feishu app credentials
type Config struct {
	AppID             string
	AppSecret         string
	VerificationToken string // Webhook mode only
	EncryptKey        string // Webhook mode only
	BaseURL           string // Open platform base URL override
}

// Client is the Feishu API client
type Client struct {
	cfg       Config
	larkCli   *lark.Client
	onMessage MessageHandler
	log       zerolog.Logger
}

// NewClient creates a new Feishu client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	var opts []lark.ClientOptionFunc
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	return &Client{
		cfg:     cfg,
		larkCli: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		log:     log,
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Client) dispatcher() *dispatcher.EventDispatcher {
	return dispatcher.NewEventDispatcher(c.cfg.VerificationToken, c.cfg.EncryptKey).
		OnP2MessageReceiveV1(c.handleReceive)
}

// handleReceive runs the message handler before the event is acked. The
// handler must only do the storage work inline, since Feishu expects the
// ack within 3s; a returned error makes the SDK answer non-2xx so Feishu
// redelivers the event.
func (c *Client) handleReceive(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	msg := c.ParseEvent(event)
	if msg == nil || c.onMessage == nil {
		return nil
	}
	if err := c.onMessage(ctx, msg); err != nil {
		c.log.Error().Err(err).Str("chat_id", msg.ChatID).Str("message_id", msg.MsgID).Msg("failed to handle message")
		return err
	}
	return nil
}

// EventHandler returns the webhook handler for event subscriptions.
// URL verification, token checks and decryption are done by the SDK.
func (c *Client) EventHandler() http.HandlerFunc {
	return httpserverext.NewEventHandlerFunc(c.dispatcher())
}

// StartWebSocket connects to Feishu via the long connection and blocks
// until ctx is done
func (c *Client) StartWebSocket(ctx context.Context) error {
	wsCli := larkws.NewClient(c.cfg.AppID, c.cfg.AppSecret,
		larkws.WithEventHandler(c.dispatcher()),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.log.Info().Msg("starting websocket connection")
	return wsCli.Start(ctx)
}

// ParseEvent converts a receive event into a Message. It returns nil for
// events that must be ignored: messages sent by apps (including this bot)
// and events without a message body.
func (c *Client) ParseEvent(event *larkim.P2MessageReceiveV1) *Message {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	rawMsg := event.Event.Message

	// Filter out messages sent by the bot itself to prevent infinite loops
	if event.Event.Sender != nil && deref(event.Event.Sender.SenderType) == "app" {
		return nil
	}

	msg := &Message{
		ChatID:     deref(rawMsg.ChatId),
		MsgID:      deref(rawMsg.MessageId),
		MsgType:    deref(rawMsg.MessageType),
		ChatType:   deref(rawMsg.ChatType),
		MentionMap: make(map[string]string),
	}
	if msg.ChatID == "" || msg.MsgID == "" {
		return nil
	}

	// Create time is a millisecond Unix timestamp string
	if ts, err := strconv.ParseInt(deref(rawMsg.CreateTime), 10, 64); err == nil {
		msg.CreateTime = time.UnixMilli(ts)
	}

	if event.Event.Sender != nil {
		msg.Sender = &Sender{
			SenderType: deref(event.Event.Sender.SenderType),
			TenantKey:  deref(event.Event.Sender.TenantKey),
		}
		if event.Event.Sender.SenderId != nil {
			msg.Sender.SenderID = deref(event.Event.Sender.SenderId.OpenId)
		}
	}

	for _, mention := range rawMsg.Mentions {
		if mention != nil && mention.Key != nil && mention.Name != nil {
			msg.MentionMap[*mention.Key] = *mention.Name
		}
	}

	content := deref(rawMsg.Content)
	switch msg.MsgType {
	case "text":
		msg.Text = parseTextContent(content, msg.MentionMap)
	case "post":
		msg.Text = parsePostContent(content, msg.MentionMap)
	default:
		msg.Payload = structuredPayload(msg.MsgType, content)
	}

	c.log.Debug().
		Str("chat_id", msg.ChatID).
		Str("chat_type", msg.ChatType).
		Str("msg_type", msg.MsgType).
		Msg("received message")
	return msg
}

// parseTextContent extracts text from a text message
// It also replaces mention placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent flattens a rich text message into plain text
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			Href   string `json:"href,omitempty"`
			UserID string `json:"user_id,omitempty"` // for "at" tags
		} `json:"content"`
	}

	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var textParts []string
	if parsed.Title != "" {
		textParts = append(textParts, parsed.Title)
	}

	for _, line := range parsed.Content {
		var lineParts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				if elem.Text != "" {
					lineParts = append(lineParts, elem.Text)
				}
			case "a":
				lineParts = append(lineParts, elem.Text+" ("+elem.Href+")")
			case "at":
				if elem.UserID == "" {
					continue
				}
				if name, ok := mentionMap[elem.UserID]; ok {
					lineParts = append(lineParts, "@"+name)
				} else {
					lineParts = append(lineParts, "@"+elem.UserID)
				}
			case "img":
				lineParts = append(lineParts, "[Image]")
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}

	return replaceMentions(strings.Join(textParts, "\n"), mentionMap)
}

// structuredPayload wraps a non-text message body with its type
func structuredPayload(msgType, content string) json.RawMessage {
	body := json.RawMessage(content)
	if !json.Valid(body) {
		encoded, _ := json.Marshal(content)
		body = encoded
	}
	payload, _ := json.Marshal(struct {
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
	}{Type: msgType, Content: body})
	return payload
}

// replaceMentions replaces mention placeholders (@_user_1, @_user_2, etc.) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	result := text
	for key, name := range mentionMap {
		result = strings.ReplaceAll(result, key, "@"+name)
	}
	return result
}

// Reply answers a message in its chat
func (c *Client) Reply(ctx context.Context, messageID, text string) error {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeText).
			Content(textBody(text)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("reply message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("reply message error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	c.log.Debug().Str("message_id", messageID).Msg("reply sent")
	return nil
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(textBody(text)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	c.log.Debug().Str("chat_id", chatID).Msg("message sent")
	return nil
}

func textBody(text string) string {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})
	return string(contentJSON)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

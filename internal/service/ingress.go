package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/usecase"
	"github.com/DevRickLin/chat-relay/internal/infra/feishu"
	"github.com/DevRickLin/chat-relay/internal/infra/telegram"
	"github.com/DevRickLin/chat-relay/internal/metrics"
)

// seenTTL bounds how long a delivered message id is remembered
const seenTTL = 5 * time.Minute

// ErrIngressClosed is returned for messages that arrive after Close
var ErrIngressClosed = errors.New("ingress closed")

// ReplyCycle runs inbound messages through the reply cycle. Claim covers
// the storage steps and Respond the reasoning and reply.
type ReplyCycle interface {
	Claim(ctx context.Context, in *usecase.InboundMessage) (*usecase.CycleResult, error)
	Respond(ctx context.Context, in *usecase.InboundMessage, result *usecase.CycleResult) (*usecase.CycleResult, error)
}

// IngressService normalizes platform messages and feeds them to the reply cycle
type IngressService struct {
	cycle ReplyCycle
	log   zerolog.Logger

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // platform/chat/msgID -> timestamp

	// Background responses started by IngestAsync
	bgMu     sync.Mutex
	bgWG     sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
	closed   bool

	now func() time.Time
}

// NewIngressService creates a new ingress service
func NewIngressService(cycle ReplyCycle, log zerolog.Logger) *IngressService {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &IngressService{
		cycle:    cycle,
		log:      log,
		seenMsgs: make(map[string]time.Time),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
		now:      time.Now,
	}
}

// Close stops accepting asynchronous work and waits for in-flight responses.
// When ctx expires first, the remaining responses are cancelled and Close
// still waits for them to return before reporting ctx's error.
func (s *IngressService) Close(ctx context.Context) error {
	s.bgMu.Lock()
	s.closed = true
	s.bgMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.bgWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.bgCancel()
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("grace period expired, cancelling in-flight replies")
		s.bgCancel()
		<-done
		return ctx.Err()
	}
}

// HandleFeishu processes a Feishu message
func (s *IngressService) HandleFeishu(ctx context.Context, msg *feishu.Message) error {
	in := &usecase.InboundMessage{
		MessageID: msg.MsgID,
		SentAt:    msg.CreateTime,
		Handle:    domain.ReplyHandle{Platform: domain.PlatformFeishu, ChatID: msg.ChatID, MessageID: msg.MsgID},
	}
	if msg.Sender != nil {
		in.AuthorID = msg.Sender.SenderID
	}

	switch msg.ChatType {
	case feishu.ChatTypeP2P:
		id := in.AuthorID
		if id == "" {
			id = msg.ChatID
		}
		in.Source = domain.Source{Platform: domain.PlatformFeishu, Kind: domain.SourceUser, ID: id}
	case feishu.ChatTypeGroup:
		in.Source = domain.Source{Platform: domain.PlatformFeishu, Kind: domain.SourceGroup, ID: msg.ChatID}
	default:
		in.Source = domain.Source{Platform: domain.PlatformFeishu, Kind: domain.SourceRoom, ID: msg.ChatID}
	}
	if in.AuthorID == "" {
		in.AuthorID = msg.ChatID
	}

	if len(msg.Payload) > 0 {
		in.Content = domain.Content{Data: msg.Payload}
	} else {
		in.Content = domain.TextContent(msg.Text)
	}

	// Feishu expects its ack within 3s, so reasoning runs after the ack
	return s.IngestAsync(ctx, in)
}

// HandleTelegram processes a Telegram message
func (s *IngressService) HandleTelegram(ctx context.Context, msg *telegram.Message) error {
	chatID := strconv.FormatInt(msg.ChatID, 10)
	msgID := strconv.Itoa(msg.MessageID)
	in := &usecase.InboundMessage{
		MessageID:  msgID,
		AuthorID:   strconv.FormatInt(msg.SenderID, 10),
		AuthorName: msg.SenderName,
		SentAt:     msg.Date,
		Handle:     domain.ReplyHandle{Platform: domain.PlatformTelegram, ChatID: chatID, MessageID: msgID},
	}

	switch msg.ChatType {
	case telegram.ChatTypePrivate:
		in.Source = domain.Source{Platform: domain.PlatformTelegram, Kind: domain.SourceUser, ID: in.AuthorID}
	case telegram.ChatTypeGroup, telegram.ChatTypeSupergroup:
		in.Source = domain.Source{Platform: domain.PlatformTelegram, Kind: domain.SourceGroup, ID: chatID}
	default:
		in.Source = domain.Source{Platform: domain.PlatformTelegram, Kind: domain.SourceRoom, ID: chatID}
	}

	if len(msg.Payload) > 0 {
		in.Content = domain.Content{Data: msg.Payload}
	} else {
		in.Content = domain.TextContent(msg.Text)
	}

	return s.Ingest(ctx, in)
}

// Ingest runs a normalized message through the whole reply cycle before
// returning. Only storage errors are returned; the caller may ask the
// platform to redeliver.
func (s *IngressService) Ingest(ctx context.Context, in *usecase.InboundMessage) error {
	result, err := s.claim(ctx, in)
	if err != nil || result == nil || result.State != domain.StateAwaitingReasoning {
		return err
	}
	return s.respond(ctx, in, result)
}

// IngestAsync stores and claims the message before returning, so a storage
// error still reaches the caller, and runs reasoning and the reply in the
// background. Background work is bounded by Close.
func (s *IngressService) IngestAsync(ctx context.Context, in *usecase.InboundMessage) error {
	s.bgMu.Lock()
	if s.closed {
		s.bgMu.Unlock()
		return ErrIngressClosed
	}
	s.bgWG.Add(1)
	s.bgMu.Unlock()

	result, err := s.claim(ctx, in)
	if err != nil || result == nil || result.State != domain.StateAwaitingReasoning {
		s.bgWG.Done()
		return err
	}

	go func() {
		defer s.bgWG.Done()
		if err := s.respond(s.bgCtx, in, result); err != nil {
			s.log.Error().Err(err).
				Str("conversation_id", result.ConversationID).
				Str("message_id", in.MessageID).
				Msg("reply cycle failed after ack")
		}
	}()
	return nil
}

// claim filters and de-duplicates the message and runs the storage half of
// the cycle. A nil result with a nil error means the message was dropped.
func (s *IngressService) claim(ctx context.Context, in *usecase.InboundMessage) (*usecase.CycleResult, error) {
	platform := string(in.Source.Platform)
	if !in.Content.IsStructured() && in.Content.Text == "" {
		s.log.Debug().Str("platform", platform).Str("message_id", in.MessageID).Msg("empty message ignored")
		return nil, nil
	}

	key := platform + "/" + in.Handle.ChatID + "/" + in.MessageID
	if !s.markMessageSeen(key) {
		metrics.DuplicateMessages.WithLabelValues(platform).Inc()
		s.log.Debug().Str("platform", platform).Str("message_id", in.MessageID).Msg("duplicate message ignored")
		return nil, nil
	}
	metrics.InboundMessages.WithLabelValues(platform, string(in.Source.Kind)).Inc()

	result, err := s.cycle.Claim(ctx, in)
	if err != nil {
		metrics.ReplyCycleErrors.Inc()
		if result != nil {
			metrics.ReplyCycles.WithLabelValues(result.State.String()).Inc()
		}
		// Let a redelivery through
		s.forgetMessage(key)
		return nil, err
	}
	if result.State != domain.StateAwaitingReasoning {
		metrics.ReplyCycles.WithLabelValues(result.State.String()).Inc()
	}
	return result, nil
}

func (s *IngressService) respond(ctx context.Context, in *usecase.InboundMessage, claimed *usecase.CycleResult) error {
	result, err := s.cycle.Respond(ctx, in, claimed)
	if result != nil {
		metrics.ReplyCycles.WithLabelValues(result.State.String()).Inc()
	}
	if err != nil {
		metrics.ReplyCycleErrors.Inc()
		return err
	}
	return nil
}

// markMessageSeen records a message id and reports whether it was new
func (s *IngressService) markMessageSeen(key string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := s.now()
	if ts, exists := s.seenMsgs[key]; exists && now.Sub(ts) < seenTTL {
		return false
	}
	s.seenMsgs[key] = now

	// Clean up expired records when marking new messages
	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
	return true
}

func (s *IngressService) forgetMessage(key string) {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	delete(s.seenMsgs, key)
}

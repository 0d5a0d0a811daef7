package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/repo"
)

// ReplyConfig contains reply cycle configuration
type ReplyConfig struct {
	WindowSize       int           // Context window size K
	ReasoningTimeout time.Duration // Upper bound for one reasoning call
	FallbackNotice   string        // Sent when reasoning fails
	AssistantID      string        // Author ID stored on assistant messages
}

// DefaultReplyConfig returns default reply cycle configuration
func DefaultReplyConfig() ReplyConfig {
	return ReplyConfig{
		WindowSize:       20,
		ReasoningTimeout: 30 * time.Second,
		FallbackNotice:   DefaultPromptConfig.FallbackNotice,
		AssistantID:      "assistant",
	}
}

// InboundMessage is a platform message after normalization
type InboundMessage struct {
	Source     domain.Source
	MessageID  string // Platform message ID, used for de-duplication
	AuthorID   string
	AuthorName string
	Content    domain.Content
	SentAt     time.Time // Zero means "now"
	Handle     domain.ReplyHandle
}

// CycleResult describes how one inbound message was handled
type CycleResult struct {
	ConversationID string
	State          domain.CycleState
	Buffered       int                     // Buffer size after recording
	Drained        []domain.PendingMessage // Batch claimed by this invocation
	Reply          string                  // Reasoning output, or the fallback notice on FAILED
	ReasoningErr   error                   // Set on FAILED

	started time.Time
}

// ReplyCycleUsecase runs the buffer -> trigger -> reason -> reply cycle
type ReplyCycleUsecase struct {
	convRepo  repo.ConversationRepo
	bufferUC  *BufferUsecase
	contextUC *ContextBuilderUsecase
	policy    TriggerPolicy
	reasoning repo.ReasoningRepo
	sink      repo.ReplyRepo
	cfg       ReplyConfig
	log       zerolog.Logger

	now func() time.Time
}

// NewReplyCycleUsecase creates a new reply cycle usecase
func NewReplyCycleUsecase(
	convRepo repo.ConversationRepo,
	bufferUC *BufferUsecase,
	contextUC *ContextBuilderUsecase,
	policy TriggerPolicy,
	reasoning repo.ReasoningRepo,
	sink repo.ReplyRepo,
	cfg ReplyConfig,
	log zerolog.Logger,
) *ReplyCycleUsecase {
	defaults := DefaultReplyConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaults.WindowSize
	}
	if cfg.ReasoningTimeout <= 0 {
		cfg.ReasoningTimeout = defaults.ReasoningTimeout
	}
	if cfg.FallbackNotice == "" {
		cfg.FallbackNotice = defaults.FallbackNotice
	}
	if cfg.AssistantID == "" {
		cfg.AssistantID = defaults.AssistantID
	}
	return &ReplyCycleUsecase{
		convRepo:  convRepo,
		bufferUC:  bufferUC,
		contextUC: contextUC,
		policy:    policy,
		reasoning: reasoning,
		sink:      sink,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Handle processes one inbound user message end to end. A storage error is
// returned so the caller can let the platform redeliver; reasoning and reply
// sink failures are absorbed into the result.
func (uc *ReplyCycleUsecase) Handle(ctx context.Context, in *InboundMessage) (*CycleResult, error) {
	result, err := uc.Claim(ctx, in)
	if err != nil || result.State != domain.StateAwaitingReasoning {
		return result, err
	}
	return uc.Respond(ctx, in, result)
}

// Claim runs the storage half of the cycle: persist the message, record it
// into the buffer, evaluate the trigger policy and drain the batch. It is
// safe to call again for the same message after a failure; a redelivery
// goes through the trigger check instead of being dropped. When the result
// is AWAITING_REASONING the caller owns the drained batch and must call
// Respond.
func (uc *ReplyCycleUsecase) Claim(ctx context.Context, in *InboundMessage) (result *CycleResult, err error) {
	if err := in.Source.Validate(); err != nil {
		return nil, err
	}

	start := uc.now()
	convID := in.Source.ConversationID()
	result = &CycleResult{ConversationID: convID, State: domain.StateIdle, started: start}
	log := uc.cycleLogger(convID, in.MessageID)

	defer func() {
		if err != nil || result.State != domain.StateAwaitingReasoning {
			uc.finished(log, result)
		}
	}()

	// 1. Persist the user message
	sentAt := in.SentAt
	if sentAt.IsZero() {
		sentAt = start
	}
	msg := &domain.Message{
		ID:             in.MessageID,
		ConversationID: convID,
		AuthorID:       in.AuthorID,
		AuthorName:     in.AuthorName,
		Content:        in.Content,
		Timestamp:      sentAt,
		Origin:         domain.OriginUser,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	inserted, err := uc.convRepo.Append(ctx, msg)
	if err != nil {
		return result, fmt.Errorf("append user message: %w", err)
	}
	if !inserted {
		// An earlier attempt may have failed after the append
		log.Debug().Msg("message already stored, resuming cycle")
	}

	// 2. Record into the pending buffer, once per message id
	size, err := uc.bufferUC.Record(ctx, msg)
	if err != nil {
		return result, fmt.Errorf("record pending message: %w", err)
	}
	result.Buffered = size
	result.State = domain.StateBuffering

	// 3. Evaluate the trigger policy
	recent, err := uc.convRepo.QueryRecent(ctx, convID, uc.cfg.WindowSize)
	if err != nil {
		return result, fmt.Errorf("query recent messages: %w", err)
	}
	if size == 0 || !uc.policy.ShouldReply(recent, size) {
		return result, nil
	}
	result.State = domain.StateThresholdMet

	// 4. Claim the batch
	drained, err := uc.bufferUC.Drain(ctx, convID)
	if err != nil {
		return result, fmt.Errorf("drain buffer: %w", err)
	}
	if len(drained) == 0 {
		log.Debug().Msg("buffer already claimed by another invocation")
		result.State = domain.StateIdle
		return result, nil
	}
	result.Drained = drained
	result.State = domain.StateAwaitingReasoning
	return result, nil
}

// Respond runs the reasoning half of the cycle for a batch claimed by Claim:
// build the context, call the reasoning service and deliver the reply or the
// fallback notice. Results in any other state are returned unchanged.
func (uc *ReplyCycleUsecase) Respond(ctx context.Context, in *InboundMessage, result *CycleResult) (*CycleResult, error) {
	if result == nil || result.State != domain.StateAwaitingReasoning {
		return result, nil
	}
	convID := result.ConversationID
	log := uc.cycleLogger(convID, in.MessageID)
	defer uc.finished(log, result)

	// 5. Build context and reason
	chatCtx, err := uc.contextUC.Build(ctx, convID, uc.cfg.WindowSize)
	if err != nil {
		uc.deliver(ctx, log, in.Handle, uc.cfg.FallbackNotice)
		result.State = domain.StateFailed
		return result, fmt.Errorf("build context: %w", err)
	}

	reply, err := uc.complete(ctx, chatCtx)
	if err != nil {
		// 6a. Failure: fallback notice, nothing appended
		log.Warn().Err(err).Int("drained", len(result.Drained)).Msg("reasoning failed, sending fallback notice")
		result.State = domain.StateFailed
		result.ReasoningErr = err
		result.Reply = uc.cfg.FallbackNotice
		uc.deliver(ctx, log, in.Handle, uc.cfg.FallbackNotice)
		return result, nil
	}

	// 6b. Success: persist then deliver
	result.Reply = reply
	result.State = domain.StateReplied
	assistant := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		AuthorID:       uc.cfg.AssistantID,
		Content:        domain.TextContent(reply),
		Timestamp:      uc.now(),
		Origin:         domain.OriginAssistant,
	}
	_, appendErr := uc.convRepo.Append(ctx, assistant)
	uc.deliver(ctx, log, in.Handle, reply)
	if appendErr != nil {
		return result, fmt.Errorf("append assistant message: %w", appendErr)
	}
	return result, nil
}

func (uc *ReplyCycleUsecase) cycleLogger(convID, msgID string) zerolog.Logger {
	return uc.log.With().Str("conversation_id", convID).Str("message_id", msgID).Logger()
}

func (uc *ReplyCycleUsecase) finished(log zerolog.Logger, result *CycleResult) {
	ev := log.Info().
		Str("state", result.State.String()).
		Int("buffered", result.Buffered)
	if !result.started.IsZero() {
		ev = ev.Dur("duration", uc.now().Sub(result.started))
	}
	ev.Msg("reply cycle finished")
}

func (uc *ReplyCycleUsecase) complete(ctx context.Context, chatCtx []domain.ChatMessage) (string, error) {
	reasonCtx, cancel := context.WithTimeout(ctx, uc.cfg.ReasoningTimeout)
	defer cancel()

	reply, err := uc.reasoning.Complete(reasonCtx, chatCtx)
	if err != nil {
		if errors.Is(err, repo.ErrReasoningFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", repo.ErrReasoningFailed, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: %w", repo.ErrReasoningFailed, repo.ErrMalformedResponse)
	}
	return reply, nil
}

// deliver hands text to the reply sink. Failures are logged and not retried.
func (uc *ReplyCycleUsecase) deliver(ctx context.Context, log zerolog.Logger, handle domain.ReplyHandle, text string) {
	if err := uc.sink.Reply(ctx, handle, text); err != nil {
		log.Error().Err(err).Str("platform", string(handle.Platform)).Msg("reply delivery failed")
	}
}

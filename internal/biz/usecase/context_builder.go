package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/repo"
)

// PromptConfig contains prompt configuration
type PromptConfig struct {
	SystemPrompt   string // Persona sent as the first context entry
	AuthorFormat   string // User message label (supports {{author}}, {{content}})
	FallbackNotice string // Sent instead of a reply when reasoning fails
}

// DefaultPromptConfig contains default prompt configuration
var DefaultPromptConfig = PromptConfig{
	SystemPrompt: "You are a neutral, logical advisor helping a group reach a decision. " +
		"Based on the discussion so far, give concrete suggestions, point out factors the group may have overlooked, " +
		"or ask a reflective question. Keep it short.",
	AuthorFormat:   "{{author}}: {{content}}",
	FallbackNotice: "⚠️ I couldn't come up with a reply right now. Please try again in a moment.",
}

// ContextBuilderUsecase handles context building logic
type ContextBuilderUsecase struct {
	convRepo   repo.ConversationRepo
	cfg        PromptConfig
	windowSize int
}

// NewContextBuilderUsecase creates a new context builder usecase.
// windowSize is used whenever Build is called with a non-positive limit.
func NewContextBuilderUsecase(convRepo repo.ConversationRepo, cfg PromptConfig, windowSize int) *ContextBuilderUsecase {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultPromptConfig.SystemPrompt
	}
	if cfg.AuthorFormat == "" {
		cfg.AuthorFormat = DefaultPromptConfig.AuthorFormat
	}
	if windowSize <= 0 {
		windowSize = 20
	}
	return &ContextBuilderUsecase{convRepo: convRepo, cfg: cfg, windowSize: windowSize}
}

// WindowSize returns the default context window size
func (uc *ContextBuilderUsecase) WindowSize() int {
	return uc.windowSize
}

// Build returns the system persona followed by up to limit of the
// conversation's most recent messages, oldest first
func (uc *ContextBuilderUsecase) Build(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = uc.windowSize
	}

	recent, err := uc.convRepo.QueryRecent(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}

	return uc.Assemble(recent, limit), nil
}

// Assemble turns a recent-messages snapshot (any order) into the
// chat-completion context. At most limit messages are kept, the newest ones.
func (uc *ContextBuilderUsecase) Assemble(recent []domain.Message, limit int) []domain.ChatMessage {
	window := slices.Clone(recent)
	slices.SortStableFunc(window, func(a, b domain.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}

	result := make([]domain.ChatMessage, 0, len(window)+1)
	result = append(result, domain.ChatMessage{Role: domain.RoleSystem, Content: uc.cfg.SystemPrompt})
	for i := range window {
		result = append(result, domain.ChatMessage{
			Role:    domain.RoleFor(window[i].Origin),
			Content: uc.formatContent(&window[i]),
		})
	}
	return result
}

func (uc *ContextBuilderUsecase) formatContent(m *domain.Message) string {
	content := m.Content.String()
	if !m.IsFromUser() {
		return content
	}
	label := m.AuthorLabel()
	if label == "" {
		return content
	}
	result := strings.ReplaceAll(uc.cfg.AuthorFormat, "{{author}}", label)
	return strings.ReplaceAll(result, "{{content}}", content)
}

// FormatTranscript renders a context as plain text for inspection tools
func FormatTranscript(messages []domain.ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", m.Role, m.Content))
	}
	return sb.String()
}

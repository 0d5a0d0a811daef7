package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/repo"
	"github.com/DevRickLin/chat-relay/internal/metrics"
)

// OpenAIConfig configures the chat-completion adapter
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // Empty means api.openai.com; any OpenAI-compatible endpoint works
	Model       string
	Temperature float32
	MaxTokens   int
}

// openAIReasoner implements repo.ReasoningRepo with an OpenAI-compatible API
type openAIReasoner struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	log         zerolog.Logger
}

// NewOpenAIReasoner creates a new reasoning repository
func NewOpenAIReasoner(cfg OpenAIConfig, log zerolog.Logger) repo.ReasoningRepo {
	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &openAIReasoner{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         log,
	}
}

// Complete implements repo.ReasoningRepo
func (r *openAIReasoner) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, req)
	metrics.ReasoningLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReasoningErrors.Inc()
		return "", fmt.Errorf("%w: chat completion: %w", repo.ErrReasoningFailed, err)
	}

	if len(resp.Choices) == 0 {
		metrics.ReasoningErrors.Inc()
		return "", fmt.Errorf("%w: %w: no response choices", repo.ErrReasoningFailed, repo.ErrMalformedResponse)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		metrics.ReasoningErrors.Inc()
		return "", fmt.Errorf("%w: %w: empty content", repo.ErrReasoningFailed, repo.ErrMalformedResponse)
	}

	r.log.Debug().
		Str("model", r.model).
		Int("context_len", len(messages)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("latency", time.Since(start)).
		Msg("chat completion")
	return content, nil
}

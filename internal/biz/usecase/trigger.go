package usecase

import (
	"fmt"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

// PolicyKind selects a trigger policy variant
type PolicyKind string

const (
	PolicyCount      PolicyKind = "count"     // enough user messages in the window
	PolicyDiversity  PolicyKind = "diversity" // enough user messages from enough authors
	PolicyBufferSize PolicyKind = "buffer"    // enough raw messages pending
)

// TriggerConfig contains trigger policy configuration
type TriggerConfig struct {
	Kind               PolicyKind
	MinUserMessages    int
	MinDistinctAuthors int
	MinBuffered        int
}

// DefaultTriggerConfig returns default trigger configuration
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Kind:               PolicyCount,
		MinUserMessages:    2,
		MinDistinctAuthors: 2,
		MinBuffered:        2,
	}
}

// TriggerPolicy decides whether accumulated messages warrant a reply cycle.
// Implementations are pure functions of the snapshot they are given.
type TriggerPolicy interface {
	// ShouldReply evaluates the most recent window of the conversation
	// (any order) and the current pending buffer size
	ShouldReply(recent []domain.Message, buffered int) bool

	Name() string
}

// NewTriggerPolicy builds the policy variant selected by configuration
func NewTriggerPolicy(cfg TriggerConfig) (TriggerPolicy, error) {
	switch cfg.Kind {
	case PolicyCount, "":
		if cfg.MinUserMessages < 1 {
			return nil, fmt.Errorf("count policy: min user messages must be >= 1, got %d", cfg.MinUserMessages)
		}
		return CountPolicy{MinUserMessages: cfg.MinUserMessages}, nil
	case PolicyDiversity:
		if cfg.MinUserMessages < 1 || cfg.MinDistinctAuthors < 1 {
			return nil, fmt.Errorf("diversity policy: thresholds must be >= 1, got messages=%d authors=%d",
				cfg.MinUserMessages, cfg.MinDistinctAuthors)
		}
		return DiversityPolicy{MinUserMessages: cfg.MinUserMessages, MinDistinctAuthors: cfg.MinDistinctAuthors}, nil
	case PolicyBufferSize:
		if cfg.MinBuffered < 1 {
			return nil, fmt.Errorf("buffer policy: min buffered must be >= 1, got %d", cfg.MinBuffered)
		}
		return BufferSizePolicy{MinBuffered: cfg.MinBuffered}, nil
	default:
		return nil, fmt.Errorf("unknown trigger policy %q", cfg.Kind)
	}
}

// CountPolicy fires once the window holds at least MinUserMessages
// user-authored messages
type CountPolicy struct {
	MinUserMessages int
}

func (p CountPolicy) Name() string { return string(PolicyCount) }

// ShouldReply implements TriggerPolicy
func (p CountPolicy) ShouldReply(recent []domain.Message, _ int) bool {
	return countUserMessages(recent) >= p.MinUserMessages
}

// DiversityPolicy additionally requires MinDistinctAuthors different
// authors among those user messages, so one member cannot drive the bot alone
type DiversityPolicy struct {
	MinUserMessages    int
	MinDistinctAuthors int
}

func (p DiversityPolicy) Name() string { return string(PolicyDiversity) }

// ShouldReply implements TriggerPolicy
func (p DiversityPolicy) ShouldReply(recent []domain.Message, _ int) bool {
	if countUserMessages(recent) < p.MinUserMessages {
		return false
	}
	return countDistinctAuthors(recent) >= p.MinDistinctAuthors
}

// BufferSizePolicy fires once MinBuffered raw messages are pending,
// regardless of who wrote them
type BufferSizePolicy struct {
	MinBuffered int
}

func (p BufferSizePolicy) Name() string { return string(PolicyBufferSize) }

// ShouldReply implements TriggerPolicy
func (p BufferSizePolicy) ShouldReply(_ []domain.Message, buffered int) bool {
	return buffered >= p.MinBuffered
}

func countUserMessages(messages []domain.Message) int {
	n := 0
	for i := range messages {
		if messages[i].IsFromUser() {
			n++
		}
	}
	return n
}

func countDistinctAuthors(messages []domain.Message) int {
	authors := make(map[string]struct{})
	for i := range messages {
		if messages[i].IsFromUser() {
			authors[messages[i].AuthorID] = struct{}{}
		}
	}
	return len(authors)
}

package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

func userMsg(id, author string) domain.Message {
	return domain.Message{ID: id, AuthorID: author, Origin: domain.OriginUser, Content: domain.TextContent(id)}
}

func assistantMsg(id string) domain.Message {
	return domain.Message{ID: id, AuthorID: "assistant", Origin: domain.OriginAssistant, Content: domain.TextContent(id)}
}

func TestCountPolicy(t *testing.T) {
	p := CountPolicy{MinUserMessages: 2}

	tests := []struct {
		name   string
		recent []domain.Message
		want   bool
	}{
		{"empty", nil, false},
		{"one user message", []domain.Message{userMsg("1", "alice")}, false},
		{"exactly at threshold", []domain.Message{userMsg("1", "alice"), userMsg("2", "alice")}, true},
		{"above threshold", []domain.Message{userMsg("1", "alice"), userMsg("2", "bob"), userMsg("3", "carol")}, true},
		{"assistant messages do not count", []domain.Message{userMsg("1", "alice"), assistantMsg("2"), assistantMsg("3")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldReply(tt.recent, 0); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDiversityPolicy(t *testing.T) {
	p := DiversityPolicy{MinUserMessages: 2, MinDistinctAuthors: 2}

	tests := []struct {
		name   string
		recent []domain.Message
		want   bool
	}{
		{"single author monologue", []domain.Message{userMsg("1", "alice"), userMsg("2", "alice"), userMsg("3", "alice")}, false},
		{"two authors at threshold", []domain.Message{userMsg("1", "alice"), userMsg("2", "bob")}, true},
		{"enough authors but too few messages", []domain.Message{userMsg("1", "alice")}, false},
		{"assistant is not an author", []domain.Message{userMsg("1", "alice"), userMsg("2", "alice"), assistantMsg("3")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldReply(tt.recent, 0); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBufferSizePolicy(t *testing.T) {
	p := BufferSizePolicy{MinBuffered: 3}

	for buffered, want := range map[int]bool{0: false, 2: false, 3: true, 10: true} {
		if got := p.ShouldReply(nil, buffered); got != want {
			t.Errorf("buffered=%d: expected %v, got %v", buffered, want, got)
		}
	}
}

func TestPolicyIsPure(t *testing.T) {
	recent := []domain.Message{userMsg("1", "alice"), userMsg("2", "bob")}
	policies := []TriggerPolicy{
		CountPolicy{MinUserMessages: 2},
		DiversityPolicy{MinUserMessages: 2, MinDistinctAuthors: 2},
		BufferSizePolicy{MinBuffered: 2},
	}
	for _, p := range policies {
		first := p.ShouldReply(recent, 2)
		for i := 0; i < 5; i++ {
			if p.ShouldReply(recent, 2) != first {
				t.Errorf("%s: decision changed between identical calls", p.Name())
			}
		}
	}
}

func TestCountPolicyWindowLargerThanHistory(t *testing.T) {
	// Fewer messages than the window: decide on what is available
	p := CountPolicy{MinUserMessages: 5}
	var recent []domain.Message
	for i := 0; i < 4; i++ {
		m := userMsg(fmt.Sprint(i), "alice")
		m.Timestamp = time.Unix(int64(i), 0)
		recent = append(recent, m)
	}
	if p.ShouldReply(recent, 4) {
		t.Error("Expected no reply with 4 of 5 required messages")
	}
	recent = append(recent, userMsg("4", "bob"))
	if !p.ShouldReply(recent, 5) {
		t.Error("Expected reply once 5 messages are available")
	}
}

func TestNewTriggerPolicy(t *testing.T) {
	cfg := DefaultTriggerConfig()

	p, err := NewTriggerPolicy(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Name() != "count" {
		t.Errorf("Expected count policy by default, got %s", p.Name())
	}

	cfg.Kind = PolicyDiversity
	p, err = NewTriggerPolicy(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := p.(DiversityPolicy); !ok {
		t.Errorf("Expected DiversityPolicy, got %T", p)
	}

	cfg.Kind = PolicyBufferSize
	p, err = NewTriggerPolicy(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := p.(BufferSizePolicy); !ok {
		t.Errorf("Expected BufferSizePolicy, got %T", p)
	}

	if _, err := NewTriggerPolicy(TriggerConfig{Kind: "vibes", MinUserMessages: 1}); err == nil {
		t.Error("Expected error for unknown policy")
	}
	if _, err := NewTriggerPolicy(TriggerConfig{Kind: PolicyCount}); err == nil {
		t.Error("Expected error for zero threshold")
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/usecase"
)

// MockConversationRepo returns a fixed newest-first history
type MockConversationRepo struct {
	messages []domain.Message // newest first
	err      error
}

func (m *MockConversationRepo) Append(ctx context.Context, msg *domain.Message) (bool, error) {
	return true, nil
}

func (m *MockConversationRepo) QueryRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > len(m.messages) {
		limit = len(m.messages)
	}
	return append([]domain.Message(nil), m.messages[:limit]...), nil
}

func (m *MockConversationRepo) Close() error { return nil }

// MockBufferRepo returns a fixed pending buffer
type MockBufferRepo struct {
	pending []domain.PendingMessage
}

func (m *MockBufferRepo) Record(ctx context.Context, conversationID string, msg domain.PendingMessage) (int, error) {
	m.pending = append(m.pending, msg)
	return len(m.pending), nil
}

func (m *MockBufferRepo) Drain(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	p := m.pending
	m.pending = nil
	return p, nil
}

func (m *MockBufferRepo) Peek(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	return m.pending, nil
}

func newTestHandler(convRepo *MockConversationRepo, bufRepo *MockBufferRepo, token string) http.Handler {
	contextUC := usecase.NewContextBuilderUsecase(convRepo, usecase.PromptConfig{SystemPrompt: "persona"}, 20)
	h := NewHandler(convRepo, usecase.NewBufferUsecase(bufRepo), contextUC, token, zerolog.Nop())
	return h.Routes()
}

func sampleHistory() []domain.Message {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return []domain.Message{
		{ID: "m3", AuthorID: "assistant", Content: domain.TextContent("Try sushi."), Origin: domain.OriginAssistant, Timestamp: now.Add(2 * time.Second)},
		{ID: "m2", AuthorID: "u2", AuthorName: "Bob", Content: domain.TextContent("Sushi"), Origin: domain.OriginUser, Timestamp: now.Add(time.Second)},
		{ID: "m1", AuthorID: "u1", AuthorName: "Alice", Content: domain.TextContent("Pizza?"), Origin: domain.OriginUser, Timestamp: now},
	}
}

func TestHandleMessages(t *testing.T) {
	h := newTestHandler(&MockConversationRepo{messages: sampleHistory()}, &MockBufferRepo{}, "")

	req := httptest.NewRequest(http.MethodGet, "/conversations/telegram:group:-100/messages", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result MessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if result.ConversationID != "telegram:group:-100" {
		t.Errorf("Unexpected conversation id %q", result.ConversationID)
	}
	if len(result.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(result.Messages))
	}
	if result.Messages[0].ID != "m1" || result.Messages[2].ID != "m3" {
		t.Errorf("Expected oldest first, got %s..%s", result.Messages[0].ID, result.Messages[2].ID)
	}

	// Test with limit
	req = httptest.NewRequest(http.MethodGet, "/conversations/c1/messages?limit=2", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Errorf("Expected 2 messages with limit, got %d", len(result.Messages))
	}
}

func TestHandleMessagesBadLimit(t *testing.T) {
	h := newTestHandler(&MockConversationRepo{}, &MockBufferRepo{}, "")

	for _, limit := range []string{"0", "-3", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/conversations/c1/messages?limit="+limit, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, w.Code)
		}
	}
}

func TestHandleMessagesStorageError(t *testing.T) {
	h := newTestHandler(&MockConversationRepo{err: errors.New("db down")}, &MockBufferRepo{}, "")

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/messages", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestHandleContext(t *testing.T) {
	h := newTestHandler(&MockConversationRepo{messages: sampleHistory()}, &MockBufferRepo{}, "")

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/context?limit=20", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var result ContextResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	want := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "persona"},
		{Role: domain.RoleUser, Content: "Alice: Pizza?"},
		{Role: domain.RoleUser, Content: "Bob: Sushi"},
		{Role: domain.RoleAssistant, Content: "Try sushi."},
	}
	if len(result.Context) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(result.Context))
	}
	for i := range want {
		if result.Context[i] != want[i] {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], result.Context[i])
		}
	}
}

func TestHandleBuffer(t *testing.T) {
	bufRepo := &MockBufferRepo{pending: []domain.PendingMessage{
		{MessageID: "m1", AuthorID: "u1", Role: domain.RoleUser, Content: "Pizza?"},
		{MessageID: "m2", AuthorID: "u2", Role: domain.RoleUser, Content: "Sushi"},
	}}
	h := newTestHandler(&MockConversationRepo{}, bufRepo, "")

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/buffer", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var result BufferResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if result.Size != 2 || result.Pending[1].Content != "Sushi" {
		t.Errorf("Unexpected buffer: %+v", result)
	}
	if len(bufRepo.pending) != 2 {
		t.Error("Inspecting the buffer must not drain it")
	}
}

func TestAuthToken(t *testing.T) {
	h := newTestHandler(&MockConversationRepo{}, &MockBufferRepo{}, "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/conversations/c1/buffer", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/conversations/c1/buffer", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", w.Code)
	}
}

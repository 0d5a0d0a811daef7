package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DevRickLin/chat-relay/internal/api"
	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

func newAPIServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		switch r.URL.EscapedPath() {
		case "/api/conversations/telegram:group:-100/context":
			json.NewEncoder(w).Encode(api.ContextResponse{
				ConversationID: "telegram:group:-100",
				Context: []domain.ChatMessage{
					{Role: domain.RoleSystem, Content: "persona"},
					{Role: domain.RoleUser, Content: "Alice: Pizza?"},
				},
			})
		case "/api/conversations/telegram:group:-100/messages":
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("Expected limit=5, got %q", r.URL.Query().Get("limit"))
			}
			json.NewEncoder(w).Encode(api.MessagesResponse{
				ConversationID: "telegram:group:-100",
				Messages: []api.MessageView{
					{ID: "m1", Content: "Pizza?", Origin: "user"},
					{ID: "m2", Content: "Sushi", Origin: "user"},
				},
			})
		case "/api/conversations/telegram:group:-100/buffer":
			json.NewEncoder(w).Encode(api.BufferResponse{
				ConversationID: "telegram:group:-100",
				Size:           1,
				Pending:        []api.PendingView{{MessageID: "m2", Role: "user", Content: "Sushi"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGetContext(t *testing.T) {
	server := newAPIServer(t, "")
	defer server.Close()

	h := NewHandler(NewClient(server.URL, ""))
	_, out, err := h.GetContext(context.Background(), nil, ConversationInput{ConversationID: "telegram:group:-100"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("Unexpected tool error: %s", out.Error)
	}
	if len(out.Context) != 2 || out.Context[0].Role != domain.RoleSystem {
		t.Errorf("Unexpected context: %+v", out.Context)
	}
}

func TestGetHistory(t *testing.T) {
	server := newAPIServer(t, "")
	defer server.Close()

	h := NewHandler(NewClient(server.URL, ""))
	_, out, err := h.GetHistory(context.Background(), nil, ConversationInput{ConversationID: "telegram:group:-100", Limit: 5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out.Messages) != 2 || out.Messages[0].ID != "m1" {
		t.Errorf("Unexpected messages: %+v", out.Messages)
	}
}

func TestGetBuffer(t *testing.T) {
	server := newAPIServer(t, "tok")
	defer server.Close()

	h := NewHandler(NewClient(server.URL, "tok"))
	_, out, err := h.GetBuffer(context.Background(), nil, BufferInput{ConversationID: "telegram:group:-100"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Size != 1 || out.Pending[0].Content != "Sushi" {
		t.Errorf("Unexpected buffer: %+v", out)
	}
}

func TestToolErrors(t *testing.T) {
	server := newAPIServer(t, "tok")
	defer server.Close()

	// Wrong token: the API error is reported in the tool output
	h := NewHandler(NewClient(server.URL, "wrong"))
	_, out, err := h.GetBuffer(context.Background(), nil, BufferInput{ConversationID: "telegram:group:-100"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out.Error, "401") {
		t.Errorf("Expected HTTP 401 in tool error, got %q", out.Error)
	}

	_, ctxOut, _ := h.GetContext(context.Background(), nil, ConversationInput{})
	if ctxOut.Error != "conversation_id is required" {
		t.Errorf("Expected missing id error, got %q", ctxOut.Error)
	}
}

func TestRegisterTools(t *testing.T) {
	server := newAPIServer(t, "")
	defer server.Close()

	ctx := context.Background()
	srv := NewServer(NewHandler(NewClient(server.URL, "")), "test")

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect failed: %v", err)
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"relay_get_context", "relay_get_history", "relay_get_buffer"} {
		if !names[want] {
			t.Errorf("Expected tool %s to be registered", want)
		}
	}
}

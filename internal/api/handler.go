package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/repo"
	"github.com/DevRickLin/chat-relay/internal/biz/usecase"
)

const maxLimit = 200

// Handler serves the read-only inspection API used by relay-mcp
type Handler struct {
	convRepo  repo.ConversationRepo
	bufferUC  *usecase.BufferUsecase
	contextUC *usecase.ContextBuilderUsecase
	token     string
	log       zerolog.Logger
}

// MessageView is a stored message as returned by the API
type MessageView struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Content    string    `json:"content"`
	Structured bool      `json:"structured,omitempty"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

// PendingView is a buffered message as returned by the API
type PendingView struct {
	MessageID string    `json:"message_id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagesResponse is the body of GET /conversations/{id}/messages
type MessagesResponse struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []MessageView `json:"messages"`
}

// ContextResponse is the body of GET /conversations/{id}/context
type ContextResponse struct {
	ConversationID string               `json:"conversation_id"`
	Context        []domain.ChatMessage `json:"context"`
}

// BufferResponse is the body of GET /conversations/{id}/buffer
type BufferResponse struct {
	ConversationID string        `json:"conversation_id"`
	Size           int           `json:"size"`
	Pending        []PendingView `json:"pending"`
}

// NewHandler creates a new API handler. An empty token disables auth.
func NewHandler(
	convRepo repo.ConversationRepo,
	bufferUC *usecase.BufferUsecase,
	contextUC *usecase.ContextBuilderUsecase,
	token string,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		convRepo:  convRepo,
		bufferUC:  bufferUC,
		contextUC: contextUC,
		token:     token,
		log:       log,
	}
}

// Routes returns the API router, to be mounted under /api
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.auth)

	r.Route("/conversations/{conversationID}", func(r chi.Router) {
		r.Get("/messages", h.handleMessages)
		r.Get("/context", h.handleContext)
		r.Get("/buffer", h.handleBuffer)
	})
	return r
}

func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				h.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ============ Conversation Handlers ============

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationID")
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	recent, err := h.convRepo.QueryRecent(r.Context(), convID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", convID).Msg("query messages failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Oldest first, like the context window
	slices.Reverse(recent)
	views := make([]MessageView, len(recent))
	for i, m := range recent {
		views[i] = MessageView{
			ID:         m.ID,
			AuthorID:   m.AuthorID,
			AuthorName: m.AuthorName,
			Content:    m.Content.String(),
			Structured: m.Content.IsStructured(),
			Origin:     string(m.Origin),
			Timestamp:  m.Timestamp,
		}
	}

	h.writeJSON(w, MessagesResponse{ConversationID: convID, Messages: views})
}

func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationID")
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	chatCtx, err := h.contextUC.Build(r.Context(), convID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", convID).Msg("build context failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, ContextResponse{ConversationID: convID, Context: chatCtx})
}

func (h *Handler) handleBuffer(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationID")

	pending, err := h.bufferUC.Peek(r.Context(), convID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", convID).Msg("peek buffer failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]PendingView, len(pending))
	for i, p := range pending {
		views[i] = PendingView{
			MessageID: p.MessageID,
			AuthorID:  p.AuthorID,
			Role:      string(p.Role),
			Content:   p.Content,
			CreatedAt: p.CreatedAt,
		}
	}

	h.writeJSON(w, BufferResponse{ConversationID: convID, Size: len(views), Pending: views})
}

// ============ Helpers ============

// parseLimit reads ?limit=, defaulting to the context window size
func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := h.contextUC.WindowSize()
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, false
		}
		limit = min(parsed, maxLimit)
	}
	return limit, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"go-collab/internal/respond"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// History is what the handler needs from the message store.
type History interface {
	RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
}

type Handler struct {
	history  History
	limit    int
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(history History, limit int, log *slog.Logger) *Handler {
	if limit <= 0 {
		limit = 100
	}
	return &Handler{history: history, limit: limit, validate: validator.New(), log: log}
}

func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.history.RecentMessages(r.Context(), chi.URLParam(r, "roomId"), h.limit)
	if err != nil {
		h.log.Error("Fetching chat history failed", "room", chi.URLParam(r, "roomId"), "error", err)
		respond.Error(w, http.StatusInternalServerError, "Server error")
		return
	}
	respond.JSON(w, http.StatusOK, msgs)
}

// CreateRoom only derives the room id, rooms exist as soon as someone joins.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Room name is required")
		return
	}

	slug := RoomSlug(req.RoomName)
	if slug == "" {
		respond.Error(w, http.StatusBadRequest, "Room name is required")
		return
	}
	respond.JSON(w, http.StatusOK, CreateRoomResponse{RoomID: slug, Message: "Room created successfully"})
}

var whitespace = regexp.MustCompile(`\s+`)

// RoomSlug lowercases name and turns each whitespace run into a dash.
func RoomSlug(name string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

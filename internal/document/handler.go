package document

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	myMiddleware "go-collab/internal/middleware"
	"go-collab/internal/respond"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	Service  *Service
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(s *Service, log *slog.Logger) *Handler {
	return &Handler{Service: s, validate: validator.New(), log: log}
}

// Routes mounts the document API, the router must already require auth.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/shared", h.SharedWith)
	r.Post("/{id}/share", h.Share)
	r.Delete("/{id}/share/{userId}", h.Unshare)
	r.Get("/{id}/permissions", h.Permissions)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	docs, err := h.Service.List(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "")
		return
	}
	respond.JSON(w, http.StatusOK, docs)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	doc, err := h.Service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "")
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Document title is required")
		return
	}

	doc, err := h.Service.Create(r.Context(), userID, &req)
	if err != nil {
		h.fail(w, err, "")
		return
	}
	respond.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.Service.Update(r.Context(), userID, chi.URLParam(r, "id"), &req)
	if err != nil {
		if errors.Is(err, ErrEmptyTitle) {
			respond.Error(w, http.StatusBadRequest, "Document title cannot be empty")
			return
		}
		h.fail(w, err, "")
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "Only document owner can delete")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

func (h *Handler) SharedWith(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	users, err := h.Service.SharedWith(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "")
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]UserRef{"sharedWith": users})
}

func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, http.StatusBadRequest, "User ID is required")
		return
	}

	users, err := h.Service.Share(r.Context(), userID, chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		h.fail(w, err, "Only document owner can share")
		return
	}
	respond.JSON(w, http.StatusOK, ShareResponse{Message: "Document shared successfully", SharedWith: users})
}

func (h *Handler) Unshare(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	targetID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	users, err := h.Service.Unshare(r.Context(), userID, chi.URLParam(r, "id"), targetID)
	if err != nil {
		h.fail(w, err, "Only document owner can remove shares")
		return
	}
	respond.JSON(w, http.StatusOK, ShareResponse{Message: "Share removed successfully", SharedWith: users})
}

func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	perms, err := h.Service.Permissions(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "")
		return
	}
	respond.JSON(w, http.StatusOK, perms)
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (int, bool) {
	userID, _, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
	}
	return userID, ok
}

// fail maps service errors to a status. forbidden overrides the 403 message.
func (h *Handler) fail(w http.ResponseWriter, err error, forbidden string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, "Document not found")
	case errors.Is(err, ErrForbidden):
		if forbidden == "" {
			forbidden = "Access denied"
		}
		respond.Error(w, http.StatusForbidden, forbidden)
	case errors.Is(err, ErrEmptyTitle):
		respond.Error(w, http.StatusBadRequest, "Document title is required")
	case errors.Is(err, ErrShareWithSelf):
		respond.Error(w, http.StatusBadRequest, "Cannot share document with yourself")
	case errors.Is(err, ErrAlreadyShared):
		respond.Error(w, http.StatusBadRequest, "Document already shared with this user")
	case errors.Is(err, ErrNotShared):
		respond.Error(w, http.StatusBadRequest, "Document is not shared with this user")
	case errors.Is(err, ErrUnknownUser):
		respond.Error(w, http.StatusNotFound, "User not found")
	default:
		h.log.Error("Document request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Server error")
	}
}

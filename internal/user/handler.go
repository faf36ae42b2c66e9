package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-collab/internal/respond"

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

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, http.StatusBadRequest, "All fields are required")
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			respond.Error(w, http.StatusBadRequest, "User already exists")
			return
		}
		h.log.Error("Register failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Server error")
		return
	}

	respond.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			respond.Error(w, http.StatusBadRequest, "Invalid email or password")
			return
		}
		h.log.Error("Login failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Server error")
		return
	}

	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.log.Error("User search failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Server error")
		return
	}
	respond.JSON(w, http.StatusOK, users)
}

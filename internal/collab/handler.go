package collab

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	myMiddleware "go-collab/internal/middleware"

	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	cfg      ClientConfig
	log      *slog.Logger
}

func NewHandler(hub *Hub, allowedOrigins []string, cfg ClientConfig, log *slog.Logger) *Handler {
	origins := newOriginPolicy(allowedOrigins, log)
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		cfg: cfg,
		log: log,
	}
}

// ServeWs upgrades an authenticated request and attaches the token's
// identity to the new connection.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn, strconv.Itoa(userID), username, h.cfg)
	if !h.hub.Connect(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	// Note: These run in new goroutines, ServeWs returns immediately.
	go client.WritePump()
	go client.ReadPump()
}

type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      *slog.Logger
}

func newOriginPolicy(origins []string, log *slog.Logger) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{}), log: log}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

// check passes requests that carry no Origin header (non-browser clients).
func (p *originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if p.allowAll || header == "" {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}
	p.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", header)
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

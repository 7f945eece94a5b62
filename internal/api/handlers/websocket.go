package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dom/dreamhome-studio/internal/api/middleware"
	"github.com/dom/dreamhome-studio/internal/websocket"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub       *websocket.Hub
	validator middleware.TokenValidator
	upgrader  ws.Upgrader
	logger    *slog.Logger
}

func NewWebSocketHandler(hub *websocket.Hub, validator middleware.TokenValidator, allowedOrigin string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		validator: validator,
		logger:    logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin.
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
	}
}

func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "auth/unauthorized", "Token required")
		return
	}

	principal, err := h.validator.ValidateToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth/unauthorized", "Invalid token")
		return
	}
	middleware.SetUserID(r.Context(), principal.UserID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := websocket.NewClient(h.hub, conn, principal.UserID, principal.SessionID, principal.ExpiresAt)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

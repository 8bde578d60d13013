package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"retailcli/internal/middleware"
)

// Handler upgrades HTTP requests and attaches them to a hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the upgrade handler. Browsers must send an Origin from
// allowedOrigins; an empty list only admits same-host origins.
func NewHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{hub: hub, logger: logger.With(slog.String("component", "websocket.handler"))}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, allowedOrigins)
		},
	}
	return h
}

func checkOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h.hub, conn, middleware.GetRequestID(r.Context()), h.logger)
	select {
	case h.hub.register <- c:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Hub fans messages out to every connected client.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64
	dropped          int64
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.InfoContext(ctx, "client registered",
				slog.String("client_id", c.id),
				slog.String("remote_addr", c.remoteAddr),
				slog.Int("total_clients", count))
			c.enqueue(h.encode(Message{
				Type:    TypeConnection,
				Data:    map[string]string{"status": "connected", "client_id": c.id},
				TraceID: c.traceID,
			}))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.InfoContext(ctx, "client unregistered",
				slog.String("client_id", c.id),
				slog.Duration("connection_duration", time.Since(c.connectedAt)),
				slog.Int("total_clients", count))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.enqueue(msg) {
					h.messagesSent++
					continue
				}
				// A client that cannot keep up is disconnected.
				delete(h.clients, c)
				close(c.send)
				h.dropped++
				h.logger.WarnContext(ctx, "client too slow, dropped", slog.String("client_id", c.id))
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues msg for every client. It never blocks: when the queue is
// full the message is discarded.
func (h *Hub) Broadcast(msg Message) {
	data := h.encode(msg)
	if data == nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		h.logger.Warn("broadcast queue full, message dropped", slog.String("type", msg.Type))
	}
}

func (h *Hub) encode(msg Message) []byte {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode message",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
		return nil
	}
	return data
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats reports hub counters.
func (h *Hub) Stats() map[string]int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]int64{
		"active_connections": int64(len(h.clients)),
		"total_connections":  h.totalConnections,
		"messages_sent":      h.messagesSent,
		"dropped":            h.dropped,
	}
}

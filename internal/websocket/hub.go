package websocket

import (
	"log/slog"
	"sync"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/google/uuid"
)

// GallerySource is the part of the gallery service the hub needs.
type GallerySource interface {
	Subscribe(userID uuid.UUID, onUpdate func([]*domain.Design), onError func(error)) *service.Subscription
}

type Hub struct {
	gallery      GallerySource
	logger       *slog.Logger
	clients      map[*Client]bool
	register     chan *Client
	unregister   chan *Client
	sessionEnded chan service.SessionEnded
	stop         chan struct{}
	done         chan struct{} // closed when Run() exits
	stopped      bool
	mu           sync.RWMutex
}

func NewHub(gallery GallerySource, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		gallery:      gallery,
		logger:       logger,
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		sessionEnded: make(chan service.SessionEnded, 16),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			clients := h.clients
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()

			for client := range clients {
				client.unsubscribe()
				client.Close()
			}
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.stopped {
				h.mu.Unlock()
				client.Close()
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()

			client.subscribe()
			h.logger.Debug("websocket client registered",
				slog.String("user_id", client.userID.String()),
				slog.String("session_id", client.sessionID.String()),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			h.mu.Unlock()

			if ok {
				client.unsubscribe()
				client.Close()
			}

		case ev := <-h.sessionEnded:
			h.endSession(ev)
		}
	}
}

// endSession tells every connection bound to the session that it is signed
// out, then closes it.
func (h *Hub) endSession(ev service.SessionEnded) {
	h.mu.Lock()
	var ended []*Client
	for client := range h.clients {
		if client.sessionID == ev.SessionID {
			ended = append(ended, client)
			delete(h.clients, client)
		}
	}
	h.mu.Unlock()

	for _, client := range ended {
		client.unsubscribe()
		msg, _ := NewMessage(MessageTypeAuthState, AuthStatePayload{User: nil})
		client.Send(msg)
		client.Close()
	}

	if len(ended) > 0 {
		h.logger.Info("closed signed-out connections",
			slog.String("session_id", ev.SessionID.String()),
			slog.Int("count", len(ended)),
		)
	}
}

// Stop gracefully shuts down the hub and every connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	close(h.stop)
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister safely unregisters a client, handling the case where the hub may be stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SessionEnded is registered with the auth service's sign-out listeners.
func (h *Hub) SessionEnded(ev service.SessionEnded) {
	select {
	case h.sessionEnded <- ev:
	case <-h.done:
	}
}

// ClientCount reports open connections for userID.
func (h *Hub) ClientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.userID == userID {
			n++
		}
	}
	return n
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wireMessage mirrors the server's WebSocket envelope.
type wireMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

const (
	msgGallerySnapshot = "GALLERY_SNAPSHOT"
	msgGalleryError    = "GALLERY_ERROR"
	msgAuthState       = "AUTH_STATE"
)

// GalleryStore reads and writes the signed-in user's gallery.
type GalleryStore struct {
	api    *APIClient
	dialer *websocket.Dialer
	logger *slog.Logger

	// SessionLost is called when the server signs the session out over the socket.
	SessionLost func()
}

func NewGalleryStore(api *APIClient, logger *slog.Logger) *GalleryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GalleryStore{
		api: api,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Subscribe opens a live view of the gallery. onUpdate receives the full list,
// newest first, on connect and after every change. onError is called at most
// once, after which the subscription is dead. The returned func stops
// delivery; it is safe to call more than once but not from inside a callback.
func (s *GalleryStore) Subscribe(ctx context.Context, onUpdate func([]*domain.Design), onError func(error)) (func(), error) {
	token := s.api.Token()
	if token == "" {
		return nil, ErrUnauthorized
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.api.WebSocketURL(token), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			s.sessionLost()
			return nil, ErrUnauthorized
		}
		return nil, &domain.StoreError{Op: "subscribe", Err: err}
	}

	sub := &gallerySubscription{
		store:    s,
		conn:     conn,
		onUpdate: onUpdate,
		onError:  onError,
	}
	go sub.readLoop()

	return sub.unsubscribe, nil
}

func (s *GalleryStore) Append(ctx context.Context, design *domain.Design) (*domain.Design, error) {
	return s.api.AppendDesign(ctx, design)
}

func (s *GalleryStore) Remove(ctx context.Context, id uuid.UUID) error {
	return s.api.RemoveDesign(ctx, id)
}

func (s *GalleryStore) sessionLost() {
	if s.SessionLost != nil {
		s.SessionLost()
	}
}

type gallerySubscription struct {
	store    *GalleryStore
	conn     *websocket.Conn
	onUpdate func([]*domain.Design)
	onError  func(error)

	mu     sync.Mutex
	closed bool
}

func (sub *gallerySubscription) unsubscribe() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	sub.conn.Close()
}

func (sub *gallerySubscription) readLoop() {
	for {
		var msg wireMessage
		if err := sub.conn.ReadJSON(&msg); err != nil {
			sub.fail(&domain.StoreError{Op: "subscribe", Err: err})
			return
		}

		switch msg.Type {
		case msgGallerySnapshot:
			var payload struct {
				Designs []*domain.Design `json:"designs"`
			}
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				sub.fail(&domain.StoreError{Op: "decode snapshot", Err: err})
				return
			}
			if payload.Designs == nil {
				payload.Designs = []*domain.Design{}
			}
			sub.deliver(payload.Designs)

		case msgGalleryError:
			var payload struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(msg.Payload, &payload)
			sub.fail(&domain.StoreError{Op: "subscribe", Err: errors.New(payload.Message)})
			return

		case msgAuthState:
			var payload struct {
				User *User `json:"user"`
			}
			if err := json.Unmarshal(msg.Payload, &payload); err == nil && payload.User == nil {
				sub.close()
				sub.store.sessionLost()
				return
			}

		default:
			sub.store.logger.Debug("ignoring websocket message", slog.String("type", msg.Type))
		}
	}
}

func (sub *gallerySubscription) deliver(designs []*domain.Design) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.onUpdate(designs)
}

func (sub *gallerySubscription) fail(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	sub.conn.Close()
	if sub.onError != nil {
		sub.onError(err)
	}
}

// close marks the subscription dead without reporting an error.
func (sub *gallerySubscription) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	sub.conn.Close()
}

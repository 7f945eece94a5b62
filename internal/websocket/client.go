package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// Client is one authenticated connection. It owns a gallery subscription for
// its user for as long as it is registered with the hub.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    uuid.UUID
	sessionID uuid.UUID
	expiresAt time.Time

	subMu    sync.Mutex
	sub      *service.Subscription
	expiry   *time.Timer
	detached bool

	mu     sync.Mutex
	closed bool
}

// NewClient binds conn to a session. The hub signs the connection out when
// expiresAt passes; a zero expiresAt never expires.
func NewClient(hub *Hub, conn *websocket.Conn, userID, sessionID uuid.UUID, expiresAt time.Time) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		userID:    userID,
		sessionID: sessionID,
		expiresAt: expiresAt,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", slog.String("error", err.Error()))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(ErrCodeInvalidMessage, "Invalid message")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeResync:
		c.resync()
	default:
		c.sendError(ErrCodeUnknownMessage, "Unknown message type: "+string(msg.Type))
	}
}

func (c *Client) subscribe() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.detached {
		return
	}
	c.sub = c.hub.gallery.Subscribe(c.userID, c.onSnapshot, c.onGalleryError)
	if !c.expiresAt.IsZero() {
		c.expiry = time.AfterFunc(time.Until(c.expiresAt), c.expired)
	}
}

func (c *Client) expired() {
	c.hub.logger.Info("websocket session expired",
		slog.String("session_id", c.sessionID.String()))
	c.hub.SessionEnded(service.SessionEnded{UserID: c.userID, SessionID: c.sessionID})
}

func (c *Client) resync() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.sub != nil {
		c.sub.Resync()
	}
}

func (c *Client) unsubscribe() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.detached = true
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
}

func (c *Client) onSnapshot(designs []*domain.Design) {
	msg, err := NewMessage(MessageTypeGallerySnapshot, GallerySnapshotPayload{Designs: designs})
	if err != nil {
		c.hub.logger.Error("failed to encode snapshot", slog.String("error", err.Error()))
		return
	}
	c.Send(msg)
}

// onGalleryError reports the dead subscription and hangs up. The client
// dials again to resubscribe.
func (c *Client) onGalleryError(err error) {
	c.sendError(ErrCodeGallerySubscribe, err.Error())
	c.Close()
}

func (c *Client) sendError(code, message string) {
	msg, _ := NewMessage(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
	if code == ErrCodeGallerySubscribe {
		msg.Type = MessageTypeGalleryError
	}
	c.Send(msg)
}

// Send queues msg. A client that cannot keep up is disconnected.
func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal message", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket send buffer full, dropping client",
			slog.String("user_id", c.userID.String()))
		c.closed = true
		close(c.send)
	}
}

// Close flushes queued messages and then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

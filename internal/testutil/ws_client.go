package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dom/dreamhome-studio/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a test WebSocket client
type WSClient struct {
	t        *testing.T
	conn     *gorillaWS.Conn
	messages chan *websocket.Message
	errors   chan error
	done     chan struct{}
	mu       sync.Mutex
}

// NewWSClient creates a new WebSocket test client
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan *websocket.Message, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

// readPump reads messages from the WebSocket connection
func (c *WSClient) readPump() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- err:
			}
			return
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.errors <- err
			continue
		}

		select {
		case c.messages <- &msg:
		case <-c.done:
			return
		}
	}
}

// Close closes the WebSocket connection gracefully
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.conn.Close()
	}
}

func (c *WSClient) send(msgType websocket.MessageType) {
	c.t.Helper()

	msg := &websocket.Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("failed to marshal message: %v", err)
	}

	c.mu.Lock()
	err = c.conn.WriteMessage(gorillaWS.TextMessage, data)
	c.mu.Unlock()

	if err != nil {
		c.t.Fatalf("failed to send %s: %v", msgType, err)
	}
}

// Resync asks the server for a fresh gallery snapshot
func (c *WSClient) Resync() {
	c.send(websocket.MessageTypeResync)
}

// SendRaw writes an arbitrary message type
func (c *WSClient) SendRaw(msgType websocket.MessageType) {
	c.send(msgType)
}

// ExpectMessage waits for a message of the specified type
func (c *WSClient) ExpectMessage(msgType websocket.MessageType, timeout time.Duration) *websocket.Message {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			if msg == nil {
				c.t.Fatalf("connection closed while waiting for %s", msgType)
			}
			if msg.Type == msgType {
				return msg
			}
		case err := <-c.errors:
			c.t.Fatalf("error while waiting for %s: %v", msgType, err)
		case <-deadline:
			c.t.Fatalf("timeout waiting for message type %s", msgType)
		}
	}
}

// ExpectSnapshot waits for and decodes a GALLERY_SNAPSHOT message
func (c *WSClient) ExpectSnapshot(timeout time.Duration) *websocket.GallerySnapshotPayload {
	c.t.Helper()

	msg := c.ExpectMessage(websocket.MessageTypeGallerySnapshot, timeout)

	var payload websocket.GallerySnapshotPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.t.Fatalf("failed to decode snapshot payload: %v", err)
	}

	return &payload
}

// ExpectSnapshotLen waits until a snapshot with n designs arrives
func (c *WSClient) ExpectSnapshotLen(n int, timeout time.Duration) *websocket.GallerySnapshotPayload {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timeout waiting for snapshot with %d designs", n)
		}
		payload := c.ExpectSnapshot(remaining)
		if len(payload.Designs) == n {
			return payload
		}
	}
}

// ExpectAuthState waits for and decodes an AUTH_STATE message
func (c *WSClient) ExpectAuthState(timeout time.Duration) *websocket.AuthStatePayload {
	c.t.Helper()

	msg := c.ExpectMessage(websocket.MessageTypeAuthState, timeout)

	var payload websocket.AuthStatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.t.Fatalf("failed to decode auth state payload: %v", err)
	}

	return &payload
}

// ExpectError waits for and decodes an ERROR message
func (c *WSClient) ExpectError(timeout time.Duration) *websocket.ErrorPayload {
	c.t.Helper()

	msg := c.ExpectMessage(websocket.MessageTypeError, timeout)

	var payload websocket.ErrorPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.t.Fatalf("failed to decode error payload: %v", err)
	}

	return &payload
}

// ExpectClosed waits for the server to close the connection
func (c *WSClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.messages:
			if !ok || msg == nil {
				return
			}
		case <-c.errors:
			return
		case <-deadline:
			c.t.Fatal("timeout waiting for connection to close")
		}
	}
}

// ExpectNoMessage verifies no messages are received within timeout
func (c *WSClient) ExpectNoMessage(timeout time.Duration) {
	c.t.Helper()

	select {
	case msg := <-c.messages:
		if msg != nil {
			c.t.Fatalf("unexpected message received: %s", msg.Type)
		}
	case <-time.After(timeout):
	}
}

// DrainMessages drains all pending messages from the channel with a timeout.
func (c *WSClient) DrainMessages() {
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case msg := <-c.messages:
			if msg == nil {
				return
			}
			deadline = time.After(50 * time.Millisecond)
		case <-deadline:
			return
		case <-c.done:
			return
		}
	}
}

package websocket

import (
	"encoding/json"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
)

type MessageType string

const (
	// Client to Server
	MessageTypeResync MessageType = "RESYNC"

	// Server to Client
	MessageTypeGallerySnapshot MessageType = "GALLERY_SNAPSHOT"
	MessageTypeGalleryError    MessageType = "GALLERY_ERROR"
	MessageTypeAuthState       MessageType = "AUTH_STATE"
	MessageTypeError           MessageType = "ERROR"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Server to Client payloads

// GallerySnapshotPayload carries the whole gallery, newest first.
type GallerySnapshotPayload struct {
	Designs []*domain.Design `json:"designs"`
}

type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthStatePayload with a nil User means the session is over.
type AuthStatePayload struct {
	User *AuthUser `json:"user"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeGallerySubscribe = "gallery/subscribe-failed"
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeUnknownMessage   = "UNKNOWN_MESSAGE"
)

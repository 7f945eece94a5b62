package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImageDataURIPrefix is prepended to the base64 PNG payload returned by the generator.
const ImageDataURIPrefix = "data:image/png;base64,"

// Design is one generated image together with the prompt that produced it.
// ID is uuid.Nil until the design has been persisted; CreatedAt is the
// client's local time until the store overwrites it.
type Design struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID `json:"-" gorm:"type:uuid;not null;index:idx_designs_user_created,priority:1"`
	Image     string    `json:"image" gorm:"type:text;not null"`
	Prompt    string    `json:"prompt" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;index:idx_designs_user_created,priority:2,sort:desc"`
}

func (d *Design) Persisted() bool {
	return d.ID != uuid.Nil
}

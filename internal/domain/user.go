package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-"` // empty for accounts created through OAuth
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSession backs one issued access token. Deleting the row signs the token out.
type UserSession struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
}

// OAuthIdentity links an external provider account to a User.
type OAuthIdentity struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Provider  string         `json:"provider" gorm:"not null;uniqueIndex:idx_oauth_provider_subject"`
	Subject   string         `json:"subject" gorm:"not null;uniqueIndex:idx_oauth_provider_subject"`
	UserID    uuid.UUID      `json:"userId" gorm:"type:uuid;not null;index"`
	Profile   datatypes.JSON `json:"profile" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"createdAt"`
}

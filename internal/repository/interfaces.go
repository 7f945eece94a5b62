package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.UserSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) ([]*domain.UserSession, error)
}

type OAuthIdentityRepository interface {
	Create(ctx context.Context, identity *domain.OAuthIdentity) error
	GetByProviderSubject(ctx context.Context, provider, subject string) (*domain.OAuthIdentity, error)
}

// DesignRepository stores galleries. Every method is scoped to the owning user.
type DesignRepository interface {
	Create(ctx context.Context, design *domain.Design) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Design, error)
	Delete(ctx context.Context, userID, designID uuid.UUID) (bool, error)
}

type Repositories struct {
	User          UserRepository
	Session       SessionRepository
	OAuthIdentity OAuthIdentityRepository
	Design        DesignRepository
}

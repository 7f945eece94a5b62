package postgres

import (
	"context"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.UserSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error) {
	var session domain.UserSession
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.UserSession{}, "id = ?", id).Error
}

// DeleteExpired removes every session expired at now and returns the removed rows.
func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) ([]*domain.UserSession, error) {
	var sessions []*domain.UserSession
	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("expires_at <= ?", now).
		Delete(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

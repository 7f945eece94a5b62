package postgres

import (
	"context"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type designRepository struct {
	db *gorm.DB
}

func NewDesignRepository(db *gorm.DB) *designRepository {
	return &designRepository{db: db}
}

func (r *designRepository) Create(ctx context.Context, design *domain.Design) error {
	return r.db.WithContext(ctx).Create(design).Error
}

// ListByUser returns the whole gallery, newest first. Ties on created_at
// fall back to id so the order is stable between snapshots.
func (r *designRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Design, error) {
	designs := make([]*domain.Design, 0)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&designs).Error
	if err != nil {
		return nil, err
	}
	return designs, nil
}

// Delete reports whether a row was removed. A missing id, or one owned by
// another user, is not an error.
func (r *designRepository) Delete(ctx context.Context, userID, designID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Delete(&domain.Design{}, "id = ? AND user_id = ?", designID, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

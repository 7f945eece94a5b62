package postgres

import (
	"context"

	"github.com/dom/dreamhome-studio/internal/domain"
	"gorm.io/gorm"
)

type oauthIdentityRepository struct {
	db *gorm.DB
}

func NewOAuthIdentityRepository(db *gorm.DB) *oauthIdentityRepository {
	return &oauthIdentityRepository{db: db}
}

func (r *oauthIdentityRepository) Create(ctx context.Context, identity *domain.OAuthIdentity) error {
	return translate(r.db.WithContext(ctx).Create(identity).Error)
}

func (r *oauthIdentityRepository) GetByProviderSubject(ctx context.Context, provider, subject string) (*domain.OAuthIdentity, error) {
	var identity domain.OAuthIdentity
	err := r.db.WithContext(ctx).
		First(&identity, "provider = ? AND subject = ?", provider, subject).Error
	if err != nil {
		return nil, translate(err)
	}
	return &identity, nil
}

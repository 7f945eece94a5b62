package postgres

import (
	"errors"
	"fmt"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewConnection(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates every table the server uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.User{},
		&domain.UserSession{},
		&domain.OAuthIdentity{},
		&domain.Design{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		User:          NewUserRepository(db),
		Session:       NewSessionRepository(db),
		OAuthIdentity: NewOAuthIdentityRepository(db),
		Design:        NewDesignRepository(db),
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

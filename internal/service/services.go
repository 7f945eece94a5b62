package service

import (
	"log/slog"

	"github.com/dom/dreamhome-studio/internal/config"
	"github.com/dom/dreamhome-studio/internal/metrics"
	"github.com/dom/dreamhome-studio/internal/repository"
)

type Services struct {
	Auth       *AuthService
	Gallery    *GalleryService
	Generation *GenerationService
}

// NewServices wires the services together. oauth may be nil when Google
// sign-in is not configured.
func NewServices(repos *repository.Repositories, cfg *config.Config, generator ImageGenerator, oauth OAuthProvider, rec metrics.Recorder, logger *slog.Logger) *Services {
	return &Services{
		Auth:       NewAuthService(repos, cfg, oauth, logger),
		Gallery:    NewGalleryService(repos.Design, rec, logger),
		Generation: NewGenerationService(generator, rec, logger),
	}
}

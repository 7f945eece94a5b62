package api

import (
	"log/slog"
	"net/http"

	"github.com/dom/dreamhome-studio/internal/api/handlers"
	"github.com/dom/dreamhome-studio/internal/api/middleware"
	"github.com/dom/dreamhome-studio/internal/config"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/dom/dreamhome-studio/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP surface. metricsHandler may be nil.
func NewRouter(services *service.Services, hub *websocket.Hub, cfg *config.Config, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigin))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	authHandler := handlers.NewAuthHandler(services.Auth, logger)
	designHandler := handlers.NewDesignHandler(services.Gallery, services.Generation, logger)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Auth, cfg.CORSAllowedOrigin, logger)
	requireAuth := middleware.Auth(services.Auth, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.SignUp)
			r.Post("/login", authHandler.Login)

			r.Route("/oauth/google", func(r chi.Router) {
				r.Post("/", authHandler.OAuthStart)
				r.Get("/callback", authHandler.OAuthCallback)
				r.Get("/result", authHandler.OAuthResult)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.Me)
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/designs", func(r chi.Router) {
				r.Get("/", designHandler.List)
				r.Post("/", designHandler.Create)
				r.Post("/generate", designHandler.Generate)
				r.Delete("/{id}", designHandler.Delete)
			})
		})

		r.Get("/ws", wsHandler.Handle)
	})

	return r
}

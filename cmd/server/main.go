package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/dreamhome-studio/internal/api"
	"github.com/dom/dreamhome-studio/internal/config"
	"github.com/dom/dreamhome-studio/internal/imagegen"
	"github.com/dom/dreamhome-studio/internal/logger"
	"github.com/dom/dreamhome-studio/internal/metrics"
	"github.com/dom/dreamhome-studio/internal/repository/postgres"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/dom/dreamhome-studio/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const sessionSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)

	// Initialize database
	db, err := postgres.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repos := postgres.NewRepositories(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	generator := imagegen.NewClient(
		&http.Client{Timeout: cfg.Imagen.Timeout},
		log.With(slog.String("component", "imagegen")),
		cfg.Imagen.Endpoint,
		cfg.Imagen.APIKey,
	)

	var oauth service.OAuthProvider
	if cfg.OAuth.Enabled() {
		oauth = service.NewGoogleOAuthProvider(service.GoogleOAuthConfig{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURL,
		})
	} else {
		log.Info("google sign-in disabled")
	}

	services := service.NewServices(repos, cfg, generator, oauth, recorder, log)

	hub := websocket.NewHub(services.Gallery, log.With(slog.String("component", "websocket")))
	go hub.Run()
	services.Auth.OnSessionEnded(hub.SessionEnded)

	router := api.NewRouter(services, hub, cfg, metrics.Handler(registry), log)

	srv := &http.Server{
		Addr:        "0.0.0.0:" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Generation can take most of a minute upstream.
		WriteTimeout: cfg.Imagen.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, services.Auth, log)

	go func() {
		log.Info("server starting", slog.String("port", cfg.Port), slog.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}
	hub.Stop()

	log.Info("server stopped")
}

func sweepSessions(ctx context.Context, auth *service.AuthService, log *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := auth.PurgeExpiredSessions(ctx)
			if err != nil {
				log.Warn("session sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				log.Info("purged expired sessions", slog.Int64("count", n))
			}
		}
	}
}

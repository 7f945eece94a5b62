package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dom/dreamhome-studio/internal/api"
	"github.com/dom/dreamhome-studio/internal/config"
	"github.com/dom/dreamhome-studio/internal/imagegen"
	"github.com/dom/dreamhome-studio/internal/metrics"
	"github.com/dom/dreamhome-studio/internal/repository"
	repoPostgres "github.com/dom/dreamhome-studio/internal/repository/postgres"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/dom/dreamhome-studio/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB creates a new PostgreSQL testcontainer and returns a connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_dreamhome"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		ctx := context.Background()
		tdb.Container.Terminate(ctx)
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	tables := []string{
		"designs",
		"oauth_identities",
		"user_sessions",
		"users",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Environment:        "test",
		LogLevel:           "error",
		CORSAllowedOrigin:  "*",
		JWTSecret:          "test-jwt-secret-key-for-testing-only",
		JWTExpirationHours: 1,
		Imagen: config.Imagen{
			APIKey:  "test-imagen-key",
			Timeout: 5 * time.Second,
		},
		OAuth: config.OAuth{
			ResultTTL: time.Minute,
		},
	}
}

// TestLogger discards all output.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ImagenStub stands in for the hosted image-generation endpoint.
type ImagenStub struct {
	Server *httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	prompts  []string
	requests int
}

func NewImagenStub(t *testing.T) *ImagenStub {
	t.Helper()

	stub := &ImagenStub{
		status: http.StatusOK,
		body:   `{"predictions":[{"bytesBase64Encoded":"AAAA"}]}`,
	}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(stub.Server.Close)
	return stub
}

// Respond sets the status and body returned from now on.
func (s *ImagenStub) Respond(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = body
}

func (s *ImagenStub) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Prompts returns the prompts received so far.
func (s *ImagenStub) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *ImagenStub) Endpoint() string {
	return s.Server.URL + "/v1beta/models/imagen:predict"
}

func (s *ImagenStub) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instances []struct {
			Prompt string `json:"prompt"`
		} `json:"instances"`
	}
	decodeBody(r, &req)

	s.mu.Lock()
	s.requests++
	if len(req.Instances) > 0 {
		s.prompts = append(s.prompts, req.Instances[0].Prompt)
	}
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	DB       *TestDB
	Repos    *repository.Repositories
	Services *service.Services
	Hub      *websocket.Hub
	Config   *config.Config
	Imagen   *ImagenStub
	Registry *prometheus.Registry
}

// NewTestServer creates a complete test server with all dependencies
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	cfg := TestConfig()
	log := TestLogger()

	stub := NewImagenStub(t)
	cfg.Imagen.Endpoint = stub.Endpoint()

	repos := repoPostgres.NewRepositories(testDB.DB)
	registry := prometheus.NewRegistry()
	recorder := metrics.NewCollector(registry)
	generator := imagegen.NewClient(&http.Client{Timeout: cfg.Imagen.Timeout}, log, cfg.Imagen.Endpoint, cfg.Imagen.APIKey)

	services := service.NewServices(repos, cfg, generator, nil, recorder, log)

	hub := websocket.NewHub(services.Gallery, log)
	go hub.Run()
	services.Auth.OnSessionEnded(hub.SessionEnded)

	router := api.NewRouter(services, hub, cfg, metrics.Handler(registry), log)
	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       testDB,
		Repos:    repos,
		Services: services,
		Hub:      hub,
		Config:   cfg,
		Imagen:   stub,
		Registry: registry,
	}

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// WebSocketURL returns the WebSocket URL with token
func (ts *TestServer) WebSocketURL(token string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	return fmt.Sprintf("%s/api/v1/ws?token=%s", wsURL, token)
}

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	email    string
	password string
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	return &UserBuilder{
		email:    fmt.Sprintf("user_%s@example.com", uuid.New().String()[:8]),
		password: "testpassword123",
	}
}

// WithEmail sets the email
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

// WithPassword sets the password
func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

// Build creates the user in the database and returns the user with the raw password
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) (*domain.User, string) {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        b.email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user, b.password
}

// AuthResponse matches the API auth response
type AuthResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	AccessToken string `json:"accessToken"`
}

// BuildAndAuthenticate signs a user up via the API and returns the user and access token
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	reqBody := map[string]string{
		"email":    b.email,
		"password": b.password,
	}
	body, _ := json.Marshal(reqBody)

	resp, err := http.Post(ts.APIURL("/auth/signup"), "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to sign up user: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	userID, _ := uuid.Parse(authResp.User.ID)
	user := &domain.User{
		ID:    userID,
		Email: authResp.User.Email,
	}

	return user, authResp.AccessToken
}

// DesignBuilder creates gallery entries directly in the database
type DesignBuilder struct {
	owner     *domain.User
	prompt    string
	image     string
	createdAt time.Time
}

// NewDesignBuilder creates a new DesignBuilder with default values
func NewDesignBuilder() *DesignBuilder {
	return &DesignBuilder{
		prompt:    "a cozy cabin",
		image:     domain.ImageDataURIPrefix + "AAAA",
		createdAt: time.Now().UTC(),
	}
}

// WithOwner sets the gallery owner
func (b *DesignBuilder) WithOwner(user *domain.User) *DesignBuilder {
	b.owner = user
	return b
}

// WithPrompt sets the prompt
func (b *DesignBuilder) WithPrompt(prompt string) *DesignBuilder {
	b.prompt = prompt
	return b
}

// WithImage sets the image data URI
func (b *DesignBuilder) WithImage(image string) *DesignBuilder {
	b.image = image
	return b
}

// WithCreatedAt sets the creation time
func (b *DesignBuilder) WithCreatedAt(at time.Time) *DesignBuilder {
	b.createdAt = at
	return b
}

// Build creates the design in the database
func (b *DesignBuilder) Build(t *testing.T, db *gorm.DB) *domain.Design {
	t.Helper()

	if b.owner == nil {
		user, _ := NewUserBuilder().Build(t, db)
		b.owner = user
	}

	design := &domain.Design{
		ID:        uuid.New(),
		UserID:    b.owner.ID,
		Image:     b.image,
		Prompt:    b.prompt,
		CreatedAt: b.createdAt,
	}

	if err := db.Create(design).Error; err != nil {
		t.Fatalf("failed to create design: %v", err)
	}

	return design
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

func decodeBody(r *http.Request, v interface{}) {
	defer r.Body.Close()
	json.NewDecoder(r.Body).Decode(v)
}

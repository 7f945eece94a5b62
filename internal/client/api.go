// Package client is the client side of DreamHome Studio: it talks to the
// server's REST and WebSocket API and drives the view state a UI renders.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned when the server rejects the current token.
var ErrUnauthorized = errors.New("unauthorized")

type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type authResponse struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
}

type oauthStartResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

type designList struct {
	Designs []*domain.Design `json:"designs"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// APIError is a non-2xx response that has no more specific mapping.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// APIClient handles HTTP communication with the backend
type APIClient struct {
	baseURL    string
	httpClient *http.Client

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

// NewAPIClient creates a new API client. A nil httpClient gets a default one
// with a timeout long enough for image generation.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: httpClient,
	}
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type sessionKey struct{}

// WithSession pins authenticated requests made with ctx to token instead of
// whatever session is current when they are sent.
func WithSession(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionKey{}, token)
}

func (c *APIClient) tokenFor(ctx context.Context) string {
	if token, ok := ctx.Value(sessionKey{}).(string); ok {
		return token
	}
	return c.Token()
}

// OnUnauthorized sets the hook called when an authenticated request gets a 401.
func (c *APIClient) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *APIClient) SignUp(ctx context.Context, email, password string) (*User, string, error) {
	return c.credentials(ctx, "/auth/signup", email, password)
}

func (c *APIClient) SignIn(ctx context.Context, email, password string) (*User, string, error) {
	return c.credentials(ctx, "/auth/login", email, password)
}

func (c *APIClient) credentials(ctx context.Context, path, email, password string) (*User, string, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var result authResponse
	status, err := c.do(ctx, http.MethodPost, path, body, "", &result)
	if err != nil {
		return nil, "", authError(status, err)
	}
	return &result.User, result.AccessToken, nil
}

// Me resolves token to its user.
func (c *APIClient) Me(ctx context.Context, token string) (*User, error) {
	var user User
	if _, err := c.do(ctx, http.MethodGet, "/auth/me", nil, token, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *APIClient) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", nil, c.Token(), nil)
	return err
}

// BeginOAuth returns the consent URL to open and the state to poll with.
func (c *APIClient) BeginOAuth(ctx context.Context) (string, string, error) {
	var result oauthStartResponse
	status, err := c.do(ctx, http.MethodPost, "/auth/oauth/google", nil, "", &result)
	if err != nil {
		return "", "", authError(status, err)
	}
	return result.AuthURL, result.State, nil
}

// PollOAuth reports done=false while the user has not finished signing in.
func (c *APIClient) PollOAuth(ctx context.Context, state string) (user *User, token string, done bool, err error) {
	var result authResponse
	status, err := c.do(ctx, http.MethodGet, "/auth/oauth/google/result?state="+url.QueryEscape(state), nil, "", &result)
	if err != nil {
		return nil, "", true, authError(status, err)
	}
	if status == http.StatusAccepted {
		return nil, "", false, nil
	}
	return &result.User, result.AccessToken, true, nil
}

// Generate asks the server for a new, unsaved design.
func (c *APIClient) Generate(ctx context.Context, prompt string) (*domain.Design, error) {
	var design domain.Design
	_, err := c.do(ctx, http.MethodPost, "/designs/generate", map[string]string{"prompt": prompt}, c.tokenFor(ctx), &design)
	if err != nil {
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) || errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, &domain.GenerationError{Kind: domain.GenerationHTTPError, Status: apiErr.Status, Message: apiErr.Message}
		}
		return nil, &domain.GenerationError{Kind: domain.GenerationNetworkError, Err: err}
	}
	return &design, nil
}

func (c *APIClient) ListDesigns(ctx context.Context) ([]*domain.Design, error) {
	var result designList
	if _, err := c.do(ctx, http.MethodGet, "/designs", nil, c.tokenFor(ctx), &result); err != nil {
		return nil, err
	}
	return result.Designs, nil
}

func (c *APIClient) AppendDesign(ctx context.Context, design *domain.Design) (*domain.Design, error) {
	body := map[string]string{
		"image":  design.Image,
		"prompt": design.Prompt,
	}
	var stored domain.Design
	if _, err := c.do(ctx, http.MethodPost, "/designs", body, c.tokenFor(ctx), &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (c *APIClient) RemoveDesign(ctx context.Context, id uuid.UUID) error {
	_, err := c.do(ctx, http.MethodDelete, "/designs/"+id.String(), nil, c.tokenFor(ctx), nil)
	return err
}

// WebSocketURL is the live gallery endpoint for token.
func (c *APIClient) WebSocketURL(token string) string {
	u := c.baseURL + "/ws?token=" + url.QueryEscape(token)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// do sends one request and decodes a 2xx body into out. The returned status
// is 0 when the server could not be reached.
func (c *APIClient) do(ctx context.Context, method, path string, body interface{}, token string, out interface{}) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out != nil && len(raw) > 0 && resp.StatusCode != http.StatusAccepted {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode response: %w", err)
			}
		}
		return resp.StatusCode, nil
	}

	return resp.StatusCode, c.responseError(resp.StatusCode, raw, token)
}

func (c *APIClient) responseError(status int, raw []byte, token string) error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)
	code, message := body.Error.Code, body.Error.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	if strings.HasPrefix(code, "generation/") {
		return &domain.GenerationError{
			Kind:    domain.GenerationErrorKind(code),
			Status:  body.Error.Status,
			Message: body.Error.Detail,
		}
	}

	if status == http.StatusUnauthorized && token != "" {
		c.mu.RLock()
		hook := c.onUnauthorized
		current := c.token
		c.mu.RUnlock()
		// A pinned, older session being rejected says nothing about the current one.
		if hook != nil && token == current {
			hook()
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	}

	return &APIError{Status: status, Code: code, Message: message}
}

// authError maps a failed auth call onto the provider error taxonomy.
func authError(status int, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		kind := domain.ParseAuthErrorKind(apiErr.Code)
		if kind == domain.AuthUnknown {
			return &domain.AuthError{Kind: kind, Message: apiErr.Message}
		}
		return domain.NewAuthError(kind)
	}
	if status == 0 {
		return &domain.AuthError{Kind: domain.AuthUnknown, Message: "Unable to reach the server."}
	}
	return &domain.AuthError{Kind: domain.AuthUnknown, Message: err.Error()}
}

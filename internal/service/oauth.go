package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	ProviderGoogle = "google"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// OAuthUserInfo is the subset of the provider profile used to link accounts.
type OAuthUserInfo struct {
	Provider string
	Subject  string
	Email    string
	Raw      json.RawMessage
}

type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthUserInfo, error)
}

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Overridable for tests.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

type GoogleOAuthProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

func NewGoogleOAuthProvider(cfg GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

func (p *GoogleOAuthProvider) Name() string { return ProviderGoogle }

func (p *GoogleOAuthProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d: %s", resp.StatusCode, string(raw))
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("userinfo has no subject")
	}
	email := info.Email
	if !info.EmailVerified {
		email = ""
	}

	return &OAuthUserInfo{
		Provider: ProviderGoogle,
		Subject:  info.Sub,
		Email:    email,
		Raw:      raw,
	}, nil
}

var _ OAuthProvider = (*GoogleOAuthProvider)(nil)

type oauthStatus int

const (
	oauthPending oauthStatus = iota
	oauthSucceeded
	oauthFailed
)

type oauthAttempt struct {
	status    oauthStatus
	result    *AuthResult
	expiresAt time.Time
}

// oauthAttempts parks the outcome of a popup flow until the client polls for it.
type oauthAttempts struct {
	mu       sync.Mutex
	attempts map[string]*oauthAttempt
	ttl      time.Duration
	now      func() time.Time
}

func newOAuthAttempts(ttl time.Duration, now func() time.Time) *oauthAttempts {
	return &oauthAttempts{
		attempts: make(map[string]*oauthAttempt),
		ttl:      ttl,
		now:      now,
	}
}

func (a *oauthAttempts) begin() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sweepLocked()
	a.attempts[state] = &oauthAttempt{status: oauthPending, expiresAt: a.now().Add(a.ttl)}
	return state, nil
}

// pending reports whether state names a live attempt still waiting for the callback.
func (a *oauthAttempts) pending(state string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sweepLocked()
	att, ok := a.attempts[state]
	return ok && att.status == oauthPending
}

func (a *oauthAttempts) finish(state string, result *AuthResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	att, ok := a.attempts[state]
	if !ok {
		return
	}
	if result == nil {
		att.status = oauthFailed
		return
	}
	att.status = oauthSucceeded
	att.result = result
}

// take returns the outcome once; a finished attempt is forgotten after it is read.
func (a *oauthAttempts) take(state string) (oauthStatus, *AuthResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sweepLocked()
	att, ok := a.attempts[state]
	if !ok {
		return oauthFailed, nil, false
	}
	if att.status != oauthPending {
		delete(a.attempts, state)
	}
	return att.status, att.result, true
}

func (a *oauthAttempts) sweepLocked() {
	now := a.now()
	for state, att := range a.attempts {
		if now.After(att.expiresAt) {
			delete(a.attempts, state)
		}
	}
}

package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultOAuthPollInterval = time.Second
	defaultOAuthTimeout      = 3 * time.Minute
)

// AuthGateway owns the signed-in user and tells listeners whenever it changes.
type AuthGateway struct {
	api    *APIClient
	logger *slog.Logger

	PollInterval time.Duration
	OAuthTimeout time.Duration

	mu        sync.Mutex
	user      *User
	listeners map[int]func(*User)
	nextID    int
	expiry    *time.Timer
}

func NewAuthGateway(api *APIClient, logger *slog.Logger) *AuthGateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &AuthGateway{
		api:          api,
		logger:       logger,
		PollInterval: defaultOAuthPollInterval,
		OAuthTimeout: defaultOAuthTimeout,
		listeners:    make(map[int]func(*User)),
	}
	api.OnUnauthorized(g.SessionLost)
	return g
}

// OnAuthStateChange registers fn for every future change. The returned func
// removes it.
func (g *AuthGateway) OnAuthStateChange(fn func(*User)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.listeners, id)
	}
}

// Start performs the initial load: it resolves initialToken, if any, and
// emits the resulting user or nil.
func (g *AuthGateway) Start(ctx context.Context, initialToken string) {
	if initialToken == "" {
		g.setUser(nil, "")
		return
	}

	user, err := g.api.Me(ctx, initialToken)
	if err != nil {
		g.logger.Warn("initial token rejected", slog.String("error", err.Error()))
		g.setUser(nil, "")
		return
	}
	g.setUser(user, initialToken)
}

func (g *AuthGateway) CurrentUser() *User {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.user
}

// Session returns the current access token, or "" when signed out.
func (g *AuthGateway) Session() string {
	return g.api.Token()
}

func (g *AuthGateway) SignInWithEmail(ctx context.Context, email, password string) error {
	user, token, err := g.api.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	g.setUser(user, token)
	return nil
}

func (g *AuthGateway) SignUpWithEmail(ctx context.Context, email, password string) error {
	user, token, err := g.api.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	g.setUser(user, token)
	return nil
}

// SignInWithOAuthPopup opens the provider's consent page with open and waits
// for the user to finish there. Every failure is auth/popup-failed.
func (g *AuthGateway) SignInWithOAuthPopup(ctx context.Context, open func(authURL string) error) error {
	authURL, state, err := g.api.BeginOAuth(ctx)
	if err != nil {
		g.logger.Warn("oauth start failed", slog.String("error", err.Error()))
		return domain.ErrPopupFailed
	}
	if err := open(authURL); err != nil {
		g.logger.Warn("could not open consent page", slog.String("error", err.Error()))
		return domain.ErrPopupFailed
	}

	ctx, cancel := context.WithTimeout(ctx, g.OAuthTimeout)
	defer cancel()

	ticker := time.NewTicker(g.PollInterval)
	defer ticker.Stop()

	for {
		user, token, done, err := g.api.PollOAuth(ctx, state)
		if err != nil {
			g.logger.Warn("oauth sign-in failed", slog.String("error", err.Error()))
			return domain.ErrPopupFailed
		}
		if done {
			g.setUser(user, token)
			return nil
		}

		select {
		case <-ctx.Done():
			return domain.ErrPopupFailed
		case <-ticker.C:
		}
	}
}

// SignOut ends the session server-side and emits nil. The local session is
// dropped even if the server cannot be reached. Without a user it does nothing.
func (g *AuthGateway) SignOut(ctx context.Context) error {
	if g.CurrentUser() == nil {
		return nil
	}
	err := g.api.Logout(ctx)
	// A 401 from logout has already emitted through SessionLost.
	if g.CurrentUser() != nil {
		g.setUser(nil, "")
	}
	if err != nil && !errors.Is(err, ErrUnauthorized) {
		return err
	}
	return nil
}

// SessionLost drops the user after the server stopped honouring the token.
func (g *AuthGateway) SessionLost() {
	if g.CurrentUser() == nil {
		return
	}
	g.logger.Info("session ended by server")
	g.setUser(nil, "")
}

func (g *AuthGateway) setUser(user *User, token string) {
	g.api.SetToken(token)

	g.mu.Lock()
	g.user = user
	g.scheduleExpiryLocked(token)
	listeners := make([]func(*User), 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(user)
	}
}

// scheduleExpiryLocked arranges for a nil emission when token's exp passes.
func (g *AuthGateway) scheduleExpiryLocked(token string) {
	if g.expiry != nil {
		g.expiry.Stop()
		g.expiry = nil
	}
	if token == "" {
		return
	}
	exp, ok := tokenExpiry(token)
	if !ok {
		return
	}
	g.expiry = time.AfterFunc(time.Until(exp), func() { g.tokenExpired(token) })
}

func (g *AuthGateway) tokenExpired(token string) {
	if g.api.Token() != token || g.CurrentUser() == nil {
		return
	}
	g.logger.Info("session token expired")
	g.setUser(nil, "")
}

// tokenExpiry reads the exp claim. The signature is the server's business.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

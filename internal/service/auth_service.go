package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/dom/dreamhome-studio/internal/config"
	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

const minPasswordLength = 6

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrSessionEnded  = errors.New("session ended")
	ErrOAuthDisabled = errors.New("oauth sign-in is not configured")
	ErrUserNotFound  = errors.New("user not found")
)

type AuthService struct {
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	identityRepo repository.OAuthIdentityRepository
	cfg          *config.Config
	oauth        OAuthProvider
	attempts     *oauthAttempts
	logger       *slog.Logger
	now          func() time.Time

	mu        sync.RWMutex
	listeners []func(SessionEnded)
}

// SessionEnded is published when a session signs out or is purged after expiry.
type SessionEnded struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
}

func NewAuthService(repos *repository.Repositories, cfg *config.Config, oauth OAuthProvider, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.OAuth.ResultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s := &AuthService{
		userRepo:     repos.User,
		sessionRepo:  repos.Session,
		identityRepo: repos.OAuthIdentity,
		cfg:          cfg,
		oauth:        oauth,
		logger:       logger,
		now:          time.Now,
	}
	s.attempts = newOAuthAttempts(ttl, func() time.Time { return s.now() })
	return s
}

type CredentialsInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User        *domain.User
	SessionID   uuid.UUID
	AccessToken string
}

// Principal is the identity carried by a validated token.
type Principal struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Email     string
	ExpiresAt time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) SignUp(ctx context.Context, input CredentialsInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, &domain.AuthError{Kind: domain.AuthUnknown, Message: "Invalid email address."}
	}
	if len(input.Password) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, domain.ErrEmailAlreadyInUse
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrEmailAlreadyInUse
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("user_id", user.ID.String()))
	return s.openSession(ctx, user)
}

func (s *AuthService) SignIn(ctx context.Context, input CredentialsInput) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrInvalidCredential
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	// OAuth-only accounts have no password to compare against.
	if user.PasswordHash == "" {
		return nil, domain.ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrInvalidCredential
	}

	return s.openSession(ctx, user)
}

func (s *AuthService) openSession(ctx context.Context, user *domain.User) (*AuthResult, error) {
	now := s.now()
	session := &domain.UserSession{
		ID:        uuid.New(),
		UserID:    user.ID,
		ExpiresAt: now.Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	accessToken, err := s.generateAccessToken(user, session)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:        user,
		SessionID:   session.ID,
		AccessToken: accessToken,
	}, nil
}

func (s *AuthService) generateAccessToken(user *domain.User, session *domain.UserSession) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"sid":   session.ID.String(),
		"email": user.Email,
		"exp":   session.ExpiresAt.Unix(),
		"iat":   session.CreatedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// ValidateToken checks the signature and that the backing session still exists.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuidClaim(claims, "sub")
	if err != nil {
		return nil, err
	}
	sessionID, err := uuidClaim(claims, "sid")
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionEnded
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session.UserID != userID || !s.now().Before(session.ExpiresAt) {
		return nil, ErrSessionEnded
	}

	email, _ := claims["email"].(string)
	return &Principal{UserID: userID, SessionID: sessionID, Email: email, ExpiresAt: session.ExpiresAt}, nil
}

func uuidClaim(claims jwt.MapClaims, name string) (uuid.UUID, error) {
	raw, ok := claims[name].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: missing %q claim", ErrInvalidToken, name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad %q claim", ErrInvalidToken, name)
	}
	return id, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// SignOut ends one session and tells live connections bound to it.
func (s *AuthService) SignOut(ctx context.Context, p *Principal) error {
	if err := s.sessionRepo.Delete(ctx, p.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("session signed out",
		slog.String("user_id", p.UserID.String()),
		slog.String("session_id", p.SessionID.String()),
	)
	s.publish(SessionEnded{UserID: p.UserID, SessionID: p.SessionID})
	return nil
}

// OnSessionEnded registers fn for every future sign-out and purge.
func (s *AuthService) OnSessionEnded(fn func(SessionEnded)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *AuthService) publish(ev SessionEnded) {
	s.mu.RLock()
	listeners := append([]func(SessionEnded){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// PurgeExpiredSessions removes sessions whose tokens can no longer validate
// and publishes SessionEnded for each of them.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	purged, err := s.sessionRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	for _, session := range purged {
		s.publish(SessionEnded{UserID: session.UserID, SessionID: session.ID})
	}
	return int64(len(purged)), nil
}

func (s *AuthService) OAuthEnabled() bool {
	return s.oauth != nil
}

// BeginOAuth starts a popup flow and returns the consent URL and its state.
func (s *AuthService) BeginOAuth(ctx context.Context) (string, string, error) {
	if s.oauth == nil {
		return "", "", ErrOAuthDisabled
	}
	state, err := s.attempts.begin()
	if err != nil {
		return "", "", err
	}
	return s.oauth.AuthCodeURL(state), state, nil
}

// CompleteOAuth handles the provider callback. providerErr is the provider's
// error parameter, if any. Any failure marks the attempt as failed.
func (s *AuthService) CompleteOAuth(ctx context.Context, state, code, providerErr string) error {
	if s.oauth == nil {
		return ErrOAuthDisabled
	}
	if !s.attempts.pending(state) {
		return domain.ErrPopupFailed
	}

	result, err := s.completeOAuth(ctx, code, providerErr)
	if err != nil {
		s.logger.Warn("oauth sign-in failed", slog.String("error", err.Error()))
		s.attempts.finish(state, nil)
		return domain.ErrPopupFailed
	}

	s.attempts.finish(state, result)
	return nil
}

func (s *AuthService) completeOAuth(ctx context.Context, code, providerErr string) (*AuthResult, error) {
	if providerErr != "" {
		return nil, fmt.Errorf("provider reported %q", providerErr)
	}
	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	info, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveOAuthUser(ctx, info)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// resolveOAuthUser finds the user linked to the provider account, links an
// existing account with the same verified email, or creates a new one.
func (s *AuthService) resolveOAuthUser(ctx context.Context, info *OAuthUserInfo) (*domain.User, error) {
	identity, err := s.identityRepo.GetByProviderSubject(ctx, info.Provider, info.Subject)
	if err == nil {
		return s.userRepo.GetByID(ctx, identity.UserID)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	email := normalizeEmail(info.Email)
	if email == "" {
		return nil, errors.New("provider account has no verified email")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		now := s.now()
		user = &domain.User{ID: uuid.New(), Email: email, CreatedAt: now, UpdatedAt: now}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	err = s.identityRepo.Create(ctx, &domain.OAuthIdentity{
		ID:        uuid.New(),
		Provider:  info.Provider,
		Subject:   info.Subject,
		UserID:    user.ID,
		Profile:   datatypes.JSON(info.Raw),
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("link identity: %w", err)
	}

	return user, nil
}

// OAuthResult reports the outcome of a popup flow. done is false while the
// user has not finished on the provider's page.
func (s *AuthService) OAuthResult(state string) (result *AuthResult, done bool, err error) {
	status, res, ok := s.attempts.take(state)
	if !ok {
		return nil, true, domain.ErrPopupFailed
	}
	switch status {
	case oauthPending:
		return nil, false, nil
	case oauthSucceeded:
		return res, true, nil
	default:
		return nil, true, domain.ErrPopupFailed
	}
}

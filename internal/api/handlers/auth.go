package handlers

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"net/http"

	"github.com/dom/dreamhome-studio/internal/api/middleware"
	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type OAuthStartResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

type OAuthPendingResponse struct {
	Status string `json:"status"`
}

func newAuthResponse(result *service.AuthResult) AuthResponse {
	return AuthResponse{
		User: UserResponse{
			ID:    result.User.ID.String(),
			Email: result.User.Email,
		},
		AccessToken: result.AccessToken,
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.credentials(w, r, h.authService.SignUp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.credentials(w, r, h.authService.SignIn)
}

func (h *AuthHandler) credentials(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, in service.CredentialsInput) (*service.AuthResult, error)) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", "Invalid request body")
		return
	}

	result, err := op(r.Context(), service.CredentialsInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if authErr, ok := asAuthError(err); ok {
			writeAuthError(w, authErr)
			return
		}
		writeInternalError(w, h.logger, "credentials", err)
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(result))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "auth/unauthorized", "User not found")
			return
		}
		writeInternalError(w, h.logger, "me", err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{
		ID:    user.ID.String(),
		Email: user.Email,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	if err := h.authService.SignOut(r.Context(), principal); err != nil {
		writeInternalError(w, h.logger, "logout", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// OAuthStart hands the client a consent URL to open and a state to poll with.
func (h *AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	authURL, state, err := h.authService.BeginOAuth(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrOAuthDisabled) {
			writeAuthError(w, &domain.AuthError{Kind: domain.AuthPopupFailed, Message: "Google Sign In is not available."})
			return
		}
		writeInternalError(w, h.logger, "oauth start", err)
		return
	}

	writeJSON(w, http.StatusOK, OAuthStartResponse{AuthURL: authURL, State: state})
}

// OAuthCallback is where the provider redirects the user's browser.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	err := h.authService.CompleteOAuth(r.Context(), q.Get("state"), q.Get("code"), q.Get("error"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(callbackPage(domain.ErrPopupFailed.Error())))
		return
	}
	w.Write([]byte(callbackPage("Signed in. You can close this window and return to DreamHome Studio.")))
}

// OAuthResult is polled by the client until the callback has run.
func (h *AuthHandler) OAuthResult(w http.ResponseWriter, r *http.Request) {
	result, done, err := h.authService.OAuthResult(r.URL.Query().Get("state"))
	if !done {
		writeJSON(w, http.StatusAccepted, OAuthPendingResponse{Status: "pending"})
		return
	}
	if err != nil {
		if authErr, ok := asAuthError(err); ok {
			writeAuthError(w, authErr)
			return
		}
		writeInternalError(w, h.logger, "oauth result", err)
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(result))
}

func callbackPage(message string) string {
	return "<!doctype html><html><head><title>DreamHome Studio</title></head><body><p>" +
		html.EscapeString(message) + "</p></body></html>"
}

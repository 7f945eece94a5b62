package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthErrorKind classifies identity-provider failures.
type AuthErrorKind string

const (
	AuthInvalidCredential AuthErrorKind = "auth/invalid-credential"
	AuthEmailAlreadyInUse AuthErrorKind = "auth/email-already-in-use"
	AuthWeakPassword      AuthErrorKind = "auth/weak-password"
	AuthPopupFailed       AuthErrorKind = "auth/popup-failed"
	AuthUnknown           AuthErrorKind = "auth/unknown"
)

type AuthError struct {
	Kind    AuthErrorKind
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.DefaultMessage()
}

func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// DefaultMessage is the user-facing text shown for a kind.
func (k AuthErrorKind) DefaultMessage() string {
	switch k {
	case AuthInvalidCredential:
		return "Invalid email or password."
	case AuthEmailAlreadyInUse:
		return "Email already in use."
	case AuthWeakPassword:
		return "Password too weak."
	case AuthPopupFailed:
		return "Google Sign In failed."
	default:
		return "Authentication failed."
	}
}

// ParseAuthErrorKind maps a provider code string to a kind; unknown codes become AuthUnknown.
func ParseAuthErrorKind(code string) AuthErrorKind {
	switch k := AuthErrorKind(code); k {
	case AuthInvalidCredential, AuthEmailAlreadyInUse, AuthWeakPassword, AuthPopupFailed:
		return k
	default:
		return AuthUnknown
	}
}

func NewAuthError(kind AuthErrorKind) *AuthError {
	return &AuthError{Kind: kind}
}

// Sentinels for errors.Is matching on kind.
var (
	ErrInvalidCredential = NewAuthError(AuthInvalidCredential)
	ErrEmailAlreadyInUse = NewAuthError(AuthEmailAlreadyInUse)
	ErrWeakPassword      = NewAuthError(AuthWeakPassword)
	ErrPopupFailed       = NewAuthError(AuthPopupFailed)
)

// GenerationErrorKind classifies image-generation failures.
type GenerationErrorKind string

const (
	GenerationHTTPError    GenerationErrorKind = "generation/http-error"
	GenerationEmptyResult  GenerationErrorKind = "generation/empty-result"
	GenerationNetworkError GenerationErrorKind = "generation/network-error"
)

type GenerationError struct {
	Kind    GenerationErrorKind
	Status  int // upstream HTTP status, HTTPError only
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	switch e.Kind {
	case GenerationHTTPError:
		msg := e.Message
		if msg == "" {
			msg = http.StatusText(e.Status)
		}
		return fmt.Sprintf("API Error: %d - %s", e.Status, msg)
	case GenerationEmptyResult:
		return "Failed to generate image. The API returned no image data."
	default:
		if e.Message != "" {
			return "Unable to generate. " + e.Message
		}
		if e.Err != nil {
			return "Unable to generate: " + e.Err.Error()
		}
		return "Unable to generate. Please try again."
	}
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// StoreError reports a failed gallery subscription. The subscription is dead afterwards.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("gallery %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *GenerationError
		want string
	}{
		{
			name: "http error with upstream message",
			err:  &GenerationError{Kind: GenerationHTTPError, Status: 429, Message: "quota exceeded"},
			want: "API Error: 429 - quota exceeded",
		},
		{
			name: "http error falls back to status text",
			err:  &GenerationError{Kind: GenerationHTTPError, Status: 503},
			want: "API Error: 503 - Service Unavailable",
		},
		{
			name: "empty result",
			err:  &GenerationError{Kind: GenerationEmptyResult},
			want: "Failed to generate image. The API returned no image data.",
		},
		{
			name: "network error with message",
			err:  &GenerationError{Kind: GenerationNetworkError, Message: "Unable to reach the server."},
			want: "Unable to generate. Unable to reach the server.",
		},
		{
			name: "network error with cause",
			err:  &GenerationError{Kind: GenerationNetworkError, Err: errors.New("connection refused")},
			want: "Unable to generate: connection refused",
		},
		{
			name: "bare network error",
			err:  &GenerationError{Kind: GenerationNetworkError},
			want: "Unable to generate. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestGenerationError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("generate: %w", &GenerationError{Kind: GenerationNetworkError, Err: cause})
	assert.ErrorIs(t, err, cause)
}

func TestAuthError_IsMatchesKind(t *testing.T) {
	custom := &AuthError{Kind: AuthInvalidCredential, Message: "nope"}
	assert.ErrorIs(t, custom, ErrInvalidCredential)
	assert.NotErrorIs(t, custom, ErrWeakPassword)
	assert.ErrorIs(t, fmt.Errorf("sign in: %w", ErrEmailAlreadyInUse), ErrEmailAlreadyInUse)

	assert.Equal(t, "nope", custom.Error())
	assert.Equal(t, "Invalid email or password.", ErrInvalidCredential.Error())
	assert.Equal(t, "Google Sign In failed.", ErrPopupFailed.Error())
}

func TestParseAuthErrorKind(t *testing.T) {
	tests := []struct {
		code string
		want AuthErrorKind
	}{
		{"auth/invalid-credential", AuthInvalidCredential},
		{"auth/email-already-in-use", AuthEmailAlreadyInUse},
		{"auth/weak-password", AuthWeakPassword},
		{"auth/popup-failed", AuthPopupFailed},
		{"auth/too-many-requests", AuthUnknown},
		{"", AuthUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAuthErrorKind(tt.code))
		})
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("permission denied")
	err := &StoreError{Op: "subscribe", Err: cause}
	assert.Equal(t, "gallery subscribe: permission denied", err.Error())
	assert.ErrorIs(t, err, cause)
}

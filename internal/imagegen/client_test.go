package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewClient(srv.Client(), logger, srv.URL+"/v1beta/models/imagen:predict", "test-key")
}

func TestClient_Predict_SendsSingleSampleRequest(t *testing.T) {
	var got predictRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/imagen:predict", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"AAAA"}]}`))
	})

	payload, err := client.Predict(context.Background(), "styled: a cozy cabin")
	require.NoError(t, err)
	assert.Equal(t, "AAAA", payload)

	require.Len(t, got.Instances, 1)
	assert.Equal(t, "styled: a cozy cabin", got.Instances[0].Prompt)
	assert.Equal(t, 1, got.Parameters.SampleCount)
}

func TestClient_Predict_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   domain.GenerationErrorKind
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "structured error message",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"quota exceeded"}}`,
			wantKind:   domain.GenerationHTTPError,
			wantStatus: http.StatusTooManyRequests,
			wantMsg:    "quota exceeded",
		},
		{
			name:       "string error field",
			status:     http.StatusBadRequest,
			body:       `{"error":"bad prompt"}`,
			wantKind:   domain.GenerationHTTPError,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "bad prompt",
		},
		{
			name:       "plain text body",
			status:     http.StatusInternalServerError,
			body:       "upstream exploded",
			wantKind:   domain.GenerationHTTPError,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "upstream exploded",
		},
		{
			name:       "json without error field falls back to raw body",
			status:     http.StatusForbidden,
			body:       `{"detail":"nope"}`,
			wantKind:   domain.GenerationHTTPError,
			wantStatus: http.StatusForbidden,
			wantMsg:    `{"detail":"nope"}`,
		},
		{
			name:       "empty body uses status text",
			status:     http.StatusServiceUnavailable,
			body:       "",
			wantKind:   domain.GenerationHTTPError,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Service Unavailable",
		},
		{
			name:     "no predictions",
			status:   http.StatusOK,
			body:     `{"predictions":[]}`,
			wantKind: domain.GenerationEmptyResult,
		},
		{
			name:     "prediction without payload",
			status:   http.StatusOK,
			body:     `{"predictions":[{"mimeType":"image/png"}]}`,
			wantKind: domain.GenerationEmptyResult,
		},
		{
			name:     "unparseable success body",
			status:   http.StatusOK,
			body:     "not json",
			wantKind: domain.GenerationEmptyResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Predict(context.Background(), "prompt")
			require.Error(t, err)

			genErr, ok := IsGenerationError(err)
			require.True(t, ok, "expected GenerationError, got %T", err)
			assert.Equal(t, tt.wantKind, genErr.Kind)
			assert.Equal(t, tt.wantStatus, genErr.Status)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, genErr.Message)
			}
		})
	}
}

func TestClient_Predict_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	var buf bytes.Buffer
	client := NewClient(http.DefaultClient, slog.New(slog.NewJSONHandler(&buf, nil)), url, "k")

	_, err := client.Predict(context.Background(), "prompt")
	require.Error(t, err)

	var genErr *domain.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, domain.GenerationNetworkError, genErr.Kind)
	assert.NotNil(t, genErr.Unwrap())
	assert.Contains(t, buf.String(), "image generation request failed")
}

func TestClient_Predict_MakesExactlyOneRequest(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Predict(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

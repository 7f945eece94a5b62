// Package imagegen calls the hosted text-to-image predict endpoint.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dom/dreamhome-studio/internal/domain"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/imagen-4.0-generate-001:predict"

	maxResponseSize = 32 << 20
)

type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
}

func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount int `json:"sampleCount"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
}

// Predict sends one request for one sample and returns the base64 PNG payload.
// Failures are always *domain.GenerationError. There are no retries.
func (c *Client) Predict(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{SampleCount: 1},
	})
	if err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationNetworkError, Err: err}
	}

	reqURL, err := c.requestURL()
	if err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationNetworkError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request URL carries the API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		c.logger.Error("image generation request failed", slog.String("error", err.Error()))
		return "", &domain.GenerationError{Kind: domain.GenerationNetworkError, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationNetworkError, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(raw, resp.StatusCode)
		c.logger.Warn("image generation rejected",
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
		)
		return "", &domain.GenerationError{
			Kind:    domain.GenerationHTTPError,
			Status:  resp.StatusCode,
			Message: msg,
		}
	}

	var result predictResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationEmptyResult, Err: err}
	}
	if len(result.Predictions) == 0 || result.Predictions[0].BytesBase64Encoded == "" {
		return "", &domain.GenerationError{Kind: domain.GenerationEmptyResult}
	}

	return result.Predictions[0].BytesBase64Encoded, nil
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// errorMessage prefers the structured error field, then the raw body, then the status text.
func errorMessage(body []byte, status int) string {
	var structured struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &structured); err == nil && len(structured.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(structured.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if err := json.Unmarshal(structured.Error, &s); err == nil && s != "" {
			return s
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}

// IsGenerationError unwraps err into a *domain.GenerationError when possible.
func IsGenerationError(err error) (*domain.GenerationError, bool) {
	var genErr *domain.GenerationError
	ok := errors.As(err, &genErr)
	return genErr, ok
}

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ErrorResponse matches the API's JSON error body
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v and verifies success
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies the status and error code and returns the decoded body
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) *ErrorResponse {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	var body ErrorResponse
	AssertJSONResponse(t, resp, &body)
	assert.Equal(t, expectedCode, body.Error.Code, "unexpected error code")

	return &body
}

// AssertNewestFirst verifies a gallery is in strictly decreasing creation order
func AssertNewestFirst(t *testing.T, designs []*domain.Design) {
	t.Helper()
	for i := 1; i < len(designs); i++ {
		assert.True(t, designs[i-1].CreatedAt.After(designs[i].CreatedAt),
			"design %d (%s) is not newer than design %d (%s)",
			i-1, designs[i-1].CreatedAt, i, designs[i].CreatedAt)
	}
}

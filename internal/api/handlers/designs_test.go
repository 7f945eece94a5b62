package handlers_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/dom/dreamhome-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type designBody struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}

func doRequest(t *testing.T, method, url string, body interface{}, token string) *http.Response {
	t.Helper()
	req := testutil.CreateAuthenticatedRequest(t, method, url, body, token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestDesignHandler_Generate(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		prompt         string
		upstreamStatus int
		upstreamBody   string
		expectedStatus int
		expectedCode   string
		expectedMsg    string
	}{
		{
			name:           "success",
			prompt:         "A cozy cabin",
			upstreamStatus: http.StatusOK,
			upstreamBody:   `{"predictions":[{"bytesBase64Encoded":"AAAA"}]}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "empty prompt",
			prompt:         "  ",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid-prompt",
		},
		{
			name:           "quota exceeded",
			prompt:         "Cyberpunk bedroom",
			upstreamStatus: http.StatusTooManyRequests,
			upstreamBody:   `{"error":{"message":"quota exceeded"}}`,
			expectedStatus: http.StatusBadGateway,
			expectedCode:   string(domain.GenerationHTTPError),
			expectedMsg:    "API Error: 429 - quota exceeded",
		},
		{
			name:           "no image data",
			prompt:         "Art deco lounge",
			upstreamStatus: http.StatusOK,
			upstreamBody:   `{"predictions":[]}`,
			expectedStatus: http.StatusBadGateway,
			expectedCode:   string(domain.GenerationEmptyResult),
			expectedMsg:    "Failed to generate image. The API returned no image data.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.upstreamStatus != 0 {
				ts.Imagen.Respond(tt.upstreamStatus, tt.upstreamBody)
			}
			before := len(ts.Imagen.Prompts())

			resp := doRequest(t, http.MethodPost, ts.APIURL("/designs/generate"), map[string]string{"prompt": tt.prompt}, token)
			defer resp.Body.Close()

			if tt.expectedCode != "" {
				body := testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedCode)
				if tt.expectedMsg != "" {
					assert.Equal(t, tt.expectedMsg, body.Error.Message)
				}
				return
			}

			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			var got designBody
			testutil.AssertJSONResponse(t, resp, &got)
			assert.Empty(t, got.ID, "generated designs are not saved")
			assert.Equal(t, domain.ImageDataURIPrefix+"AAAA", got.Image)
			assert.Equal(t, tt.prompt, got.Prompt)

			prompts := ts.Imagen.Prompts()
			require.Len(t, prompts, before+1)
			assert.Equal(t, service.StylePrefix+tt.prompt, prompts[len(prompts)-1])
		})
	}
}

func TestDesignHandler_GenerateQuotaDetail(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	ts.Imagen.Respond(http.StatusTooManyRequests, `{"error":{"message":"quota exceeded"}}`)

	resp := doRequest(t, http.MethodPost, ts.APIURL("/designs/generate"), map[string]string{"prompt": "loft"}, token)
	defer resp.Body.Close()

	body := testutil.AssertErrorResponse(t, resp, http.StatusBadGateway, string(domain.GenerationHTTPError))
	assert.Equal(t, http.StatusTooManyRequests, body.Error.Status)
	assert.Equal(t, "quota exceeded", body.Error.Detail)

	// Nothing was saved.
	list := doRequest(t, http.MethodGet, ts.APIURL("/designs"), nil, token)
	defer list.Body.Close()
	var designs struct {
		Designs []designBody `json:"designs"`
	}
	testutil.AssertJSONResponse(t, list, &designs)
	assert.Empty(t, designs.Designs)
}

func TestDesignHandler_GenerateRequiresAuth(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp := doRequest(t, http.MethodPost, ts.APIURL("/designs/generate"), map[string]string{"prompt": "loft"}, "")
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "auth/unauthorized")
	assert.Zero(t, ts.Imagen.Requests())
}

func TestDesignHandler_CreateAndList(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	_, otherToken := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "valid design",
			body:           map[string]string{"image": domain.ImageDataURIPrefix + "AAAA", "prompt": "first"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "second design",
			body:           map[string]string{"image": domain.ImageDataURIPrefix + "BBBB", "prompt": "second"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "remote url rejected",
			body:           map[string]string{"image": "https://example.com/a.png", "prompt": "x"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid-design",
		},
		{
			name:           "missing prompt rejected",
			body:           map[string]string{"image": domain.ImageDataURIPrefix + "AAAA"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid-design",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, ts.APIURL("/designs"), tt.body, token)
			defer resp.Body.Close()

			if tt.expectedCode != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedCode)
				return
			}

			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			var got designBody
			testutil.AssertJSONResponse(t, resp, &got)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, tt.body["prompt"], got.Prompt)
			time.Sleep(5 * time.Millisecond)
		})
	}

	resp := doRequest(t, http.MethodGet, ts.APIURL("/designs"), nil, token)
	defer resp.Body.Close()
	var mine struct {
		Designs []designBody `json:"designs"`
	}
	testutil.AssertJSONResponse(t, resp, &mine)
	require.Len(t, mine.Designs, 2)
	assert.Equal(t, "second", mine.Designs[0].Prompt)
	assert.Equal(t, "first", mine.Designs[1].Prompt)

	other := doRequest(t, http.MethodGet, ts.APIURL("/designs"), nil, otherToken)
	defer other.Body.Close()
	var theirs struct {
		Designs []designBody `json:"designs"`
	}
	testutil.AssertJSONResponse(t, other, &theirs)
	assert.NotNil(t, theirs.Designs)
	assert.Empty(t, theirs.Designs)
}

func TestDesignHandler_Delete(t *testing.T) {
	ts := testutil.NewTestServer(t)
	owner, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	_, intruderToken := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	design := testutil.NewDesignBuilder().WithOwner(owner).Build(t, ts.DB.DB)
	url := ts.APIURL(fmt.Sprintf("/designs/%s", design.ID))

	tests := []struct {
		name           string
		url            string
		token          string
		expectedStatus int
		remaining      int
	}{
		{name: "other user cannot delete", url: url, token: intruderToken, expectedStatus: http.StatusNoContent, remaining: 1},
		{name: "malformed id", url: ts.APIURL("/designs/not-a-uuid"), token: token, expectedStatus: http.StatusBadRequest, remaining: 1},
		{name: "owner deletes", url: url, token: token, expectedStatus: http.StatusNoContent, remaining: 0},
		{name: "deleting again is a no-op", url: url, token: token, expectedStatus: http.StatusNoContent, remaining: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodDelete, tt.url, nil, tt.token)
			resp.Body.Close()
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)

			list, err := ts.Services.Gallery.List(t.Context(), owner.ID)
			require.NoError(t, err)
			assert.Len(t, list, tt.remaining)
		})
	}
}

func TestDesignHandler_OversizedBody(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, token := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	huge := domain.ImageDataURIPrefix + strings.Repeat("A", 17<<20)
	resp := doRequest(t, http.MethodPost, ts.APIURL("/designs"), map[string]string{"image": huge, "prompt": "big"}, token)
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "invalid-request")
}

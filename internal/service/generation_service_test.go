package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/metrics"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/dom/dreamhome-studio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	payload string
	err     error
	prompts []string
}

func (f *fakeGenerator) Predict(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.payload, f.err
}

// countingRecorder tallies generation results and removals.
type countingRecorder struct {
	metrics.Nop
	results map[string]int
	removed int
}

func (c *countingRecorder) RecordDesignRemoved() { c.removed++ }

func (c *countingRecorder) RecordGeneration(result string, _ time.Duration) {
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[result]++
}

func TestGenerationService_Generate(t *testing.T) {
	tests := []struct {
		name       string
		prompt     string
		generator  *fakeGenerator
		wantErr    error
		wantKind   domain.GenerationErrorKind
		wantResult string
		wantCalls  int
	}{
		{
			name:       "success",
			prompt:     "A cozy cabin",
			generator:  &fakeGenerator{payload: "iVBORw0KGgo="},
			wantResult: metrics.ResultSuccess,
			wantCalls:  1,
		},
		{
			name:      "empty prompt never calls upstream",
			prompt:    "   ",
			generator: &fakeGenerator{payload: "AAAA"},
			wantErr:   service.ErrEmptyPrompt,
		},
		{
			name:   "upstream rejects",
			prompt: "Cyberpunk bedroom",
			generator: &fakeGenerator{err: &domain.GenerationError{
				Kind: domain.GenerationHTTPError, Status: 429, Message: "quota exceeded",
			}},
			wantKind:   domain.GenerationHTTPError,
			wantResult: metrics.ResultHTTPError,
			wantCalls:  1,
		},
		{
			name:       "no image data",
			prompt:     "Art deco lounge",
			generator:  &fakeGenerator{err: &domain.GenerationError{Kind: domain.GenerationEmptyResult}},
			wantKind:   domain.GenerationEmptyResult,
			wantResult: metrics.ResultEmptyResult,
			wantCalls:  1,
		},
		{
			name:       "unclassified failure counts as network",
			prompt:     "Loft",
			generator:  &fakeGenerator{err: errors.New("dial tcp: refused")},
			wantResult: metrics.ResultNetworkError,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			svc := service.NewGenerationService(tt.generator, rec, testutil.TestLogger())

			got, err := svc.Generate(context.Background(), tt.prompt)
			require.Len(t, tt.generator.prompts, tt.wantCalls)
			if tt.wantResult != "" {
				assert.Equal(t, 1, rec.results[tt.wantResult])
			}

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				return
			case tt.wantKind != "":
				var genErr *domain.GenerationError
				require.True(t, errors.As(err, &genErr))
				assert.Equal(t, tt.wantKind, genErr.Kind)
				return
			case tt.wantResult != metrics.ResultSuccess:
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, service.StylePrefix+tt.prompt, tt.generator.prompts[0])
			assert.Equal(t, domain.ImageDataURIPrefix+tt.generator.payload, got.Image)
			assert.Equal(t, tt.prompt, got.Prompt, "the stored prompt is the user's text, unprefixed")
			assert.False(t, got.Persisted())
		})
	}
}

func TestStylePrefix(t *testing.T) {
	assert.True(t, strings.HasSuffix(service.StylePrefix, ": "))
	assert.Equal(t, "photorealistic interior design, architectural photography, high quality: a cozy cabin",
		service.StylePrefix+"a cozy cabin")
}

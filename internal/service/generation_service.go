package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/metrics"
)

// StylePrefix is prepended to every user prompt before it is sent upstream.
const StylePrefix = "photorealistic interior design, architectural photography, high quality: "

var ErrEmptyPrompt = errors.New("prompt is required")

type ImageGenerator interface {
	Predict(ctx context.Context, prompt string) (string, error)
}

type GenerationService struct {
	generator ImageGenerator
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewGenerationService(generator ImageGenerator, rec metrics.Recorder, logger *slog.Logger) *GenerationService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationService{
		generator: generator,
		metrics:   rec,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate produces a transient design for prompt. The result is not saved;
// callers append it to a gallery themselves.
func (s *GenerationService) Generate(ctx context.Context, prompt string) (*domain.Design, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	start := s.now()
	payload, err := s.generator.Predict(ctx, StylePrefix+prompt)
	elapsed := s.now().Sub(start)

	if err != nil {
		result := metrics.ResultNetworkError
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			switch genErr.Kind {
			case domain.GenerationHTTPError:
				result = metrics.ResultHTTPError
			case domain.GenerationEmptyResult:
				result = metrics.ResultEmptyResult
			}
		}
		s.metrics.RecordGeneration(result, elapsed)
		s.logger.Warn("generation failed",
			slog.String("result", result),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordGeneration(metrics.ResultSuccess, elapsed)
	s.logger.Info("generation succeeded", slog.Duration("latency", elapsed))

	return &domain.Design{
		Image:     domain.ImageDataURIPrefix + payload,
		Prompt:    prompt,
		CreatedAt: s.now(),
	}, nil
}

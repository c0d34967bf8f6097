// Package summarizer handles summarization requests for every transport.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cozy-creator/summarize-server/internal/db/models"
	"github.com/cozy-creator/summarize-server/internal/generation"
	"github.com/cozy-creator/summarize-server/internal/modelstore"
	"github.com/cozy-creator/summarize-server/internal/utils/hashutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrServiceUnavailable = errors.New("model not loaded")
	ErrInferenceFailed    = errors.New("inference failed")
)

const recordTimeout = 2 * time.Second

type SummarizationRequest struct {
	Caption string
	// Transport names the surface the request came in on, for logging.
	Transport string
	RequestID string
}

type SummarizationResult struct {
	Summary        string
	RequestID      string
	InputTokens    int
	InputTruncated bool
	OutputTokens   int
	Latency        time.Duration
}

type Readiness interface {
	IsReady() bool
}

type ModelSource interface {
	Current() (*modelstore.LoadedModel, bool)
}

type Generator interface {
	Generate(ctx context.Context, model *modelstore.LoadedModel, text string) (*generation.Result, error)
}

// InferenceLog persists request outcomes.
type InferenceLog interface {
	Create(ctx context.Context, inference *models.Inference) (*models.Inference, error)
}

type Service struct {
	gate      Readiness
	models    ModelSource
	generator Generator
	log       InferenceLog
	logger    *zap.Logger
}

type Option func(*Service)

func WithInferenceLog(log InferenceLog) Option {
	return func(s *Service) {
		s.log = log
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(gate Readiness, models ModelSource, generator Generator, opts ...Option) *Service {
	s := &Service{
		gate:      gate,
		models:    models,
		generator: generator,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Summarize(ctx context.Context, req SummarizationRequest) (*SummarizationResult, error) {
	start := time.Now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := s.logger.With(zap.String("request_id", requestID), zap.String("transport", req.Transport))

	record := &models.Inference{
		Transport: req.Transport,
		InputHash: hashutil.Blake3Hash([]byte(req.Caption)),
	}
	if id, err := uuid.Parse(requestID); err == nil {
		record.ID = id
	} else {
		record.ID = uuid.New()
	}

	var model *modelstore.LoadedModel
	ok := s.gate.IsReady()
	if ok {
		model, ok = s.models.Current()
	}
	if !ok {
		logger.Warn("Rejected request, model not loaded")
		record.Status = models.InferenceStatusUnavailable
		s.record(ctx, record, start)
		return nil, ErrServiceUnavailable
	}

	record.ModelLocator = model.Locator
	record.Device = model.Device.String()
	if model.Artifact != nil {
		record.Fingerprint = model.Artifact.Fingerprint
	}

	res, err := s.generator.Generate(ctx, model, req.Caption)
	if err != nil {
		logger.Error("Inference failed", zap.Error(err), zap.Duration("latency", time.Since(start)))
		record.Status = models.InferenceStatusFailed
		record.Error = err.Error()
		s.record(ctx, record, start)
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}

	latency := time.Since(start)
	logger.Info("Summarized",
		zap.Int("input_tokens", res.InputTokens),
		zap.Bool("input_truncated", res.InputTruncated),
		zap.Int("output_tokens", res.OutputTokens),
		zap.Duration("latency", latency),
	)

	record.Status = models.InferenceStatusCompleted
	record.Summary = res.Summary
	record.InputTokens = res.InputTokens
	record.InputTruncated = res.InputTruncated
	record.OutputTokens = res.OutputTokens
	s.record(ctx, record, start)

	return &SummarizationResult{
		Summary:        res.Summary,
		RequestID:      requestID,
		InputTokens:    res.InputTokens,
		InputTruncated: res.InputTruncated,
		OutputTokens:   res.OutputTokens,
		Latency:        latency,
	}, nil
}

// record never fails the request.
func (s *Service) record(ctx context.Context, inference *models.Inference, start time.Time) {
	if s.log == nil {
		return
	}

	inference.LatencyMs = time.Since(start).Milliseconds()
	inference.CreatedAt = time.Now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if _, err := s.log.Create(ctx, inference); err != nil {
		s.logger.Warn("Failed to record inference", zap.String("id", inference.ID.String()), zap.Error(err))
	}
}

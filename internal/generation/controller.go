// Package generation turns input text into a summary with beam search over
// a loaded model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cozy-creator/summarize-server/internal/modelstore"
	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/tokenizer"

	"go.uber.org/zap"
)

var (
	ErrGeneration = errors.New("generation failed")
	ErrNoModel    = errors.New("no model")
)

const releaseTimeout = 5 * time.Second

type Result struct {
	Summary        string
	InputTokens    int
	InputTruncated bool
	// OutputTokens excludes the decoder start and end-of-sequence tokens.
	OutputTokens int
	Score        float64
	Steps        int
}

type Controller struct {
	backend runtime.Inference
	cfg     Config
	logger  *zap.Logger

	// mu serializes calls on models the runtime reports as not reentrant.
	mu sync.Mutex
}

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func NewController(backend runtime.Inference, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		cfg:     cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) Generate(ctx context.Context, model *modelstore.LoadedModel, text string) (*Result, error) {
	if model == nil || model.Tokenizer == nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, ErrNoModel)
	}

	if !model.Reentrant {
		c.mu.Lock()
		defer c.mu.Unlock()
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	enc := model.Tokenizer.Encode(c.cfg.Prefix+text, tokenizer.Options{MaxLength: c.cfg.MaxInputLength})
	if enc.Truncated {
		c.logger.Debug("Input truncated",
			zap.Int("length", enc.Length),
			zap.Int("max_length", c.cfg.MaxInputLength),
		)
	}

	session, err := c.backend.Encode(ctx, runtime.EncodeRequest{
		Handle:        model.Handle,
		InputIDs:      enc.IDs,
		AttentionMask: enc.AttentionMask,
		Device:        model.Device.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrGeneration, err)
	}
	defer c.release(ctx, model.Handle, session)

	best, steps, err := c.beamSearch(ctx, model, session)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrGeneration, err)
	}

	return &Result{
		Summary:        model.Tokenizer.Decode(best.tokens, true),
		InputTokens:    len(enc.IDs),
		InputTruncated: enc.Truncated,
		OutputTokens:   len(best.tokens) - 1,
		Score:          best.score,
		Steps:          steps,
	}, nil
}

// release frees the encoder session even when ctx is already done.
func (c *Controller) release(ctx context.Context, handle, session string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := c.backend.Release(ctx, handle, session); err != nil {
		c.logger.Warn("Failed to release session", zap.String("session", session), zap.Error(err))
	}
}

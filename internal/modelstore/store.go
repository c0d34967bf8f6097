// Package modelstore owns the single loaded summarization model.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cozy-creator/summarize-server/internal/artifact"
	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/tokenizer"

	"go.uber.org/zap"
)

type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
)

// LoadedModel is immutable once published.
type LoadedModel struct {
	Locator        string
	Artifact       *artifact.Artifact
	Tokenizer      *tokenizer.Tokenizer
	Device         runtime.Device
	Handle         string
	Reentrant      bool
	DecoderStartID int
	EOSID          int
	LoadedAt       time.Time
}

type Status struct {
	State       State      `json:"state"`
	Locator     string     `json:"locator,omitempty"`
	Device      string     `json:"device,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type Resolver interface {
	Resolve(ctx context.Context, locator string) (*artifact.Artifact, error)
}

type Store struct {
	resolver Resolver
	backend  runtime.Backend
	device   string
	logger   *zap.Logger

	mu      sync.Mutex
	current atomic.Pointer[LoadedModel]
	status  atomic.Pointer[Status]
}

type Option func(*Store)

// WithDevice overrides automatic placement.
func WithDevice(device string) Option {
	return func(s *Store) {
		s.device = device
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(resolver Resolver, backend runtime.Backend, opts ...Option) *Store {
	s := &Store{
		resolver: resolver,
		backend:  backend,
		device:   DeviceAuto,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.Store(&Status{State: StateUnloaded})
	return s
}

// Current returns the published model without blocking.
func (s *Store) Current() (*LoadedModel, bool) {
	m := s.current.Load()
	return m, m != nil
}

func (s *Store) Status() Status {
	return *s.status.Load()
}

// Load resolves locator, places it and publishes the result. A store that is
// already serving returns the model it has. On failure the store is left
// unloaded and the error is a *LoadError.
func (s *Store) Load(ctx context.Context, locator string) (*LoadedModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.current.Load(); m != nil {
		if m.Locator != locator {
			s.logger.Warn("Model already loaded, ignoring new locator",
				zap.String("loaded", m.Locator), zap.String("requested", locator))
		}
		return m, nil
	}

	s.status.Store(&Status{State: StateLoading, Locator: locator})
	start := time.Now()

	model, err := s.load(ctx, locator)
	if err != nil {
		s.logger.Error("Failed to load model", zap.String("locator", locator), zap.Error(err))
		s.status.Store(&Status{State: StateUnloaded, Locator: locator, LastError: err.Error()})
		return nil, err
	}

	s.current.Store(model)
	s.status.Store(&Status{
		State:       StateReady,
		Locator:     locator,
		Device:      model.Device.String(),
		Fingerprint: model.Artifact.Fingerprint,
		LoadedAt:    &model.LoadedAt,
	})

	s.logger.Info("Model loaded",
		zap.String("locator", locator),
		zap.String("device", model.Device.String()),
		zap.Bool("reentrant", model.Reentrant),
		zap.Duration("elapsed", time.Since(start)),
	)
	return model, nil
}

func (s *Store) load(ctx context.Context, locator string) (*LoadedModel, error) {
	art, err := s.resolver.Resolve(ctx, locator)
	if err != nil {
		if errors.Is(err, artifact.ErrIncompatible) {
			return nil, newLoadError(ErrIncompatibleArtifact, locator, err)
		}
		return nil, newLoadError(ErrLocatorUnresolvable, locator, err)
	}

	tok, err := tokenizer.LoadFile(art.TokenizerPath)
	if err != nil {
		return nil, newLoadError(ErrIncompatibleArtifact, locator, err)
	}

	devices, err := s.backend.Devices(ctx)
	if err != nil {
		return nil, newLoadError(ErrPlacementFailed, locator, fmt.Errorf("failed to query devices: %w", err))
	}
	device, err := SelectDevice(devices, s.device)
	if err != nil {
		return nil, newLoadError(ErrPlacementFailed, locator, err)
	}

	info, err := s.backend.Load(ctx, runtime.LoadRequest{
		ArtifactDir:   art.Dir,
		Architecture:  art.Config.Architecture(),
		Device:        device.String(),
		InferenceOnly: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, runtime.ErrIncompatible):
			return nil, newLoadError(ErrIncompatibleArtifact, locator, err)
		case errors.Is(err, runtime.ErrNotFound):
			return nil, newLoadError(ErrLocatorUnresolvable, locator, err)
		default:
			return nil, newLoadError(ErrPlacementFailed, locator, err)
		}
	}

	model := &LoadedModel{
		Locator:        locator,
		Artifact:       art,
		Tokenizer:      tok,
		Device:         device,
		Handle:         info.Handle,
		Reentrant:      info.Reentrant,
		DecoderStartID: tok.PadID(),
		EOSID:          tok.EOSID(),
		LoadedAt:       time.Now(),
	}
	if id := art.Config.DecoderStartTokenID; id != nil {
		model.DecoderStartID = *id
	} else if id := art.Config.PadTokenID; id != nil {
		model.DecoderStartID = *id
	}
	if id := art.Config.EOSTokenID; id != nil {
		model.EOSID = *id
	}

	return model, nil
}

// Unload releases the runtime model and returns the store to unloaded.
func (s *Store) Unload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.current.Swap(nil)
	if m == nil {
		return nil
	}
	s.status.Store(&Status{State: StateUnloaded, Locator: m.Locator})

	if err := s.backend.Unload(ctx, m.Handle); err != nil {
		return fmt.Errorf("failed to unload model %q: %w", m.Locator, err)
	}
	s.logger.Info("Model unloaded", zap.String("locator", m.Locator))
	return nil
}

// Package training fine-tunes a base checkpoint into a servable artifact.
package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cozy-creator/summarize-server/internal/artifact"
	"github.com/cozy-creator/summarize-server/internal/generation"
	"github.com/cozy-creator/summarize-server/internal/modelstore"
	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/tokenizer"
	"github.com/cozy-creator/summarize-server/internal/utils/pathutil"

	"github.com/vbauerster/mpb/v7"
	"go.uber.org/zap"
)

const (
	DefaultBaseModel = "t5-base"
	DefaultOutputDir = "content-summarizer-final"

	// SmokeMinLength matches the shorter summaries expected from the sample dialogue.
	SmokeMinLength = 10
)

const SampleDialogue = `Hannah: Hey, do you have Betty's number?
Amanda: Lemme check
Hannah: <file_gif>
Amanda: Sorry, can't...`

var ErrEmptyDataset = errors.New("training dataset is empty")

func DefaultHyperparameters() runtime.Hyperparameters {
	return runtime.Hyperparameters{
		BatchSize:                 2,
		Epochs:                    3,
		LearningRate:              2e-5,
		WeightDecay:               0.01,
		GradientAccumulationSteps: 4,
		SaveTotalLimit:            3,
		LoggingSteps:              50,
		EvalStrategy:              "epoch",
	}
}

type Options struct {
	TrainPath      string
	ValidationPath string
	TestPath       string
	BaseModel      string
	OutputDir      string
	Device         string
	Smoke          bool
}

type Result struct {
	Train        *runtime.TrainResult
	Artifact     *artifact.Artifact
	SmokeSummary string
}

type Pipeline struct {
	backend  runtime.Backend
	resolver modelstore.Resolver
	logger   *zap.Logger
}

func NewPipeline(backend runtime.Backend, resolver modelstore.Resolver, logger *zap.Logger) *Pipeline {
	return &Pipeline{backend: backend, resolver: resolver, logger: logger}
}

func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.BaseModel == "" {
		opts.BaseModel = DefaultBaseModel
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Resolving base model", zap.String("locator", opts.BaseModel))
	base, err := p.resolver.Resolve(ctx, opts.BaseModel)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base model: %w", err)
	}
	tok, err := tokenizer.LoadFile(base.TokenizerPath)
	if err != nil {
		return nil, err
	}

	ds, err := LoadDatasets(opts.TrainPath, opts.ValidationPath, opts.TestPath)
	if err != nil {
		return nil, err
	}
	if len(ds.Train) == 0 {
		return nil, ErrEmptyDataset
	}
	p.logger.Info("Loaded datasets",
		zap.Int("train", len(ds.Train)),
		zap.Int("validation", len(ds.Validation)),
		zap.Int("test", len(ds.Test)),
	)

	devices, err := p.backend.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	device, err := modelstore.SelectDevice(devices, opts.Device)
	if err != nil {
		return nil, err
	}

	cfg := DefaultPreprocessConfig()
	progress := mpb.NewWithContext(ctx, mpb.WithOutput(progressOutput), mpb.WithRefreshRate(180*time.Millisecond))
	req := runtime.TrainRequest{
		BaseArtifactDir: base.Dir,
		OutputDir:       outputDir,
		Device:          device.String(),
		Hyperparameters: DefaultHyperparameters(),
		Train:           preprocessWithProgress(progress, "train", tok, ds.Train, cfg),
		Validation:      preprocessWithProgress(progress, "validation", tok, ds.Validation, cfg),
		Test:            preprocessWithProgress(progress, "test", tok, ds.Test, cfg),
	}
	progress.Wait()
	req.Hyperparameters.FP16 = device.IsAccelerator()

	p.logger.Info("Starting fine-tuning",
		zap.String("device", req.Device),
		zap.Bool("fp16", req.Hyperparameters.FP16),
		zap.String("output_dir", outputDir),
	)
	trained, err := p.backend.Train(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	p.logger.Info("Fine-tuning complete", zap.Int("steps", trained.Steps), zap.Any("test_metrics", trained.TestMetrics))

	if err := ensureTokenizer(base.TokenizerPath, outputDir); err != nil {
		return nil, err
	}

	art, err := artifact.Inspect(outputDir)
	if err != nil {
		return nil, fmt.Errorf("trained model is not servable: %w", err)
	}

	result := &Result{Train: trained, Artifact: art}
	if opts.Smoke {
		summary, err := p.smoke(ctx, outputDir, opts.Device)
		if err != nil {
			return nil, err
		}
		result.SmokeSummary = summary
	}

	return result, nil
}

// ensureTokenizer copies the base tokenizer when the runtime did not save one.
func ensureTokenizer(src, outputDir string) error {
	dst := filepath.Join(outputDir, artifact.TokenizerFile)
	if pathutil.Exists(dst) {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (p *Pipeline) smoke(ctx context.Context, outputDir, device string) (string, error) {
	store := modelstore.New(artifact.NewResolver(outputDir), p.backend,
		modelstore.WithDevice(device),
		modelstore.WithLogger(p.logger),
	)
	model, err := store.Load(ctx, outputDir)
	if err != nil {
		return "", err
	}
	defer store.Unload(context.WithoutCancel(ctx))

	cfg := generation.DefaultConfig()
	cfg.MinLength = SmokeMinLength
	res, err := generation.NewController(p.backend, cfg, generation.WithLogger(p.logger)).Generate(ctx, model, SampleDialogue)
	if err != nil {
		return "", err
	}

	p.logger.Info("Smoke summary", zap.String("summary", res.Summary))
	return res.Summary, nil
}

package training

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cozy-creator/summarize-server/internal/artifact"
	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/testutil"
	"github.com/cozy-creator/summarize-server/internal/tokenizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	progressOutput = io.Discard
}

func writeDatasets(t *testing.T) Options {
	t.Helper()

	dir := t.TempDir()
	data := "dialogue,summary\nhello world,the cat sat.\n,hello\n"
	opts := Options{
		TrainPath:      filepath.Join(dir, "train.csv"),
		ValidationPath: filepath.Join(dir, "validation.csv"),
		TestPath:       filepath.Join(dir, "test.csv"),
		BaseModel:      testutil.WriteArtifact(t),
		OutputDir:      filepath.Join(t.TempDir(), DefaultOutputDir),
	}
	for _, path := range []string{opts.TrainPath, opts.ValidationPath, opts.TestPath} {
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	}
	return opts
}

// saveWeights stands in for the runtime writing a checkpoint.
func saveWeights(t *testing.T) func(ctx context.Context, req runtime.TrainRequest) (*runtime.TrainResult, error) {
	return func(ctx context.Context, req runtime.TrainRequest) (*runtime.TrainResult, error) {
		testutil.WriteArtifactTo(t, req.OutputDir, testutil.ArtifactOptions{SkipTokens: true})
		return &runtime.TrainResult{
			OutputDir:   req.OutputDir,
			Steps:       3,
			TestMetrics: map[string]float64{"eval_loss": 1.25},
		}, nil
	}
}

func TestPreprocess(t *testing.T) {
	tok, err := tokenizer.New(strings.NewReader(testutil.TokenizerJSON))
	require.NoError(t, err)

	examples := Preprocess(tok, []Record{{Dialogue: "hello world", Summary: "the cat"}}, DefaultPreprocessConfig())
	require.Len(t, examples, 1)
	ex := examples[0]

	require.Len(t, ex.InputIDs, DefaultMaxInputLength)
	require.Len(t, ex.AttentionMask, DefaultMaxInputLength)
	require.Len(t, ex.Labels, DefaultMaxTargetLength)

	assert.Equal(t, []int{testutil.TokenSummarize, testutil.TokenColon, testutil.TokenHello, testutil.TokenWorld, testutil.EOSID}, ex.InputIDs[:5])
	assert.Equal(t, testutil.PadID, ex.InputIDs[5])
	assert.Equal(t, []int{1, 1, 1, 1, 1, 0}, ex.AttentionMask[:6])
	assert.Equal(t, []int{testutil.TokenThe, testutil.TokenCat, testutil.EOSID, testutil.PadID}, ex.Labels[:4])
}

func TestPreprocessTruncatesLabels(t *testing.T) {
	tok, err := tokenizer.New(strings.NewReader(testutil.TokenizerJSON))
	require.NoError(t, err)

	ex := Preprocess(tok, []Record{{Summary: strings.Repeat("cat ", 500)}}, DefaultPreprocessConfig())[0]
	require.Len(t, ex.Labels, DefaultMaxTargetLength)
	assert.Equal(t, testutil.EOSID, ex.Labels[DefaultMaxTargetLength-1])
}

func TestPipelineRun(t *testing.T) {
	opts := writeDatasets(t)
	opts.Smoke = true
	backend := testutil.NewFakeRuntime()
	backend.TrainFunc = saveWeights(t)

	p := NewPipeline(backend, artifact.NewResolver(t.TempDir()), zap.NewNop())
	result, err := p.Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, backend.Trainings, 1)
	req := backend.Trainings[0]
	assert.Equal(t, opts.BaseModel, req.BaseArtifactDir)
	assert.Equal(t, opts.OutputDir, req.OutputDir)
	assert.Equal(t, "cpu", req.Device)
	assert.Len(t, req.Train, 2)
	assert.Len(t, req.Validation, 2)
	assert.Len(t, req.Test, 2)

	hp := req.Hyperparameters
	assert.Equal(t, 2, hp.BatchSize)
	assert.Equal(t, 3, hp.Epochs)
	assert.Equal(t, 2e-5, hp.LearningRate)
	assert.Equal(t, 0.01, hp.WeightDecay)
	assert.Equal(t, 4, hp.GradientAccumulationSteps)
	assert.Equal(t, 3, hp.SaveTotalLimit)
	assert.Equal(t, 50, hp.LoggingSteps)
	assert.Equal(t, "epoch", hp.EvalStrategy)
	assert.False(t, hp.FP16)

	assert.Equal(t, opts.OutputDir, result.Artifact.Dir)
	assert.FileExists(t, filepath.Join(opts.OutputDir, artifact.TokenizerFile))
	assert.Equal(t, 1.25, result.Train.TestMetrics["eval_loss"])
	assert.True(t, strings.HasPrefix(result.SmokeSummary, "the cat sat."), result.SmokeSummary)

	require.Len(t, backend.Loads, 1)
	assert.Equal(t, opts.OutputDir, backend.Loads[0].ArtifactDir)
	assert.Len(t, backend.Unloads, 1)
}

func TestPipelineUsesFP16OnAccelerator(t *testing.T) {
	opts := writeDatasets(t)
	backend := testutil.NewFakeRuntime()
	backend.DeviceList = []runtime.Device{{Kind: runtime.DeviceCUDA, Available: true}}
	backend.TrainFunc = saveWeights(t)

	_, err := NewPipeline(backend, artifact.NewResolver(t.TempDir()), zap.NewNop()).Run(context.Background(), opts)
	require.NoError(t, err)

	req := backend.Trainings[0]
	assert.Equal(t, "cuda:0", req.Device)
	assert.True(t, req.Hyperparameters.FP16)
}

func TestPipelineRejectsUnservableOutput(t *testing.T) {
	opts := writeDatasets(t)
	backend := testutil.NewFakeRuntime()

	_, err := NewPipeline(backend, artifact.NewResolver(t.TempDir()), zap.NewNop()).Run(context.Background(), opts)
	assert.ErrorIs(t, err, artifact.ErrIncompatible)
}

func TestPipelineEmptyTrainSplit(t *testing.T) {
	opts := writeDatasets(t)
	require.NoError(t, os.WriteFile(opts.TrainPath, []byte("dialogue,summary\n"), 0644))

	_, err := NewPipeline(testutil.NewFakeRuntime(), artifact.NewResolver(t.TempDir()), zap.NewNop()).Run(context.Background(), opts)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

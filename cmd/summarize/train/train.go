package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/cozy-creator/summarize-server/internal/app"
	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/training"
	"github.com/cozy-creator/summarize-server/pkg/logger"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "train",
	Short: "Fine-tune a base checkpoint on dialogue/summary CSV files",
	RunE:  runTrain,
}

func init() {
	flags := Cmd.Flags()

	flags.String("train-file", "", "Training split CSV")
	flags.String("validation-file", "", "Validation split CSV")
	flags.String("test-file", "", "Test split CSV")
	flags.String("base-model", training.DefaultBaseModel, "Base checkpoint locator")
	flags.String("output-dir", training.DefaultOutputDir, "Directory the fine-tuned model is written to")
	flags.String("device", config.DefaultDevice, "Training device (auto, cpu, cuda, cuda:N, mps)")
	flags.Bool("smoke", true, "Summarize a sample dialogue with the trained model")
	flags.String("runtime-address", config.DefaultRuntimeAddress, "Address of the tensor runtime")

	Cmd.MarkFlagRequired("train-file")
	Cmd.MarkFlagRequired("validation-file")
	Cmd.MarkFlagRequired("test-file")

	config.MapFlag(flags, "runtime.address", "runtime-address")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg := config.MustGetConfig()
	flags := cmd.Flags()

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := training.Options{}
	opts.TrainPath, _ = flags.GetString("train-file")
	opts.ValidationPath, _ = flags.GetString("validation-file")
	opts.TestPath, _ = flags.GetString("test-file")
	opts.BaseModel, _ = flags.GetString("base-model")
	opts.OutputDir, _ = flags.GetString("output-dir")
	opts.Device, _ = flags.GetString("device")
	opts.Smoke, _ = flags.GetBool("smoke")

	backend := runtime.NewClient(cfg.Runtime, log.Named("runtime"))
	defer backend.Close()

	pipeline := training.NewPipeline(backend, app.NewResolver(cmd.Context(), cfg, log.Named("artifact")), log.Named("training"))
	result, err := pipeline.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"output_dir":    result.Artifact.Dir,
		"fingerprint":   result.Artifact.Fingerprint,
		"steps":         result.Train.Steps,
		"test_metrics":  result.Train.TestMetrics,
		"smoke_summary": result.SmokeSummary,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

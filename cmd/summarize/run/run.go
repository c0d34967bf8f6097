package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cozy-creator/summarize-server/internal/app"
	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/internal/modelstore"
	"github.com/cozy-creator/summarize-server/internal/rpc"
	"github.com/cozy-creator/summarize-server/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the summarization server",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", config.DefaultPort, "Port to run the HTTP server on")
	flags.String("host", "0.0.0.0", "Host to run the HTTP server on")
	flags.Int("rpc-port", config.DefaultRPCPort, "Port to run the RPC server on")
	flags.String("rpc-host", "0.0.0.0", "Host to run the RPC server on")
	flags.Int("rpc-workers", config.DefaultRPCWorkers, "Number of concurrent RPC requests")

	flags.String("model-name", config.DefaultModelName, "Model identifier (hf:<repo>, <org>/<name>, s3://bucket/prefix)")
	flags.String("model-path", "", "Local model directory; overrides --model-name")
	flags.String("device", config.DefaultDevice, "Device to place the model on (auto, cpu, cuda, cuda:N, mps)")

	flags.String("runtime-address", config.DefaultRuntimeAddress, "Address of the tensor runtime")
	flags.Int("runtime-timeout", config.DefaultRuntimeTimeout, "Runtime call timeout in seconds")
	flags.Int("generation-timeout", 0, "Per-request generation timeout in seconds, 0 to disable")

	flags.String("db-driver", config.DefaultDBDriver, "Inference log database driver (sqlite, pg)")
	flags.String("db-dsn", "", "Inference log DSN, empty to disable. Example: "+config.DefaultDBDSN)

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	mapFlags(Cmd)
}

func mapFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	keys := map[string]string{
		"port":               "port",
		"host":               "host",
		"rpc_port":           "rpc-port",
		"rpc_host":           "rpc-host",
		"rpc_workers":        "rpc-workers",
		"model.name":         "model-name",
		"model.path":         "model-path",
		"model.device":       "device",
		"runtime.address":    "runtime-address",
		"runtime.timeout":    "runtime-timeout",
		"generation.timeout": "generation-timeout",
		"db.driver":          "db-driver",
		"db.dsn":             "db-dsn",
		"s3.access_key":      "s3-access-key",
		"s3.secret_key":      "s3-secret-key",
		"s3.region_name":     "s3-region-name",
		"s3.endpoint_url":    "s3-endpoint-url",
	}
	for key, flag := range keys {
		config.MapFlag(flags, key, flag)
	}
}

func runApp(_ *cobra.Command, _ []string) error {
	a, err := app.NewApp(config.MustGetConfig(), app.WithDBInitialization())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config()
	logger := a.Logger

	ctx, stop := signal.NotifyContext(a.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)

	httpServer, err := server.NewServer(cfg, logger.Named("http"))
	if err != nil {
		return err
	}
	httpServer.SetupRoutes(a)
	go func() {
		errc <- httpServer.Start()
	}()

	rpcServer := rpc.NewServer(a.Summarizer, a.Gate, cfg.RPCWorkers, logger.Named("rpc"))
	go func() {
		errc <- rpcServer.ListenAndServe(fmt.Sprintf("%s:%d", cfg.RPCHost, cfg.RPCPort))
	}()

	// Load in the background; health reports unready until it finishes.
	go func() {
		if err := a.LoadModel(ctx); err != nil {
			var loadErr *modelstore.LoadError
			if errors.As(err, &loadErr) {
				logger.Error("Model not loaded, serving unready", zap.Error(err))
				return
			}
			logger.Error("Model load aborted", zap.Error(err))
		}
	}()

	select {
	case err = <-errc:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if stopErr := httpServer.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("Failed to stop HTTP server", zap.Error(stopErr))
	}
	if stopErr := rpcServer.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("Failed to stop RPC server", zap.Error(stopErr))
	}

	return err
}

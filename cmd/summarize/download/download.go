package cmd

import (
	"fmt"

	"github.com/cozy-creator/summarize-server/internal/app"
	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/pkg/logger"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "download [locator]",
	Short: "Fetch a model into the local cache without loading it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustGetConfig()

		locator := cfg.Model.Locator()
		if len(args) == 1 {
			locator = args[0]
		}

		log, err := logger.NewLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		resolver := app.NewResolver(cmd.Context(), cfg, log.Named("artifact"))
		art, err := resolver.Resolve(cmd.Context(), locator)
		if err != nil {
			return err
		}

		fmt.Printf("model:        %s\n", locator)
		fmt.Printf("path:         %s\n", art.Dir)
		fmt.Printf("architecture: %s\n", art.Config.Architecture())
		fmt.Printf("fingerprint:  %s\n", art.Fingerprint)
		return nil
	},
}

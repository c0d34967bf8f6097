package cmd

import (
	"fmt"
	"os"
	"strings"

	// Subcommands
	db "github.com/cozy-creator/summarize-server/cmd/summarize/db"
	download "github.com/cozy-creator/summarize-server/cmd/summarize/download"
	run "github.com/cozy-creator/summarize-server/cmd/summarize/run"
	train "github.com/cozy-creator/summarize-server/cmd/summarize/train"
	"github.com/cozy-creator/summarize-server/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:   "summarize",
	Short: "Text summarization server",
	Long:  "Serves a T5-family summarization model over HTTP and RPC, and fine-tunes new checkpoints for it",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(config.EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`, // convert hyphens to underscores
			`.`, `_`, // convert dots to underscores
		))
		viper.AutomaticEnv()
		config.BindEnvs(viper.GetViper())

		// Only the executing command's flags feed the config
		if err := config.BindFlags(viper.GetViper(), cmd.Flags()); err != nil {
			return err
		}

		// Load config and env files
		if err := config.LoadEnvAndConfigFiles(); err != nil {
			return err
		}

		return nil
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("summarize-home", "", "Path to the summarize home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")
	pflags.String("environment", "dev", "Environment configuration (dev, prod, test)")

	viper.BindPFlag("summarize_home", pflags.Lookup("summarize-home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))
	viper.BindPFlag("environment", pflags.Lookup("environment"))

	Cmd.AddCommand(run.Cmd, download.Cmd, train.Cmd, db.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harunnryd/fallback/pkg/config"
	"github.com/harunnryd/fallback/pkg/logging"
)

type rootOptions struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "fallbackd",
		Short:         "Deterministic smart-home commands with a fallback agent cascade",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(
		newServeCmd(opts),
		newProcessCmd(opts),
		newTranslateCmd(opts),
		newAgentsCmd(opts),
	)
	return root
}

// load reads the config file and initializes the process logger from it.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logging.InitLogger(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

// loadOptional is load for commands that also work without a config file.
// Defaults apply unless --config was given explicitly.
func (o *rootOptions) loadOptional(cmd *cobra.Command) (bool, error) {
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(o.configPath); err != nil {
			o.logger = logging.InitLogger(logging.Config{Level: "warn", Output: cmd.ErrOrStderr()})
			return false, nil
		}
	}
	return true, o.load(cmd)
}

// Package cmd provides the CLI commands for fainderqld.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fainderql/queryengine/internal/logging"
)

var cfgFile string

// NewRootCmd creates the root command for the fainderqld CLI.
func NewRootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "fainderqld",
		Short: "Hybrid percentile/keyword/column-name query engine",
		Long: `fainderqld evaluates the fainderql query DSL over a percentile
index, a column-name k-NN index and a full-text backend, combining the
three with boolean algebra.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")

	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		logCfg := logging.DefaultConfig()
		if debug {
			logCfg.Level = "debug"
		}
		logger, _, err := logging.Setup(logCfg)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newUpdateIndicesCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

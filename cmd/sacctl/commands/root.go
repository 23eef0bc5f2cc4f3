package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sac/internal/config"
	"sac/internal/logger"
)

var (
	verbose bool
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sacctl",
	Short: "Operator tools for the SAC attendance service",
	Long: `sacctl probes EcoleDirecte with the service credentials, keeps the
API token alive and reconciles Office 365 exports against the directory.

Configuration is read from .env and the environment, like the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Load()
		if verbose {
			logger.SetLevel("debug")
		} else {
			logger.SetLevel(config.Cfg.LogLevel)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every upstream request")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline of the command")

	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(edtCmd)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

// writeJSON prints v indented to stdout, or saves it to path.
func writeJSON(cmd *cobra.Command, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "saved to %s\n", path)
	return nil
}

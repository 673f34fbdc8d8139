package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	targetHost string
	verbose    bool
	jsonOutput bool
)

// DefaultConfigFile is read when --config is not given.
const DefaultConfigFile = "hostprov.yaml"

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hostprov",
		Short: "Idempotent host provisioning for self-hosted applications",
		Long: `hostprov turns a bare Linux host into one running a self-hosted web
application as a supervised service.

A run walks a fixed sequence of phases:
  sanitize -> dependencies -> runtime -> sources -> configuration -> service

Every step probes the host first and skips work that is already done, so
running hostprov again converges instead of repeating itself.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigFile, "provisioning file (YAML or CUE)")
	rootCmd.PersistentFlags().StringVar(&targetHost, "host", "", "provision [user@]host[:port] over SSH instead of the configured target")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newApplyCommand(version))
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newSanitizeCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

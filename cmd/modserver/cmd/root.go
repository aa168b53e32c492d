// Package cmd implements the modserver command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("modserver v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command for the modserver application
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modserver",
		Short: "modserver - serve an app assembled from modules and resource directories",
		Long: `modserver assembles a runtime configuration from registered modules, the
app settings file and the resources directory, and serves it over HTTP.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("config", "", "server options file (yaml, json or toml)")
	cmd.PersistentFlags().String("env-file", "", "file of MODSERVER_* variables (default .env when present)")
	addOptionFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewCheckCommand())
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

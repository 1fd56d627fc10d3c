package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	serve := NewServeCommand()
	rootCmd := &cobra.Command{
		Use:           "tinyfm",
		Short:         "Browse, view and download a directory tree over HTTP",
		Long:          `tinyfm serves one directory over HTTP behind a login form. Paths are confined to the root.`,
		Args:          serve.Args,
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Flags().AddFlagSet(serve.Flags())
	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(NewPasswdCommand())
	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

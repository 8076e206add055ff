// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for cursorbridge.
// It implements subcommands to run statements against a backend, serve a
// backend over gRPC and manage the saved database connection, using the
// Cobra CLI framework and pterm for terminal output.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"cursorbridge/cli/internal/config"
	"cursorbridge/cli/internal/logging"
)

var (
	showVersion bool
	verbose     bool

	// cfg and logger are set before any subcommand runs.
	cfg    = config.Defaults()
	logger = slog.New(slog.DiscardHandler)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "cursorbridge",
	Short:         "Run statements through a uniform response bridge",
	Long:          `cursorbridge executes statements against an in-memory store, PostgreSQL or a remote bridge server and reports every response in order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			pterm.Warning.Println(logging.PresentError("Failed to load config, using defaults", err))
		}
		cfg = loaded

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger = logging.NewLogger(level, os.Stderr)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("cursorbridge %s\n", Version)
			return nil
		}
		// If no flag is set, show help
		return cmd.Help()
	},
}

// Execute runs the CLI application.
// It executes the root command and handles any errors that occur during execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version information")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug output")
}

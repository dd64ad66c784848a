// Package cmd implements the CLI commands for cablewatch.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cablewatch/cablewatch/internal/config"
	"github.com/cablewatch/cablewatch/internal/observability"
	"github.com/cablewatch/cablewatch/internal/segment"
	"github.com/cablewatch/cablewatch/internal/timeline"
	"github.com/cablewatch/cablewatch/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// cfg is the resolved configuration, loaded in PersistentPreRunE before any
// subcommand runs.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "cablewatch",
	Short:   "Live-stream capture archive and its offline tooling",
	Version: version.Short(),
	Long: `cablewatch records a live broadcast stream into an archive of fixed
duration segments and provides the tooling around it: named timelines over
the archive, speech extraction for the external recognition collaborator,
and banner frame extraction for the OCR pipeline.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an Execute error to a process exit code. Argument and
// timeline errors are the operator's fault and exit 2; everything else is 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, timeline.ErrInvalidName) ||
		errors.Is(err, timeline.ErrReservedName) ||
		errors.Is(err, timeline.ErrNotFound) ||
		errors.Is(err, segment.ErrMalformedName) {
		return 2
	}
	var uerr *usageError
	if errors.As(err, &uerr) {
		return 2
	}
	return 1
}

// usageError marks an argument error that should exit 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initConfigAndLogging()
	}

	// These flags are NOT bound to viper. We check whether they were
	// explicitly set using Changed() and only then override config/env
	// values, preserving the priority CLI flag > env var > config > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cablewatch.toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfigAndLogging loads the configuration and installs the default
// logger. Config keys come from the TOML file and CABLEWATCH_ environment
// variables; the logging flags override both when explicitly set.
func initConfigAndLogging() error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	level := cfg.LogLevel()
	format := cfg.LogFormat()
	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	})
	observability.SetDefault(logger)

	if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", cfgFile)
	}
	return nil
}

// archive returns the segment archive configured under INGEST_DATADIR.
func archive() segment.Archive {
	return segment.NewArchive(cfg.IngestDataDir())
}

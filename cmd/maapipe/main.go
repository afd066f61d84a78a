package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	flagFormat   string
	flagVerbose  bool
	flagDialect  string
	flagManifest string
	flagResource string
	flagRules    string
)

// logger is built in PersistentPreRunE from --verbose.
var logger = zap.NewNop()

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// errFindings makes the process exit 1 after the findings were printed.
var errFindings = errors.New("errors found")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled && !errors.Is(err, errFindings) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "maapipe",
	Short:         "Static analysis for MaaFramework pipeline projects",
	Long:          "maapipe indexes a project's interface.json and pipeline files, reports broken references and inconsistencies, and answers task flow queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if flagVerbose {
			config = zap.NewDevelopmentConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging to stderr")
	rootCmd.PersistentFlags().StringVar(&flagDialect, "dialect", "", "pipeline dialect: framework|legacy (default from .maapipe.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagManifest, "manifest", "", "manifest file name inside the project (default interface.json)")
	rootCmd.PersistentFlags().StringVar(&flagResource, "resource", "", "resource to analyze (default: the first declared)")
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", "", "directory of .risor rule scripts")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(unusedCmd)
	rootCmd.AddCommand(hotspotsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
}

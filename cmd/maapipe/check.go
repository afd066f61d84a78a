package main

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/jward/maapipe"
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Report problems in a pipeline project",
	Long:  "Loads the project once, runs every built-in check and the configured rule scripts, and exits with status 1 when an error-level problem was found.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openProject(ctx, args, false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer p.Close()

	diags, err := p.diagnose(ctx)
	if err != nil {
		// Rule failures are reported but the findings are still printed.
		logger.Warn(err.Error())
	}
	results := toCLIDiagnostics(p.root, diags, newSources())
	total := len(results)
	if err := outputResult(cmd, CLIResult{Command: "check", Results: results, TotalCount: &total}); err != nil {
		return err
	}
	if hasErrors(diags) {
		return errFindings
	}
	return nil
}

func hasErrors(diags []maapipe.Diagnostic) bool {
	return slices.ContainsFunc(diags, func(d maapipe.Diagnostic) bool {
		return d.Level == maapipe.LevelError
	})
}

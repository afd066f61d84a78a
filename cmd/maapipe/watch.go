package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/maapipe"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-check the project whenever its files change",
	Long:  "Keeps the project loaded, prints the diagnostics once, and prints them again after every batch of file changes until interrupted.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := openProject(ctx, args, true)
	if err != nil {
		return outputError(cmd, err)
	}
	defer p.Close()

	// Events arrive on the flush goroutine; report once per burst.
	changed := make(chan struct{}, 1)
	cancel := p.iface.Subscribe(func(e maapipe.Event) {
		logger.Debug("watch: event", zap.Stringer("kind", e.Kind), zap.String("path", e.Path))
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	report := func() {
		diags, err := p.diagnose(ctx)
		if err != nil {
			logger.Warn(err.Error())
		}
		if flagFormat == "text" {
			fmt.Fprintf(cmd.OutOrStdout(), "\n[%s] %s\n", time.Now().Format(time.TimeOnly), p.root)
		}
		total := len(diags)
		_ = outputResult(cmd, CLIResult{
			Command:    "watch",
			Results:    toCLIDiagnostics(p.root, diags, newSources()),
			TotalCount: &total,
		})
	}

	report()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			report()
		}
	}
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/maapipe/internal/store"
)

var flagDB string

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Write the task index into a SQLite database",
	Long:  "Exports the layers, files, tasks, declarations, references and images of the active resource. An existing database is overwritten in place.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagDB, "db", "", "database path (default: .maapipe/index.db in the project)")
}

func runExport(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd.Context(), args, false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer p.Close()

	dbPath := resolveDBPath(p.root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return outputError(cmd, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err))
	}
	st, err := store.NewStore(dbPath)
	if err != nil {
		return outputError(cmd, err)
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return outputError(cmd, err)
	}
	if err := p.iface.Snapshot().Export(st); err != nil {
		return outputError(cmd, err)
	}
	rows, err := st.Counts()
	if err != nil {
		return outputError(cmd, err)
	}
	return outputResult(cmd, CLIResult{Command: "export", Results: CLIExport{Database: dbPath, Rows: rows}})
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(root string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(root, flagDB)
	}
	return filepath.Join(root, ".maapipe", "index.db")
}

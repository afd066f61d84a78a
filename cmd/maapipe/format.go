package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jward/maapipe"
	"github.com/jward/maapipe/internal/textpos"
	"github.com/jward/maapipe/internal/watch"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	fileColor    = color.New(color.Bold)
	caretColor   = color.New(color.FgGreen)
)

var validFormats = []string{"json", "text"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

// outputResult writes a CLIResult to the command's stdout in the selected
// format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	w := cmd.OutOrStdout()
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: cmd.Name(), Error: err.Error()})
	return err
}

func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIDiagnostic:
		formatDiagnosticsText(w, v)
	case []CLITask:
		formatTasksText(w, v)
	case CLIFlowGraph:
		formatGraphText(w, v)
	case []CLIHotspot:
		formatHotspotsText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case CLIExport:
		formatExportText(w, v)
	case nil:
		// No output for nil results (e.g. graph of an unknown task).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// sources caches file text for positions and excerpts.
type sources struct {
	mu    sync.Mutex
	index map[string]*textpos.Index
	text  map[string]string
}

func newSources() *sources {
	return &sources{index: map[string]*textpos.Index{}, text: map[string]string{}}
}

// Get implements content.Loader over the cache.
func (s *sources) Get(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text, ok := s.text[path]; ok {
		return text, true
	}
	text, ok := watch.OSLoader{}.Get(path)
	if ok {
		s.text[path] = text
	}
	return text, ok
}

func (s *sources) excerpt(path string, offset, length int) (string, string) {
	text, _ := s.Get(path)
	s.mu.Lock()
	x, ok := s.index[path]
	if !ok {
		x = textpos.New(text)
		s.index[path] = x
	}
	s.mu.Unlock()
	return x.Excerpt(offset, length)
}

// toCLIDiagnostics renders diags with paths relative to root.
func toCLIDiagnostics(root string, diags []maapipe.Diagnostic, src *sources) []CLIDiagnostic {
	resolve := maapipe.TextResolver(src)
	out := make([]CLIDiagnostic, 0, len(diags))
	for _, d := range diags {
		start, end, brief := maapipe.BuildDiagnosticMessage(root, d, resolve)
		source, marker := src.excerpt(d.File, d.Offset, d.Length)
		out = append(out, CLIDiagnostic{
			Level:     d.Level.String(),
			Type:      string(d.Type),
			File:      relPath(root, d.File),
			StartLine: start.Line,
			StartCol:  start.Character,
			EndLine:   end.Line,
			EndCol:    end.Character,
			Message:   brief,
			source:    source,
			marker:    marker,
		})
	}
	return out
}

// formatDiagnosticsText prints one block per diagnostic: the location line,
// the source line and a caret marker under the range.
func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	counts := map[string]int{}
	for _, d := range diags {
		counts[d.Level]++
		fmt.Fprintf(w, "%s: %s %s %s\n",
			fileColor.Sprintf("%s:%d:%d", d.File, d.StartLine+1, d.StartCol+1),
			levelColor(d.Level).Sprint(d.Level),
			d.Message,
			color.New(color.Faint).Sprintf("[%s]", d.Type),
		)
		if strings.TrimSpace(d.source) == "" {
			continue
		}
		fmt.Fprintf(w, "    %s\n    %s\n", d.source, caretColor.Sprint(d.marker))
	}
	if len(diags) == 0 {
		fmt.Fprintln(w, "No problems found.")
		return
	}
	fmt.Fprintf(w, "%d error(s), %d warning(s), %d info\n", counts["error"], counts["warning"], counts["info"])
}

func levelColor(level string) *color.Color {
	switch level {
	case "error":
		return errorColor
	case "warning":
		return warningColor
	}
	return infoColor
}

func formatTasksText(w io.Writer, tasks []CLITask) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFILE\tLINE\tOVERRIDES")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", t.Name, t.File, t.StartLine+1, t.Overrides)
	}
	tw.Flush()
}

func formatGraphText(w io.Writer, g CLIFlowGraph) {
	fmt.Fprintf(w, "%s (depth %d)\n", g.Root, g.Depth)
	for _, n := range g.Nodes {
		if n.Depth == 0 {
			continue
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", n.Depth), n.Name)
	}
	if len(g.Edges) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tFIELD\tFLAGS")
	for _, e := range g.Edges {
		var flags []string
		if e.JumpBack {
			flags = append(flags, "jump_back")
		}
		if e.Anchor {
			flags = append(flags, "anchor")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.From, e.To, e.Field, strings.Join(flags, ","))
	}
	tw.Flush()
}

func formatHotspotsText(w io.Writer, hotspots []CLIHotspot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPREDECESSORS\tSUCCESSORS")
	for _, h := range hotspots {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", h.Name, h.Predecessors, h.Successors)
	}
	tw.Flush()
}

func formatExportText(w io.Writer, e CLIExport) {
	fmt.Fprintf(w, "Database: %s\n", e.Database)
	for _, table := range []string{"layers", "files", "tasks", "decls", "refs", "images"} {
		fmt.Fprintf(w, "  %s: %d\n", table, e.Rows[table])
	}
}

// relPath returns path relative to root when it lies inside it.
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

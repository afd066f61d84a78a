package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/maapipe"
)

var (
	flagDepth   int
	flagReverse bool
	flagTop     int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [path]",
	Short: "List the tasks of the active resource",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTasks,
}

var graphCmd = &cobra.Command{
	Use:   "graph <task> [path]",
	Short: "Walk the task flow from a task",
	Long:  "Lists the tasks reachable from <task> through next, on_error and the other transition lists. With --reverse it lists the tasks that lead to <task> instead.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runGraph,
}

var unusedCmd = &cobra.Command{
	Use:   "unused [path]",
	Short: "List tasks that nothing references",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUnused,
}

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots [path]",
	Short: "Rank tasks by the number of tasks leading to them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHotspots,
}

func init() {
	graphCmd.Flags().IntVar(&flagDepth, "depth", 5, "maximum walk depth (max 100)")
	graphCmd.Flags().BoolVar(&flagReverse, "reverse", false, "walk predecessors instead of successors")
	hotspotsCmd.Flags().IntVar(&flagTop, "top", 10, "number of tasks to list")
}

func runTasks(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd.Context(), args, false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer p.Close()

	snap := p.iface.Snapshot()
	resolve := maapipe.TextResolver(newSources())
	names := snap.QueryTaskList()
	results := make([]CLITask, 0, len(names))
	for _, name := range names {
		res := snap.ResolveTask(name)
		task := CLITask{Name: name, Overrides: len(res.Patches)}
		if res.Found() {
			loc := res.Decl.Loc()
			pos := resolve(loc.File, loc.Offset)
			task.File = relPath(p.root, loc.File)
			task.StartLine = pos.Line
			task.StartCol = pos.Character
		}
		results = append(results, task)
	}
	total := len(results)
	return outputResult(cmd, CLIResult{Command: "tasks", Results: results, TotalCount: &total})
}

func runGraph(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd.Context(), args[1:], false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer p.Close()

	snap := p.iface.Snapshot()
	walk := snap.TransitiveSuccessors
	if flagReverse {
		walk = snap.TransitivePredecessors
	}
	g, err := walk(args[0], flagDepth)
	if err != nil {
		return outputError(cmd, err)
	}
	if g == nil {
		return outputError(cmd, fmt.Errorf("unknown task %q", args[0]))
	}
	return outputResult(cmd, CLIResult{Command: "graph", Results: flowGraphToCLI(g)})
}

func runUnused(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd.Context(), args, false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer p.Close()

	unused := p.iface.Snapshot().UnusedTasks()
	if unused == nil {
		unused = []string{}
	}
	total := len(unused)
	return outputResult(cmd, CLIResult{Command: "unused", Results: unused, TotalCount: &total})
}

func runHotspots(cmd *cobra.Command, args []string) error {
	if flagTop < 0 {
		return outputError(cmd, errors.New("--top must be non-negative"))
	}
	p, err := openProject(cmd.Context(), args, false)
	if err != nil {
		return outputError(cmd, err)
	}
	defer p.Close()

	hotspots, err := p.iface.Snapshot().Hotspots(flagTop)
	if err != nil {
		return outputError(cmd, err)
	}
	results := make([]CLIHotspot, 0, len(hotspots))
	for _, h := range hotspots {
		results = append(results, CLIHotspot{Name: h.Name, Predecessors: h.Predecessors, Successors: h.Successors})
	}
	return outputResult(cmd, CLIResult{Command: "hotspots", Results: results})
}

func flowGraphToCLI(g *maapipe.FlowGraph) CLIFlowGraph {
	out := CLIFlowGraph{
		Root:  g.Root,
		Depth: g.Depth,
		Nodes: make([]CLIFlowNode, 0, len(g.Nodes)),
		Edges: make([]CLIFlowEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		out.Nodes = append(out.Nodes, CLIFlowNode{Name: n.Name, Depth: n.Depth})
	}
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, CLIFlowEdge{
			From:     e.From,
			To:       e.To,
			Field:    e.Field,
			JumpBack: e.JumpBack,
			Anchor:   e.Anchor,
		})
	}
	return out
}

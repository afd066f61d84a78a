package maapipe

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/jward/maapipe/internal/parser"
)

// FlowGraph is the part of the task flow reachable from a root task.
// The flow is built once per call and walked with BFS.
type FlowGraph struct {
	Root  string
	Nodes []FlowNode
	Edges []FlowEdge
	Depth int // deepest level reached, may be below the requested maximum
}

// FlowNode is a task with its distance from the root.
type FlowNode struct {
	Name  string
	Depth int
}

// FlowEdge is one next-family transition between two tasks.
type FlowEdge struct {
	From     string
	To       string
	Field    string
	JumpBack bool
	Anchor   bool
	Loc      Location
}

// flowData holds forward and reverse adjacency of the effective task flow.
type flowData struct {
	forward map[string][]FlowEdge
	reverse map[string][]FlowEdge
}

// Successors returns the outgoing transitions of the effective declaration
// of name. A field set by a pipeline_override replaces the same field of the
// declaration below it.
func (s *Snapshot) Successors(name string) []FlowEdge {
	return s.successors(name, s.anchorOwners())
}

// anchorOwners maps each anchor to the task of its highest precedence
// declaration.
func (s *Snapshot) anchorOwners() map[string]string {
	anchors := map[string]string{}
	for _, a := range s.QueryAnchorList() {
		if _, seen := anchors[a.Name]; !seen {
			anchors[a.Name] = a.Task
		}
	}
	return anchors
}

func (s *Snapshot) successors(name string, anchors map[string]string) []FlowEdge {
	res := s.ResolveTask(name)
	owner := map[string]int{}
	chain := res.Chain()
	for n := len(chain) - 1; n >= 0; n-- {
		for _, r := range chain[n].Info.Refs {
			if r.Kind == parser.RefTaskNext || r.Kind == parser.RefMaaExpr {
				owner[r.Field] = n
			}
		}
	}

	var out []FlowEdge
	for n, t := range chain {
		for _, r := range t.Info.Refs {
			if r.Kind != parser.RefTaskNext && r.Kind != parser.RefMaaExpr {
				continue
			}
			if owner[r.Field] != n {
				continue
			}
			to := r.Target
			if r.Kind == parser.RefMaaExpr {
				to = exprBase(to)
			}
			if r.Anchor {
				target, ok := anchors[r.Target]
				if !ok {
					continue
				}
				to = target
			}
			out = append(out, FlowEdge{
				From:     name,
				To:       to,
				Field:    r.Field,
				JumpBack: r.JumpBack,
				Anchor:   r.Anchor,
				Loc:      r.Loc,
			})
		}
	}
	return out
}

func (s *Snapshot) buildFlow() *flowData {
	data := &flowData{
		forward: map[string][]FlowEdge{},
		reverse: map[string][]FlowEdge{},
	}
	names := s.QueryTaskList()
	for _, name := range s.Pseudo.Names() {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	anchors := s.anchorOwners()
	for _, name := range names {
		for _, e := range s.successors(name, anchors) {
			data.forward[e.From] = append(data.forward[e.From], e)
			data.reverse[e.To] = append(data.reverse[e.To], e)
		}
	}
	return data
}

// Predecessors returns the transitions leading into name.
func (s *Snapshot) Predecessors(name string) []FlowEdge {
	return s.buildFlow().reverse[name]
}

// TransitiveSuccessors walks the flow forward from name up to maxDepth.
// maxDepth of 0 returns only the root. Negative is an error. Capped at 100.
// Returns nil, nil when name is not declared.
func (s *Snapshot) TransitiveSuccessors(name string, maxDepth int) (*FlowGraph, error) {
	return s.walk("transitive successors", name, maxDepth, true)
}

// TransitivePredecessors walks the flow backward from name up to maxDepth,
// with the same limits as TransitiveSuccessors.
func (s *Snapshot) TransitivePredecessors(name string, maxDepth int) (*FlowGraph, error) {
	return s.walk("transitive predecessors", name, maxDepth, false)
}

func (s *Snapshot) walk(op, name string, maxDepth int, forward bool) (*FlowGraph, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("%s: maxDepth must be non-negative, got %d", op, maxDepth)
	}
	maxDepth = min(maxDepth, 100)

	res := s.ResolveTask(name)
	if !res.Found() && len(res.Patches) == 0 {
		return nil, nil
	}

	result := &FlowGraph{
		Root:  name,
		Nodes: []FlowNode{{Name: name, Depth: 0}},
		Edges: []FlowEdge{},
	}
	if maxDepth == 0 {
		return result, nil
	}

	data := s.buildFlow()
	adj := data.forward
	if !forward {
		adj = data.reverse
	}
	next := func(e FlowEdge) string {
		if forward {
			return e.To
		}
		return e.From
	}

	visited := map[string]int{name: 0}
	type bfsEntry struct {
		name  string
		depth int
	}
	queue := []bfsEntry{{name: name, depth: 0}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= maxDepth {
			continue
		}
		for _, e := range adj[current.name] {
			n := next(e)
			if _, seen := visited[n]; seen {
				continue
			}
			depth := current.depth + 1
			visited[n] = depth
			result.Depth = max(result.Depth, depth)
			queue = append(queue, bfsEntry{name: n, depth: depth})
		}
	}

	for n, depth := range visited {
		if n != name {
			result.Nodes = append(result.Nodes, FlowNode{Name: n, Depth: depth})
		}
	}
	slices.SortFunc(result.Nodes, func(a, b FlowNode) int {
		return cmp.Or(cmp.Compare(a.Depth, b.Depth), cmp.Compare(a.Name, b.Name))
	})

	// Keep edges whose both ends were visited.
	for from, edges := range data.forward {
		if _, ok := visited[from]; !ok {
			continue
		}
		for _, e := range edges {
			if _, ok := visited[e.To]; ok {
				result.Edges = append(result.Edges, e)
			}
		}
	}
	slices.SortFunc(result.Edges, func(a, b FlowEdge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To), cmp.Compare(a.Field, b.Field))
	})
	return result, nil
}

// HotspotResult is a task with its fan-in and fan-out in the flow.
type HotspotResult struct {
	Name         string
	Predecessors int
	Successors   int
}

// Hotspots returns the topN tasks with the most incoming transitions.
// topN of 0 returns an empty list. Negative is an error.
func (s *Snapshot) Hotspots(topN int) ([]HotspotResult, error) {
	if topN < 0 {
		return nil, fmt.Errorf("hotspots: topN must be non-negative, got %d", topN)
	}
	if topN == 0 {
		return []HotspotResult{}, nil
	}
	data := s.buildFlow()
	var items []HotspotResult
	for _, name := range s.QueryTaskList() {
		if len(data.reverse[name]) == 0 {
			continue
		}
		items = append(items, HotspotResult{
			Name:         name,
			Predecessors: len(data.reverse[name]),
			Successors:   len(data.forward[name]),
		})
	}
	slices.SortFunc(items, func(a, b HotspotResult) int {
		return cmp.Or(cmp.Compare(b.Predecessors, a.Predecessors), cmp.Compare(a.Name, b.Name))
	})
	if len(items) > topN {
		items = items[:topN]
	}
	if items == nil {
		items = []HotspotResult{}
	}
	return items, nil
}

// UnusedTasks returns tasks that nothing references: no task-shaped ref in
// any layer and no manifest entry names them.
func (s *Snapshot) UnusedTasks() []string {
	used := map[string]bool{}
	for _, l := range s.AllLayers() {
		for _, r := range l.MergedRefs() {
			if r.Kind.IsTaskShaped() && !r.Anchor {
				used[exprBase(r.Target)] = true
			}
		}
	}
	var out []string
	for _, name := range s.QueryTaskList() {
		if !used[name] {
			out = append(out, name)
		}
	}
	return out
}

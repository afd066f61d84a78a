package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIDiagnostic is a diagnostic with its rendered text and range. Lines and
// columns are 0-based; columns count UTF-16 code units.
type CLIDiagnostic struct {
	Level     string `json:"level"`
	Type      string `json:"type"`
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
	Message   string `json:"message"`

	// source and marker are the excerpt shown in text output.
	source string
	marker string
}

// CLITask is a task with the location of its winning declaration.
type CLITask struct {
	Name      string `json:"name"`
	File      string `json:"file,omitempty"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	// Overrides counts the manifest entries patching the task.
	Overrides int `json:"overrides,omitempty"`
}

// CLIFlowNode is a task reached by a graph walk.
type CLIFlowNode struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
}

// CLIFlowEdge is a transition between two tasks.
type CLIFlowEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Field    string `json:"field"`
	JumpBack bool   `json:"jump_back,omitempty"`
	Anchor   bool   `json:"anchor,omitempty"`
}

// CLIFlowGraph is the result of a graph walk.
type CLIFlowGraph struct {
	Root  string        `json:"root"`
	Depth int           `json:"depth"`
	Nodes []CLIFlowNode `json:"nodes"`
	Edges []CLIFlowEdge `json:"edges"`
}

// CLIHotspot is a task ranked by fan-in.
type CLIHotspot struct {
	Name         string `json:"name"`
	Predecessors int    `json:"predecessors"`
	Successors   int    `json:"successors"`
}

// CLIExport summarizes a finished export.
type CLIExport struct {
	Database string         `json:"database"`
	Rows     map[string]int `json:"rows"`
}

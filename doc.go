// Package maapipe analyzes MaaFramework pipeline projects incrementally.
// It indexes the project manifest (interface.json) and the pipeline JSON
// files of the active resource, keeps that index current as files change,
// and answers navigation, flow and diagnostic queries against immutable
// snapshots.
//
// # Model
//
// A project is rooted at the directory holding the manifest. The manifest
// declares resources; each resource lists one or more resource paths. Every
// path becomes a shadowing layer: a task declared by an earlier path hides
// the same name in later paths. The manifest's pipeline_override blocks form
// a patching layer in front of them that overlays fields of the real
// declaration instead of hiding it.
//
// Reference checks run per layer and see only that layer and the paths
// listed before it, so a task in the first path that names a task declared
// only in a later path is reported as unknown-task. Manifest checks and
// [Snapshot.HasTask] see every path, so the same task is a valid entry.
// Which direction the resource loader actually resolves in is still to be
// confirmed against MaaFramework; if later paths turn out to be visible from
// earlier ones, scopeFor in diagnostic.go is the one place to change.
//
// Files are parsed with a tolerant JSON parser, so a half-typed document
// still yields the tasks and references that are complete.
//
// # Usage
//
// Create an Interface with a loader and a watcher, load it, and query a
// snapshot:
//
//	i := maapipe.New(root, watch.OSLoader{}, watch.NewFSWatcher(logger),
//		maapipe.WithLogger(logger))
//	defer i.Close()
//
//	if err := i.Load(ctx); err != nil { ... }
//	if err := i.Flush(ctx); err != nil { ... }
//
//	snap := i.Snapshot()
//	for _, d := range snap.Diagnose() { ... }
//
// File events flush on their own after the debounce delay; [Interface.Flush]
// forces it. [Interface.Subscribe] reports manifest reloads, resource path
// changes and bundle reloads.
//
// # Queries
//
// A [Snapshot] is never mutated, so it may be shared between goroutines:
//
//   - [Snapshot.ResolveTask] finds the winning declaration and its overrides.
//   - [Snapshot.DefinitionsOf] and [Snapshot.ReferencesTo] serve navigation.
//   - [Snapshot.Successors], [Snapshot.TransitiveSuccessors] and their
//     predecessor forms walk the task flow.
//   - [Snapshot.UnusedTasks] and [Snapshot.Hotspots] summarize it.
//   - [Snapshot.Diagnose] runs every built-in check.
//   - [Snapshot.RunRules] runs project rule scripts written in Risor.
//   - [Snapshot.Export] writes the index into SQLite.
//
// [BuildDiagnosticMessage] renders a [Diagnostic] as text and a range, and
// [Workspace] manages the Interfaces of several project roots.
package maapipe

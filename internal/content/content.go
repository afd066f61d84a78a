// Package content implements the debounced change-coalescing engine that
// keeps an in-memory index in step with a directory tree.
//
// A Manager receives file events from a Watcher, folds them into two pending
// sets (changed and removed) and applies them to a Delegate in batches called
// flushes. At most one flush runs at a time and at most one more is pending,
// however many events or Flush calls arrive.
package content

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrStopped is returned by Load and Flush after Stop.
var ErrStopped = errors.New("content: manager stopped")

// Loader supplies file text. A missing or unreadable file reports false.
type Loader interface {
	Get(path string) (string, bool)
}

// Handler receives events for one watch. All paths are absolute.
type Handler struct {
	// Filter scopes the watch. Directories rejected here are not descended.
	Filter      func(path string, isDir bool) bool
	FileAdded   func(path string)
	FileChanged func(path string)
	FileDeleted func(path string)
}

// Watch is an installed watch.
type Watch interface {
	Stop()
}

// Watcher installs watches. Files that already exist under root when the
// watch is installed are reported through FileAdded.
type Watcher interface {
	Watch(root string, h Handler) (Watch, error)
}

// Delegate is the index a Manager maintains. Paths are slash-separated and
// relative to the Manager root; full is the absolute path.
//
// Reset, LoadFile and DeleteFile are never called concurrently with each
// other. FilterFile and NeedContent may be called from watcher goroutines
// and must not depend on mutable delegate state.
type Delegate interface {
	FilterFile(rel string, isDir bool) bool
	NeedContent(rel string) bool
	Reset()
	// LoadFile adds or replaces a file. content is nil when NeedContent
	// reported false for rel.
	LoadFile(rel, full string, content *string)
	DeleteFile(rel, full string)
}

// Flusher is implemented by delegates that want to publish a snapshot after
// each flush.
type Flusher interface {
	Flushed(stats Stats)
}

// Stats summarizes one flush.
type Stats struct {
	Loaded  int
	Deleted int
}

// Empty reports whether the flush applied nothing.
func (s Stats) Empty() bool {
	return s.Loaded == 0 && s.Deleted == 0
}

// relPath maps an absolute path under root to the slash-separated relative
// form used by delegates. It returns "" for root itself and for paths outside
// root.
func relPath(root, full string) string {
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == "." {
		return ""
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return ""
	}
	return rel
}

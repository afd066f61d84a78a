package watch

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jward/maapipe/internal/content"
)

// Memory is an in-memory file tree implementing content.Loader and
// content.Watcher. Writes notify matching watches synchronously, which makes
// it suitable for tests and for hosts that index unsaved buffers.
type Memory struct {
	mu      sync.Mutex
	files   map[string]string
	watches map[int]*memWatch
	next    int
}

type memWatch struct {
	mem  *Memory
	id   int
	root string
	h    content.Handler
}

// NewMemory returns an empty tree. files seeds it without notifications.
func NewMemory(files map[string]string) *Memory {
	m := &Memory{files: map[string]string{}, watches: map[int]*memWatch{}}
	for p, text := range files {
		m.files[filepath.Clean(p)] = text
	}
	return m
}

// Get returns the text of path.
func (m *Memory) Get(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.files[filepath.Clean(path)]
	return text, ok
}

// Write creates or replaces path and notifies watches.
func (m *Memory) Write(path, text string) {
	path = filepath.Clean(path)
	m.mu.Lock()
	_, existed := m.files[path]
	m.files[path] = text
	watches := m.matching(path)
	m.mu.Unlock()

	for _, w := range watches {
		if existed {
			w.h.FileChanged(path)
		} else {
			w.h.FileAdded(path)
		}
	}
}

// Remove deletes path, or every file below it when path is a directory, and
// notifies watches.
func (m *Memory) Remove(path string) {
	path = filepath.Clean(path)
	prefix := path + string(filepath.Separator)
	m.mu.Lock()
	var gone []string
	for p := range m.files {
		if p == path || strings.HasPrefix(p, prefix) {
			gone = append(gone, p)
			delete(m.files, p)
		}
	}
	slices.Sort(gone)
	type note struct {
		w    *memWatch
		path string
	}
	var notes []note
	for _, p := range gone {
		for _, w := range m.matching(p) {
			notes = append(notes, note{w, p})
		}
	}
	m.mu.Unlock()

	for _, n := range notes {
		n.w.h.FileDeleted(n.path)
	}
}

// Watch registers h for root and reports the accepted files already present.
func (m *Memory) Watch(root string, h content.Handler) (content.Watch, error) {
	m.mu.Lock()
	w := &memWatch{mem: m, id: m.next, root: filepath.Clean(root), h: h}
	m.next++
	m.watches[w.id] = w
	var existing []string
	for p := range m.files {
		existing = append(existing, p)
	}
	m.mu.Unlock()

	slices.Sort(existing)
	for _, p := range existing {
		if w.accepts(p) {
			h.FileAdded(p)
		}
	}
	return w, nil
}

// Watches returns the number of live watches.
func (m *Memory) Watches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

// matching returns the watches that accept path. m.mu must be held.
func (m *Memory) matching(path string) []*memWatch {
	var out []*memWatch
	for _, id := range sortedIDs(m.watches) {
		if w := m.watches[id]; w.accepts(path) {
			out = append(out, w)
		}
	}
	return out
}

func sortedIDs(watches map[int]*memWatch) []int {
	ids := make([]int, 0, len(watches))
	for id := range watches {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// accepts applies the handler filter to path and to each directory between
// the watch root and path.
func (w *memWatch) accepts(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	dir := w.root
	parts := strings.Split(rel, string(filepath.Separator))
	for _, part := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, part)
		if !w.h.Filter(dir, true) {
			return false
		}
	}
	return w.h.Filter(path, false)
}

func (w *memWatch) Stop() {
	w.mem.mu.Lock()
	defer w.mem.mu.Unlock()
	delete(w.mem.watches, w.id)
}

package maapipe

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory creates the Interface of one project root.
type Factory func(root string) *Interface

// Workspace owns the Interfaces of every open project root. Hosts keep one
// Workspace instead of a process-wide registry, so independent sets of
// projects can coexist.
type Workspace struct {
	factory Factory
	group   singleflight.Group

	mu   sync.Mutex
	open map[string]*Interface
}

// NewWorkspace returns an empty Workspace.
func NewWorkspace(factory Factory) *Workspace {
	return &Workspace{factory: factory, open: map[string]*Interface{}}
}

// Open returns the loaded Interface for root, creating and loading it on
// first use. Concurrent calls for the same root share one load.
func (w *Workspace) Open(ctx context.Context, root string) (*Interface, error) {
	root = filepath.Clean(root)
	if i, ok := w.Get(root); ok {
		return i, nil
	}
	v, err, _ := w.group.Do(root, func() (any, error) {
		if i, ok := w.Get(root); ok {
			return i, nil
		}
		i := w.factory(root)
		if err := i.Load(ctx); err != nil {
			_ = i.Close()
			return nil, fmt.Errorf("maapipe: open %s: %w", root, err)
		}
		w.mu.Lock()
		w.open[root] = i
		w.mu.Unlock()
		return i, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Interface), nil
}

// Get returns the Interface for root if it is open.
func (w *Workspace) Get(root string) (*Interface, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.open[filepath.Clean(root)]
	return i, ok
}

// Roots returns the open roots, sorted.
func (w *Workspace) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Sorted(maps.Keys(w.open))
}

// Close closes and forgets the Interface for root. Closing a root that is
// not open is a no-op.
func (w *Workspace) Close(root string) error {
	root = filepath.Clean(root)
	w.mu.Lock()
	i, ok := w.open[root]
	delete(w.open, root)
	w.mu.Unlock()
	if !ok {
		return nil
	}
	return i.Close()
}

// CloseAll closes every open Interface.
func (w *Workspace) CloseAll() error {
	w.mu.Lock()
	open := w.open
	w.open = map[string]*Interface{}
	w.mu.Unlock()

	var errs []error
	for _, root := range slices.Sorted(maps.Keys(open)) {
		if err := open[root].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("maapipe: closing workspace had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

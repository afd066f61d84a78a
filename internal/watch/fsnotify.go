package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jward/maapipe/internal/content"
)

// FSWatcher watches directory trees with fsnotify. fsnotify is not
// recursive, so every accepted directory gets its own watch and directories
// created later are added as they appear.
type FSWatcher struct {
	logger *zap.Logger
}

// NewFSWatcher creates a watcher. A nil logger discards output.
func NewFSWatcher(logger *zap.Logger) *FSWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSWatcher{logger: logger}
}

// Watch walks root, reports accepted files as added and then follows
// changes until Stop.
func (w *FSWatcher) Watch(root string, h content.Handler) (content.Watch, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	t := &tree{
		root:   filepath.Clean(root),
		h:      h,
		fw:     fw,
		logger: w.logger,
		known:  map[string]bool{},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if err := t.addDir(t.root, false); err != nil {
		fw.Close()
		return nil, err
	}
	go t.run()
	return t, nil
}

type tree struct {
	root   string
	h      content.Handler
	fw     *fsnotify.Watcher
	logger *zap.Logger

	mu    sync.Mutex
	known map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// addDir watches dir and everything accepted below it, reporting the files
// found as added. created marks directories that appeared after the initial
// walk; walk errors inside them are ignored.
func (t *tree) addDir(dir string, created bool) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == t.root && !created {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != t.root && !t.h.Filter(path, true) {
				return filepath.SkipDir
			}
			if err := t.fw.Add(path); err != nil {
				t.logger.Warn("watch: add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if t.h.Filter(path, false) {
			t.added(path)
		}
		return nil
	})
	if err != nil && !created {
		if os.IsNotExist(err) {
			// A missing root is watched as empty; it is not created for us.
			return nil
		}
		return fmt.Errorf("watch: walk %s: %w", dir, err)
	}
	return nil
}

func (t *tree) added(path string) {
	t.mu.Lock()
	seen := t.known[path]
	t.known[path] = true
	t.mu.Unlock()
	if seen {
		t.h.FileChanged(path)
	} else {
		t.h.FileAdded(path)
	}
}

// removed reports path and every known file below it as deleted.
func (t *tree) removed(path string) {
	prefix := path + string(filepath.Separator)
	var gone []string
	t.mu.Lock()
	for p := range t.known {
		if p == path || strings.HasPrefix(p, prefix) {
			gone = append(gone, p)
			delete(t.known, p)
		}
	}
	t.mu.Unlock()
	for _, p := range gone {
		t.h.FileDeleted(p)
	}
}

func (t *tree) run() {
	defer close(t.doneCh)
	for {
		select {
		case <-t.stopCh:
			return
		case event, ok := <-t.fw.Events:
			if !ok {
				return
			}
			t.handle(event)
		case err, ok := <-t.fw.Errors:
			if !ok {
				return
			}
			t.logger.Warn("watch: fsnotify error", zap.String("root", t.root), zap.Error(err))
		}
	}
}

func (t *tree) handle(event fsnotify.Event) {
	path := event.Name
	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if t.h.Filter(path, true) {
				_ = t.addDir(path, true)
			}
			return
		}
		if t.h.Filter(path, false) {
			t.added(path)
		}
	case event.Op&fsnotify.Write != 0:
		if t.h.Filter(path, false) {
			t.added(path)
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The new name of a rename arrives as a separate Create.
		t.removed(path)
	}
}

// Stop ends the watch and waits for the event loop to exit.
func (t *tree) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		<-t.doneCh
		if err := t.fw.Close(); err != nil {
			t.logger.Warn("watch: close", zap.String("root", t.root), zap.Error(err))
		}
	})
}

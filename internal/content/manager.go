package content

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is the delay between the first pending event and the flush
// it schedules.
const DefaultDebounce = 300 * time.Millisecond

// Manager coalesces file events under one root and applies them to a
// Delegate.
type Manager struct {
	root     string
	loader   Loader
	watcher  Watcher
	delegate Delegate
	logger   *zap.Logger
	debounce time.Duration
	workers  int

	mu        sync.Mutex
	gen       uint64
	watch     Watch
	timer     *time.Timer
	changed   map[string]struct{}
	removed   map[string]struct{}
	flushing  bool
	needFlush bool
	waiters   []chan error
	stopped   bool

	// opMu serializes delegate mutation between Load and flushes.
	opMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithDebounce sets the delay used when watch events schedule a flush.
// A non-positive duration disables automatic flushing; callers then drive
// the Manager with DispatchFlush or Flush.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) {
		m.debounce = d
	}
}

// WithWorkers bounds the number of concurrent content reads per flush.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// NewManager creates a Manager for root. Nothing is watched until Load.
func NewManager(root string, loader Loader, watcher Watcher, delegate Delegate, opts ...Option) *Manager {
	m := &Manager{
		root:     filepath.Clean(root),
		loader:   loader,
		watcher:  watcher,
		delegate: delegate,
		logger:   zap.NewNop(),
		debounce: DefaultDebounce,
		workers:  runtime.NumCPU(),
		changed:  map[string]struct{}{},
		removed:  map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the watched directory.
func (m *Manager) Root() string {
	return m.root
}

// Load drops all state and rebuilds it: the previous watch and pending timer
// are stopped, the delegate is reset, a fresh watch is installed and one
// flush is performed. Events from the previous watch are ignored from here
// on.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	old := m.watch
	m.watch = nil
	m.stopTimerLocked()
	m.gen++
	gen := m.gen
	m.changed = map[string]struct{}{}
	m.removed = map[string]struct{}{}
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	m.opMu.Lock()
	m.delegate.Reset()
	m.opMu.Unlock()

	w, err := m.watcher.Watch(m.root, Handler{
		Filter: func(path string, isDir bool) bool {
			rel := relPath(m.root, path)
			if rel == "" {
				return path == m.root
			}
			return m.delegate.FilterFile(rel, isDir)
		},
		FileAdded:   func(path string) { m.event(gen, path, false) },
		FileChanged: func(path string) { m.event(gen, path, false) },
		FileDeleted: func(path string) { m.event(gen, path, true) },
	})
	if err != nil {
		return fmt.Errorf("content: watch %s: %w", m.root, err)
	}

	m.mu.Lock()
	if m.stopped || m.gen != gen {
		m.mu.Unlock()
		w.Stop()
		return nil
	}
	m.watch = w
	m.mu.Unlock()

	m.logger.Debug("content: watching", zap.String("root", m.root))
	return m.Flush(ctx)
}

// event records one watch notification. Events of a superseded generation
// are dropped.
func (m *Manager) event(gen uint64, path string, deleted bool) {
	rel := relPath(m.root, path)
	if rel == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || gen != m.gen {
		return
	}
	if deleted {
		delete(m.changed, rel)
		m.removed[rel] = struct{}{}
	} else {
		delete(m.removed, rel)
		m.changed[rel] = struct{}{}
	}
	if m.debounce > 0 {
		m.armLocked(m.debounce)
	}
}

// DispatchFlush schedules a flush after timeout. While a scheduled flush is
// pending further calls do nothing.
func (m *Manager) DispatchFlush(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.armLocked(timeout)
}

func (m *Manager) armLocked(timeout time.Duration) {
	if m.timer != nil {
		return
	}
	gen := m.gen
	m.timer = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		if m.stopped || gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.mu.Unlock()
		if err := m.Flush(context.Background()); err != nil {
			m.logger.Debug("content: scheduled flush", zap.String("root", m.root), zap.Error(err))
		}
	})
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Flush applies all pending events. When a flush is already running the call
// waits for the next one, which starts after the running one finishes, so a
// nil return means every event recorded before the call has been applied.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.flushing {
		done := make(chan error, 1)
		m.waiters = append(m.waiters, done)
		m.needFlush = true
		m.mu.Unlock()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.flushing = true
	m.mu.Unlock()

	m.run()
	return nil
}

// reflush runs the pending flush unless another caller already started one;
// that flush picks up the same waiters.
func (m *Manager) reflush() {
	m.mu.Lock()
	if m.flushing || m.stopped {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	m.mu.Unlock()
	m.run()
}

func (m *Manager) run() {
	m.opMu.Lock()

	m.mu.Lock()
	changed, removed := m.changed, m.removed
	m.changed = map[string]struct{}{}
	m.removed = map[string]struct{}{}
	waiters := m.waiters
	m.waiters = nil
	m.needFlush = false
	m.mu.Unlock()

	stats := m.apply(changed, removed)
	if f, ok := m.delegate.(Flusher); ok {
		f.Flushed(stats)
	}
	m.opMu.Unlock()

	if !stats.Empty() {
		m.logger.Debug("content: flushed",
			zap.String("root", m.root),
			zap.Int("loaded", stats.Loaded),
			zap.Int("deleted", stats.Deleted),
		)
	}

	for _, w := range waiters {
		w <- nil
	}

	m.mu.Lock()
	m.flushing = false
	again := m.needFlush && !m.stopped
	m.mu.Unlock()
	if again {
		go m.reflush()
	}
}

// apply processes removals first, then changes in path order. Content reads
// run in parallel; delegate calls stay serial.
func (m *Manager) apply(changed, removed map[string]struct{}) Stats {
	var stats Stats
	for _, rel := range sortedKeys(removed) {
		m.delegate.DeleteFile(rel, m.full(rel))
		stats.Deleted++
	}

	paths := sortedKeys(changed)
	contents := make([]*string, len(paths))
	missing := make([]bool, len(paths))
	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, rel := range paths {
		if !m.delegate.NeedContent(rel) {
			continue
		}
		g.Go(func() error {
			if text, ok := m.loader.Get(m.full(rel)); ok {
				contents[i] = &text
			} else {
				missing[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, rel := range paths {
		if missing[i] {
			// Unreadable is the same as gone.
			m.delegate.DeleteFile(rel, m.full(rel))
			stats.Deleted++
			continue
		}
		m.delegate.LoadFile(rel, m.full(rel), contents[i])
		stats.Loaded++
	}
	return stats
}

func (m *Manager) full(rel string) string {
	return filepath.Join(m.root, filepath.FromSlash(rel))
}

// Pending reports the number of paths waiting for the next flush.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.changed) + len(m.removed)
}

// Stop releases the watch and timer. Flush calls still waiting for their
// flush and all later calls fail with ErrStopped.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.gen++
	w := m.watch
	m.watch = nil
	m.stopTimerLocked()
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	for _, ch := range waiters {
		ch <- ErrStopped
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

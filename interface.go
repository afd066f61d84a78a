package maapipe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jward/maapipe/internal/content"
	"github.com/jward/maapipe/internal/index"
	"github.com/jward/maapipe/internal/jsontree"
	"github.com/jward/maapipe/internal/parser"
)

// DefaultManifest is the manifest file name looked up in the workspace root.
const DefaultManifest = "interface.json"

var (
	// ErrUnknownResource is returned when switching to a resource the
	// manifest does not declare.
	ErrUnknownResource = errors.New("maapipe: unknown resource")
	// ErrClosed is returned by operations on a closed Interface.
	ErrClosed = errors.New("maapipe: interface closed")
)

// Interface orchestrates one project: it tracks the manifest, keeps one
// Bundle per path of the active resource and a LanguageBundle for the
// declared locales.
type Interface struct {
	root     string
	manifest string
	loader   content.Loader
	watcher  content.Watcher

	dialect  parser.Dialect
	logger   *zap.Logger
	debounce time.Duration
	ignore   []string
	initial  string

	tracker *content.Manager

	// rebuildMu serializes manifest reloads and resource switches.
	rebuildMu sync.Mutex

	mu        sync.Mutex
	parsed    *parser.InterfaceInfo
	info      *parser.InterfaceInfo
	pseudo    *index.Layer
	active    string
	paths     []string
	bundles   []*index.Bundle
	lang      *index.LanguageBundle
	langFiles string

	// stale is set by a delegate reset so the next flush reloads even when
	// the manifest is absent.
	stale  bool
	closed bool

	events eventHub
}

// Option configures an Interface.
type Option func(*Interface)

// WithDialect selects the pipeline dialect. Defaults to the framework
// dialect.
func WithDialect(d Dialect) Option {
	return func(i *Interface) {
		i.dialect = d
	}
}

// WithLogger sets the logger used by the Interface and everything it owns.
func WithLogger(l *zap.Logger) Option {
	return func(i *Interface) {
		i.logger = l
	}
}

// WithDebounce sets the delay between a file event and the flush it
// triggers. Zero disables automatic flushing; call Flush instead.
func WithDebounce(d time.Duration) Option {
	return func(i *Interface) {
		i.debounce = d
	}
}

// WithManifest overrides the manifest file name.
func WithManifest(name string) Option {
	return func(i *Interface) {
		i.manifest = name
	}
}

// WithIgnore skips pipeline files matching the globs, relative to each
// resource root.
func WithIgnore(globs ...string) Option {
	return func(i *Interface) {
		i.ignore = append(i.ignore, globs...)
	}
}

// WithResource selects the resource made active on the first load. When the
// manifest does not declare it the first resource is used.
func WithResource(name string) Option {
	return func(i *Interface) {
		i.initial = name
	}
}

// New creates an Interface for the project rooted at root. Nothing is read
// until Load.
func New(root string, loader content.Loader, watcher content.Watcher, opts ...Option) *Interface {
	i := &Interface{
		root:     filepath.Clean(root),
		manifest: DefaultManifest,
		loader:   loader,
		watcher:  watcher,
		logger:   zap.NewNop(),
		debounce: content.DefaultDebounce,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.pseudo = index.NewLayer(index.Patching, i.ManifestPath())
	i.info = &parser.InterfaceInfo{File: i.ManifestPath()}
	i.tracker = content.NewManager(i.root, loader, watcher, (*manifestDelegate)(i),
		content.WithLogger(i.logger),
		content.WithDebounce(i.debounce),
	)
	return i
}

// Root returns the project directory.
func (i *Interface) Root() string {
	return i.root
}

// ManifestPath returns the absolute path of the manifest.
func (i *Interface) ManifestPath() string {
	return filepath.Join(i.root, i.manifest)
}

// Dialect returns the configured dialect.
func (i *Interface) Dialect() Dialect {
	return i.dialect
}

// Load reads the manifest and builds the bundles of the active resource.
// Calling Load again starts over from disk.
func (i *Interface) Load(ctx context.Context) error {
	if i.isClosed() {
		return ErrClosed
	}
	if err := i.tracker.Load(ctx); err != nil {
		return fmt.Errorf("maapipe: load manifest: %w", err)
	}
	return nil
}

// Flush brings the manifest, every bundle and the language bundle up to date
// with the events seen so far.
func (i *Interface) Flush(ctx context.Context) error {
	if i.isClosed() {
		return ErrClosed
	}
	if err := i.tracker.Flush(ctx); err != nil {
		return fmt.Errorf("maapipe: flush manifest: %w", err)
	}

	i.mu.Lock()
	bundles := slices.Clone(i.bundles)
	lang := i.lang
	i.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bundles {
		g.Go(func() error {
			if err := b.Flush(gctx); err != nil {
				return fmt.Errorf("flush %s: %w", b.Root(), err)
			}
			return nil
		})
	}
	if lang != nil {
		g.Go(func() error {
			if err := lang.Flush(gctx); err != nil {
				return fmt.Errorf("flush languages: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, content.ErrStopped) {
		return fmt.Errorf("maapipe: %w", err)
	}
	return nil
}

// SwitchActive makes name the active resource. The bundles of the previous
// resource are stopped before the new ones are built.
func (i *Interface) SwitchActive(ctx context.Context, name string) error {
	if i.isClosed() {
		return ErrClosed
	}
	i.rebuildMu.Lock()
	defer i.rebuildMu.Unlock()

	i.mu.Lock()
	paths, ok := i.resourcePathsLocked(name)
	if !ok {
		i.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	i.active = name
	changed := !slices.Equal(paths, i.paths)
	i.mu.Unlock()

	if !changed {
		return nil
	}
	return i.rebuildBundles(ctx, paths)
}

// Active returns the name of the active resource.
func (i *Interface) Active() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Close stops every watch. The Interface cannot be reused.
func (i *Interface) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	bundles := i.bundles
	lang := i.lang
	i.bundles = nil
	i.lang = nil
	i.mu.Unlock()

	i.tracker.Stop()
	for _, b := range bundles {
		b.Stop()
	}
	if lang != nil {
		lang.Stop()
	}
	return nil
}

func (i *Interface) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// resourcePathsLocked returns the absolute roots of a resource in
// declaration order.
func (i *Interface) resourcePathsLocked(name string) ([]string, bool) {
	rel, ok := i.info.ResourcePaths(name)
	if !ok {
		return nil, false
	}
	paths := make([]string, 0, len(rel))
	for _, p := range rel {
		p = filepath.FromSlash(strings.ReplaceAll(p, `\`, "/"))
		if !filepath.IsAbs(p) {
			p = filepath.Join(i.root, p)
		}
		paths = append(paths, filepath.Clean(p))
	}
	return paths, true
}

// reload applies a freshly parsed manifest: it publishes the new decls and
// pseudo-layer, then rebuilds bundles when the active resource's paths moved
// and the language bundle when the language files changed.
func (i *Interface) reload(ctx context.Context) {
	i.rebuildMu.Lock()
	defer i.rebuildMu.Unlock()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	info := i.parsed
	if info == nil {
		info = &parser.InterfaceInfo{File: i.ManifestPath()}
	}
	i.info = info
	i.pseudo = pseudoLayer(i.ManifestPath(), info)

	active := i.active
	if _, ok := info.FirstDecl(parser.DeclResource, active); !ok {
		active = ""
		if _, ok := info.FirstDecl(parser.DeclResource, i.initial); ok {
			active = i.initial
		} else if res := info.DeclsOf(parser.DeclResource); len(res) > 0 {
			active = res[0].Name
		}
	}
	i.active = active
	paths, _ := i.resourcePathsLocked(active)
	pathsChanged := !slices.Equal(paths, i.paths)
	languages, order := languageFiles(info)
	fingerprint := languageFingerprint(languages, order)
	langChanged := fingerprint != i.langFiles || i.lang == nil
	i.mu.Unlock()

	i.logger.Debug("maapipe: manifest reloaded",
		zap.String("manifest", i.ManifestPath()),
		zap.String("active", active),
		zap.Int("overrides", len(info.Overrides)),
	)
	i.events.emit(Event{Kind: EventInterfaceChanged, Path: i.ManifestPath()})

	if pathsChanged {
		if err := i.rebuildBundles(ctx, paths); err != nil {
			i.logger.Warn("maapipe: rebuild bundles", zap.Error(err))
		}
	}
	if langChanged {
		if err := i.rebuildLanguages(ctx, languages, order, fingerprint); err != nil {
			i.logger.Warn("maapipe: rebuild languages", zap.Error(err))
		}
	}
}

// rebuildBundles replaces the active bundles. Old watches are stopped
// before the new bundles load. rebuildMu must be held.
func (i *Interface) rebuildBundles(ctx context.Context, paths []string) error {
	i.mu.Lock()
	old := i.bundles
	i.bundles = nil
	i.paths = slices.Clone(paths)
	i.mu.Unlock()

	for _, b := range old {
		b.Stop()
	}

	bundles := make([]*index.Bundle, len(paths))
	for n, root := range paths {
		bundles[n] = index.NewBundle(root, i.loader, i.watcher,
			index.WithDialect(i.dialect),
			index.WithLogger(i.logger),
			index.WithDebounce(i.debounce),
			index.WithIgnore(i.ignore...),
			index.WithOnReload(func(content.Stats) {
				i.events.emit(Event{Kind: EventBundleReloaded, Path: root})
			}),
		)
	}

	var g errgroup.Group
	errs := make([]error, len(bundles))
	for n, b := range bundles {
		g.Go(func() error {
			if err := b.Load(ctx); err != nil {
				errs[n] = fmt.Errorf("load %s: %w", b.Root(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		for _, b := range bundles {
			b.Stop()
		}
		return ErrClosed
	}
	i.bundles = bundles
	i.mu.Unlock()

	i.events.emit(Event{Kind: EventPathChanged, Path: strings.Join(paths, string(filepath.ListSeparator))})

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("maapipe: loading bundles had %d error(s): %w", len(failed), failed[0])
	}
	return nil
}

func (i *Interface) rebuildLanguages(ctx context.Context, languages map[string]string, order []string, fingerprint string) error {
	i.mu.Lock()
	old := i.lang
	i.lang = nil
	i.langFiles = fingerprint
	i.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	lang := index.NewLanguageBundle(i.root, languages, order, i.loader, i.watcher,
		index.WithLogger(i.logger),
		index.WithDebounce(i.debounce),
		index.WithOnReload(func(content.Stats) {
			i.events.emit(Event{Kind: EventLanguageReloaded, Path: i.root})
		}),
	)
	err := lang.Load(ctx)

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		lang.Stop()
		return ErrClosed
	}
	i.lang = lang
	i.mu.Unlock()
	if err != nil {
		return fmt.Errorf("maapipe: load languages: %w", err)
	}
	return nil
}

func languageFiles(info *parser.InterfaceInfo) (map[string]string, []string) {
	languages := info.Languages()
	var order []string
	for _, d := range info.DeclsOf(parser.DeclLanguage) {
		if !slices.Contains(order, d.Name) {
			order = append(order, d.Name)
		}
	}
	return languages, order
}

func languageFingerprint(languages map[string]string, order []string) string {
	var sb strings.Builder
	for _, locale := range order {
		sb.WriteString(locale)
		sb.WriteByte('=')
		sb.WriteString(languages[locale])
		sb.WriteByte(';')
	}
	return sb.String()
}

// pseudoLayer builds the patching layer holding the manifest's
// pipeline_override entries.
func pseudoLayer(manifest string, info *parser.InterfaceInfo) *index.Layer {
	layer := index.NewLayer(index.Patching, manifest)
	for _, o := range info.Overrides {
		layer.Add(&index.LayerTask{
			File:     manifest,
			NameNode: o.KeyNode,
			Body:     o.Body,
			Info:     o.Info,
			Label:    o.Label,
		})
	}
	layer.ExtraRefs = slices.Clone(info.ExtraRefs)
	return layer
}

// manifestDelegate is the content.Delegate that tracks the manifest file.
type manifestDelegate Interface

func (d *manifestDelegate) FilterFile(rel string, isDir bool) bool {
	return !isDir && rel == filepath.ToSlash(d.manifest)
}

func (d *manifestDelegate) NeedContent(string) bool {
	return true
}

func (d *manifestDelegate) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parsed = nil
	d.stale = true
}

func (d *manifestDelegate) LoadFile(_, full string, text *string) {
	if text == nil {
		return
	}
	root := jsontree.ParseString(context.Background(), *text)
	info := parser.ParseInterface(full, root, d.dialect)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parsed = info
}

func (d *manifestDelegate) DeleteFile(string, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parsed = nil
}

// Flushed runs on the tracker's flush. The first flush after Load always
// reloads so an absent manifest still yields an empty, consistent state.
func (d *manifestDelegate) Flushed(stats content.Stats) {
	i := (*Interface)(d)
	i.mu.Lock()
	stale := i.stale
	i.stale = false
	i.mu.Unlock()
	if stats.Empty() && !stale {
		return
	}
	i.reload(context.Background())
}

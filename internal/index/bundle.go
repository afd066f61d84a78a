package index

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jward/maapipe/internal/content"
	"github.com/jward/maapipe/internal/jsontree"
	"github.com/jward/maapipe/internal/parser"
)

// Bundle indexes the pipeline and image files under one resource root.
// Only files reported dirty are reparsed; readers get immutable snapshots.
type Bundle struct {
	root   string
	opts   options
	layout Layout
	mgr    *content.Manager

	// mu guards the per-file state mutated by delegate calls.
	mu       sync.Mutex
	files    map[string]*bundleFile
	images   map[string]string
	reset    bool
	snapshot atomic.Pointer[Layer]
}

type bundleFile struct {
	full     string
	tasks    []*LayerTask
	defaults []parser.Ref
}

// NewBundle creates a Bundle for root. Call Load to populate it.
func NewBundle(root string, loader content.Loader, watcher content.Watcher, opts ...Option) *Bundle {
	b := &Bundle{
		root:   root,
		opts:   buildOptions(opts),
		files:  map[string]*bundleFile{},
		images: map[string]string{},
	}
	b.layout = LayoutFor(b.opts.dialect)
	b.snapshot.Store(NewLayer(Shadowing, root))
	b.mgr = content.NewManager(root, loader, watcher, (*bundleDelegate)(b), b.opts.managerOptions()...)
	return b
}

// Root returns the resource root.
func (b *Bundle) Root() string {
	return b.root
}

// Load installs the watch and indexes every existing file.
func (b *Bundle) Load(ctx context.Context) error {
	return b.mgr.Load(ctx)
}

// Flush applies pending file events.
func (b *Bundle) Flush(ctx context.Context) error {
	return b.mgr.Flush(ctx)
}

// Stop releases the watch.
func (b *Bundle) Stop() {
	b.mgr.Stop()
}

// Layer returns the latest published snapshot. It is never nil.
func (b *Bundle) Layer() *Layer {
	return b.snapshot.Load()
}

// bundleDelegate is the content.Delegate view of a Bundle, kept separate so
// the delegate methods do not leak into the Bundle API.
type bundleDelegate Bundle

func (d *bundleDelegate) FilterFile(rel string, isDir bool) bool {
	if hidden(rel) || ignored(d.opts.ignore, rel) {
		return false
	}
	if isDir {
		return d.layout.allowsDir(rel)
	}
	kind, _ := d.layout.classify(rel)
	return kind != fileNone
}

func (d *bundleDelegate) NeedContent(rel string) bool {
	kind, _ := d.layout.classify(rel)
	return kind == filePipeline || kind == fileDefaults
}

func (d *bundleDelegate) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = map[string]*bundleFile{}
	d.images = map[string]string{}
	d.reset = true
}

func (d *bundleDelegate) LoadFile(rel, full string, text *string) {
	kind, image := d.layout.classify(rel)
	d.mu.Lock()
	defer d.mu.Unlock()
	switch kind {
	case fileImage:
		d.images[rel] = image
	case filePipeline, fileDefaults:
		if text == nil {
			return
		}
		d.files[rel] = parsePipelineFile(full, *text, kind == fileDefaults, d.opts.dialect)
	}
}

func (d *bundleDelegate) DeleteFile(rel, full string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, rel)
	delete(d.images, rel)
}

// Flushed publishes a new snapshot built from files in path order, so
// declaration order never depends on event order. A flush that applied
// nothing keeps the current snapshot.
func (d *bundleDelegate) Flushed(stats content.Stats) {
	d.mu.Lock()
	if stats.Empty() && !d.reset {
		d.mu.Unlock()
		return
	}
	d.reset = false
	layer := NewLayer(Shadowing, d.root)
	rels := make([]string, 0, len(d.files))
	for rel := range d.files {
		rels = append(rels, rel)
	}
	slices.Sort(rels)
	for _, rel := range rels {
		f := d.files[rel]
		for _, t := range f.tasks {
			layer.Add(t)
		}
		layer.ExtraRefs = append(layer.ExtraRefs, f.defaults...)
	}
	for _, img := range d.images {
		layer.Images[img] = struct{}{}
	}
	d.mu.Unlock()

	d.snapshot.Store(layer)
	if stats.Empty() {
		return
	}
	d.opts.logger.Debug("index: bundle reloaded",
		zap.String("root", d.root),
		zap.Int("tasks", len(layer.Tasks)),
		zap.Int("images", len(layer.Images)),
	)
	if d.opts.onReload != nil {
		d.opts.onReload(stats)
	}
}

// parsePipelineFile turns one pipeline file into declarations. A file that
// does not parse to an object declares nothing. The defaults file is parsed
// for refs only.
func parsePipelineFile(full, text string, defaults bool, dialect parser.Dialect) *bundleFile {
	f := &bundleFile{full: full}
	root := jsontree.ParseString(context.Background(), text)
	for m := range root.Members() {
		if strings.HasPrefix(m.Key, "$") {
			continue
		}
		info := parser.ParseTask(full, m.Key, m.Value, dialect)
		if defaults {
			f.defaults = append(f.defaults, info.Refs...)
			continue
		}
		f.tasks = append(f.tasks, &LayerTask{
			File:     full,
			NameNode: m.KeyNode,
			Body:     m.Value,
			Info:     info,
		})
	}
	return f
}

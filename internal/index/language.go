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
)

// Locales is an immutable snapshot of every loaded language file.
type Locales struct {
	// order lists the declared locales in manifest order.
	order  []string
	keys   map[string]map[string]string
	loaded map[string]bool
}

// EmptyLocales returns a snapshot without languages.
func EmptyLocales() *Locales {
	return &Locales{keys: map[string]map[string]string{}, loaded: map[string]bool{}}
}

// Languages returns the declared locales in manifest order.
func (l *Locales) Languages() []string {
	return slices.Clone(l.order)
}

// Loaded reports whether the file of locale was read and parsed.
func (l *Locales) Loaded(locale string) bool {
	return l.loaded[locale]
}

// Lookup returns the text of key in locale.
func (l *Locales) Lookup(locale, key string) (string, bool) {
	text, ok := l.keys[locale][key]
	return text, ok
}

// Missing returns the loaded locales lacking key and whether any locale has
// it.
func (l *Locales) Missing(key string) (missing []string, found bool) {
	for _, locale := range l.order {
		if !l.loaded[locale] {
			continue
		}
		if _, ok := l.keys[locale][key]; ok {
			found = true
		} else {
			missing = append(missing, locale)
		}
	}
	return missing, found
}

// Keys returns the union of keys over all locales, sorted.
func (l *Locales) Keys() []string {
	set := map[string]bool{}
	for _, keys := range l.keys {
		for k := range keys {
			set[k] = true
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// LanguageBundle indexes the locale files named by the manifest. Its root
// is the manifest directory.
type LanguageBundle struct {
	root string
	opts options
	mgr  *content.Manager

	// files maps a slash-separated path relative to root to its locales.
	files map[string][]string
	order []string

	mu       sync.Mutex
	parsed   map[string]map[string]string
	snapshot atomic.Pointer[Locales]
}

// NewLanguageBundle creates a bundle for languages, a locale → path map with
// paths relative to root. order fixes the locale order of snapshots.
func NewLanguageBundle(root string, languages map[string]string, order []string, loader content.Loader, watcher content.Watcher, opts ...Option) *LanguageBundle {
	lb := &LanguageBundle{
		root:   root,
		opts:   buildOptions(opts),
		files:  map[string][]string{},
		order:  slices.Clone(order),
		parsed: map[string]map[string]string{},
	}
	for _, locale := range order {
		rel := cleanRel(languages[locale])
		if rel == "" {
			continue
		}
		lb.files[rel] = append(lb.files[rel], locale)
	}
	empty := EmptyLocales()
	empty.order = lb.order
	lb.snapshot.Store(empty)
	lb.mgr = content.NewManager(root, loader, watcher, (*languageDelegate)(lb), lb.opts.managerOptions()...)
	return lb
}

func cleanRel(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return ""
	}
	return p
}

// Load installs the watch and reads every language file.
func (lb *LanguageBundle) Load(ctx context.Context) error {
	return lb.mgr.Load(ctx)
}

// Flush applies pending file events.
func (lb *LanguageBundle) Flush(ctx context.Context) error {
	return lb.mgr.Flush(ctx)
}

// Stop releases the watch.
func (lb *LanguageBundle) Stop() {
	lb.mgr.Stop()
}

// Locales returns the latest snapshot. It is never nil.
func (lb *LanguageBundle) Locales() *Locales {
	return lb.snapshot.Load()
}

type languageDelegate LanguageBundle

func (d *languageDelegate) FilterFile(rel string, isDir bool) bool {
	if isDir {
		for f := range d.files {
			if strings.HasPrefix(f, rel+"/") {
				return true
			}
		}
		return false
	}
	_, ok := d.files[rel]
	return ok
}

func (d *languageDelegate) NeedContent(string) bool {
	return true
}

func (d *languageDelegate) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parsed = map[string]map[string]string{}
}

func (d *languageDelegate) LoadFile(rel, _ string, text *string) {
	if text == nil {
		return
	}
	keys := map[string]string{}
	root := jsontree.ParseString(context.Background(), *text)
	if root == nil || root.Kind != jsontree.KindObject {
		d.DeleteFile(rel, "")
		return
	}
	for m := range root.Members() {
		if s, ok := m.Value.AsString(); ok {
			if _, dup := keys[m.Key]; !dup {
				keys[m.Key] = s
			}
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parsed[rel] = keys
}

func (d *languageDelegate) DeleteFile(rel, _ string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.parsed, rel)
}

func (d *languageDelegate) Flushed(stats content.Stats) {
	d.mu.Lock()
	snap := &Locales{
		order:  d.order,
		keys:   map[string]map[string]string{},
		loaded: map[string]bool{},
	}
	for rel, keys := range d.parsed {
		for _, locale := range d.files[rel] {
			snap.keys[locale] = keys
			snap.loaded[locale] = true
		}
	}
	d.mu.Unlock()

	d.snapshot.Store(snap)
	if stats.Empty() {
		return
	}
	d.opts.logger.Debug("index: languages reloaded", zap.String("root", d.root), zap.Int("locales", len(snap.loaded)))
	if d.opts.onReload != nil {
		d.opts.onReload(stats)
	}
}

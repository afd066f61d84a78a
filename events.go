package maapipe

import (
	"slices"
	"sync"
)

// EventKind identifies an Interface event.
type EventKind uint8

const (
	// EventInterfaceChanged fires after every manifest reparse.
	EventInterfaceChanged EventKind = iota + 1
	// EventPathChanged fires after the active resource's bundles were
	// rebuilt. Path lists the new roots joined by the OS list separator.
	EventPathChanged
	// EventBundleReloaded fires after a bundle flush that changed something.
	// Path is the bundle root.
	EventBundleReloaded
	// EventLanguageReloaded fires after the language files were reread.
	EventLanguageReloaded
)

func (k EventKind) String() string {
	switch k {
	case EventInterfaceChanged:
		return "interfaceChanged"
	case EventPathChanged:
		return "pathChanged"
	case EventBundleReloaded:
		return "bundleReloaded"
	case EventLanguageReloaded:
		return "languageReloaded"
	}
	return "unknown"
}

// Event is delivered to subscribers.
type Event struct {
	Kind EventKind
	Path string
}

type eventHub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

// Subscribe registers fn for every event. fn runs on the goroutine that
// produced the event and must not call back into blocking Interface methods.
// The returned function removes the subscription.
func (i *Interface) Subscribe(fn func(Event)) (cancel func()) {
	return i.events.subscribe(fn)
}

func (h *eventHub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = map[int]func(Event){}
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *eventHub) emit(e Event) {
	h.mu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

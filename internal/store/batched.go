package store

import "sync"

// Batch buffers one snapshot's rows in memory using fake (negative) IDs.
// Rows may reference each other through the fake IDs; Commit rewrites them
// to real ones.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
type Batch struct {
	mu sync.Mutex

	Layers []Layer
	Files  []File
	Tasks  []Task
	Decls  []Decl
	Refs   []Ref
	Images []Image

	nextFakeID int64 // starts at -1, decrements
}

// NewBatch creates an empty Batch.
func NewBatch() *Batch {
	return &Batch{nextFakeID: -1}
}

func (b *Batch) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *Batch) AddLayer(l Layer) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	l.ID = b.allocFakeID()
	b.Layers = append(b.Layers, l)
	return l.ID
}

func (b *Batch) AddFile(f File) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	f.ID = b.allocFakeID()
	b.Files = append(b.Files, f)
	return f.ID
}

func (b *Batch) AddTask(t Task) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.ID = b.allocFakeID()
	b.Tasks = append(b.Tasks, t)
	return t.ID
}

func (b *Batch) AddDecl(d Decl) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d.ID = b.allocFakeID()
	b.Decls = append(b.Decls, d)
}

func (b *Batch) AddRef(r Ref) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r.ID = b.allocFakeID()
	b.Refs = append(b.Refs, r)
}

func (b *Batch) AddImage(img Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img.ID = b.allocFakeID()
	b.Images = append(b.Images, img)
}

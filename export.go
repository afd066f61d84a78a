package maapipe

import (
	"cmp"
	"slices"

	"github.com/jward/maapipe/internal/index"
	"github.com/jward/maapipe/internal/parser"
	"github.com/jward/maapipe/internal/store"
)

// Export replaces the contents of st with the snapshot's layers. Layer
// order is precedence, the override layer first. Diagnostics are not
// exported.
func (s *Snapshot) Export(st *store.Store) error {
	return st.Commit(s.batch())
}

func (s *Snapshot) batch() *store.Batch {
	b := store.NewBatch()
	for n, l := range s.AllLayers() {
		layerID := b.AddLayer(store.Layer{Root: l.Root, Mode: l.Mode.String(), Order: n})

		files := map[string]int64{}
		file := func(path string) int64 {
			if id, ok := files[path]; ok {
				return id
			}
			id := b.AddFile(store.File{LayerID: layerID, Path: path})
			files[path] = id
			return id
		}

		for _, t := range layerTasks(l) {
			loc := t.Loc()
			fileID := file(t.File)
			taskID := b.AddTask(store.Task{
				FileID: fileID,
				Name:   t.Name(),
				Offset: loc.Offset,
				Length: loc.Length,
				Label:  t.Label,
			})
			for _, d := range t.Info.Decls {
				b.AddDecl(store.Decl{
					TaskID: taskID,
					Kind:   string(d.Kind),
					Name:   d.Name,
					Owner:  d.Task,
					Offset: d.Loc.Offset,
					Length: d.Loc.Length,
				})
			}
			for _, r := range t.Info.Refs {
				b.AddRef(exportRef(file(r.Loc.File), &taskID, r))
			}
		}
		for _, r := range l.ExtraRefs {
			b.AddRef(exportRef(file(r.Loc.File), nil, r))
		}
		for _, img := range l.ImageListNotUnique() {
			b.AddImage(store.Image{LayerID: layerID, Path: img})
		}
	}
	return b
}

// layerTasks orders a layer's declarations by file and offset so exports
// of the same tree insert rows in the same order.
func layerTasks(l *Layer) []*index.LayerTask {
	tasks := l.All()
	slices.SortStableFunc(tasks, func(a, b *index.LayerTask) int {
		return cmp.Or(cmp.Compare(a.File, b.File), cmp.Compare(a.Loc().Offset, b.Loc().Offset))
	})
	return tasks
}

func exportRef(fileID int64, taskID *int64, r parser.Ref) store.Ref {
	return store.Ref{
		FileID:   fileID,
		TaskID:   taskID,
		Kind:     string(r.Kind),
		Target:   r.Target,
		Field:    r.Field,
		Offset:   r.Loc.Offset,
		Length:   r.Loc.Length,
		JumpBack: r.JumpBack,
		Anchor:   r.Anchor,
	}
}

package store

import (
	"database/sql"
	"fmt"
)

// Commit replaces the stored index with the contents of batch within a
// single transaction. Fake (negative) IDs are remapped to real ones, and
// all references within the batch are rewritten through that mapping.
//
// Insert order respects FK dependencies:
//  1. Layers
//  2. Files (depend on layer_id)
//  3. Tasks (depend on file_id)
//  4. Decls (depend on task_id)
//  5. Refs (depend on file_id, task_id)
//  6. Images (depend on layer_id)
func (s *Store) Commit(batch *Batch) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: commit: begin: %w", err)
	}
	defer tx.Rollback()

	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.Exec(`DELETE FROM ` + tables[i]); err != nil {
			return fmt.Errorf("store: commit: clear %s: %w", tables[i], err)
		}
	}

	fakeToReal := make(map[int64]int64)
	resolve := func(id int64) (int64, error) {
		if id >= 0 {
			return id, nil
		}
		r, ok := fakeToReal[id]
		if !ok {
			return 0, fmt.Errorf("dangling id %d", id)
		}
		return r, nil
	}

	// 1. Layers
	for _, l := range batch.Layers {
		id, err := insertTx(tx, `INSERT INTO layers (root, mode, ord) VALUES (?, ?, ?)`, l.Root, l.Mode, l.Order)
		if err != nil {
			return fmt.Errorf("store: commit: layer %s: %w", l.Root, err)
		}
		fakeToReal[l.ID] = id
	}

	// 2. Files
	for _, f := range batch.Files {
		layerID, err := resolve(f.LayerID)
		if err != nil {
			return fmt.Errorf("store: commit: file %s: %w", f.Path, err)
		}
		id, err := insertTx(tx, `INSERT INTO files (layer_id, path) VALUES (?, ?)`, layerID, f.Path)
		if err != nil {
			return fmt.Errorf("store: commit: file %s: %w", f.Path, err)
		}
		fakeToReal[f.ID] = id
	}

	// 3. Tasks
	for _, t := range batch.Tasks {
		fileID, err := resolve(t.FileID)
		if err != nil {
			return fmt.Errorf("store: commit: task %s: %w", t.Name, err)
		}
		id, err := insertTx(tx, `INSERT INTO tasks (file_id, name, start_byte, length, label) VALUES (?, ?, ?, ?, ?)`,
			fileID, t.Name, t.Offset, t.Length, nullString(t.Label))
		if err != nil {
			return fmt.Errorf("store: commit: task %s: %w", t.Name, err)
		}
		fakeToReal[t.ID] = id
	}

	// 4. Decls
	for _, d := range batch.Decls {
		taskID, err := resolve(d.TaskID)
		if err != nil {
			return fmt.Errorf("store: commit: decl %s: %w", d.Name, err)
		}
		if _, err := insertTx(tx, `INSERT INTO decls (task_id, kind, name, owner, start_byte, length) VALUES (?, ?, ?, ?, ?, ?)`,
			taskID, d.Kind, d.Name, nullString(d.Owner), d.Offset, d.Length); err != nil {
			return fmt.Errorf("store: commit: decl %s: %w", d.Name, err)
		}
	}

	// 5. Refs
	for _, r := range batch.Refs {
		fileID, err := resolve(r.FileID)
		if err != nil {
			return fmt.Errorf("store: commit: ref %s: %w", r.Target, err)
		}
		var taskID sql.NullInt64
		if r.TaskID != nil {
			id, err := resolve(*r.TaskID)
			if err != nil {
				return fmt.Errorf("store: commit: ref %s: %w", r.Target, err)
			}
			taskID = sql.NullInt64{Int64: id, Valid: true}
		}
		if _, err := insertTx(tx, `INSERT INTO refs (file_id, task_id, kind, target, field, start_byte, length, jump_back, anchor)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, taskID, r.Kind, r.Target, nullString(r.Field), r.Offset, r.Length, r.JumpBack, r.Anchor); err != nil {
			return fmt.Errorf("store: commit: ref %s: %w", r.Target, err)
		}
	}

	// 6. Images
	for _, img := range batch.Images {
		layerID, err := resolve(img.LayerID)
		if err != nil {
			return fmt.Errorf("store: commit: image %s: %w", img.Path, err)
		}
		if _, err := insertTx(tx, `INSERT INTO images (layer_id, path) VALUES (?, ?)`, layerID, img.Path); err != nil {
			return fmt.Errorf("store: commit: image %s: %w", img.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func insertTx(tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

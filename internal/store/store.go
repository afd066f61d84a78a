// Package store writes index snapshots into SQLite for ad-hoc querying.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite access layer for the exported index.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for custom queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS layers (
  id              INTEGER PRIMARY KEY,
  root            TEXT NOT NULL,
  mode            TEXT NOT NULL,
  ord             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  layer_id        INTEGER NOT NULL REFERENCES layers(id),
  path            TEXT NOT NULL,
  UNIQUE (layer_id, path)
);

CREATE TABLE IF NOT EXISTS tasks (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  name            TEXT NOT NULL,
  start_byte      INTEGER NOT NULL,
  length          INTEGER NOT NULL,
  label           TEXT
);

CREATE TABLE IF NOT EXISTS decls (
  id              INTEGER PRIMARY KEY,
  task_id         INTEGER NOT NULL REFERENCES tasks(id),
  kind            TEXT NOT NULL,
  name            TEXT NOT NULL,
  owner           TEXT,
  start_byte      INTEGER NOT NULL,
  length          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS refs (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  task_id         INTEGER REFERENCES tasks(id),
  kind            TEXT NOT NULL,
  target          TEXT NOT NULL,
  field           TEXT,
  start_byte      INTEGER NOT NULL,
  length          INTEGER NOT NULL,
  jump_back       BOOLEAN DEFAULT FALSE,
  anchor          BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS images (
  id              INTEGER PRIMARY KEY,
  layer_id        INTEGER NOT NULL REFERENCES layers(id),
  path            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_name ON tasks(name);
CREATE INDEX IF NOT EXISTS idx_tasks_file ON tasks(file_id);
CREATE INDEX IF NOT EXISTS idx_decls_task ON decls(task_id);
CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(target);
CREATE INDEX IF NOT EXISTS idx_refs_task ON refs(task_id);
CREATE INDEX IF NOT EXISTS idx_images_path ON images(path);
`

// TasksNamed returns the exported declarations of the given names ordered
// by layer precedence, then file and offset.
func (s *Store) TasksNamed(names ...string) ([]*Task, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT t.id, t.file_id, t.name, t.start_byte, t.length, COALESCE(t.label, '')
		FROM tasks t JOIN files f ON f.id = t.file_id JOIN layers l ON l.id = f.layer_id
		WHERE t.name IN (`+placeholderList(len(names))+`)
		ORDER BY l.ord, f.path, t.start_byte`, stringsToArgs(names)...)
	if err != nil {
		return nil, fmt.Errorf("store: tasks named: %w", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(&t.ID, &t.FileID, &t.Name, &t.Offset, &t.Length, &t.Label); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RefsTo returns the refs naming target, ordered by file and offset.
func (s *Store) RefsTo(target string) ([]*Ref, error) {
	rows, err := s.db.Query(`SELECT r.id, r.file_id, r.task_id, r.kind, r.target, COALESCE(r.field, ''),
		r.start_byte, r.length, r.jump_back, r.anchor
		FROM refs r JOIN files f ON f.id = r.file_id
		WHERE r.target = ? ORDER BY f.path, r.start_byte`, target)
	if err != nil {
		return nil, fmt.Errorf("store: refs to %s: %w", target, err)
	}
	defer rows.Close()
	var out []*Ref
	for rows.Next() {
		r := &Ref{}
		var taskID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.FileID, &taskID, &r.Kind, &r.Target, &r.Field,
			&r.Offset, &r.Length, &r.JumpBack, &r.Anchor); err != nil {
			return nil, fmt.Errorf("store: scan ref: %w", err)
		}
		if taskID.Valid {
			r.TaskID = &taskID.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FileByID returns one exported file.
func (s *Store) FileByID(id int64) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(`SELECT id, layer_id, path FROM files WHERE id = ?`, id).
		Scan(&f.ID, &f.LayerID, &f.Path)
	if err != nil {
		return nil, fmt.Errorf("store: file %d: %w", id, err)
	}
	return f, nil
}

// Counts returns the number of rows per table.
func (s *Store) Counts() (map[string]int, error) {
	out := map[string]int{}
	for _, table := range tables {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("store: count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// tables in foreign key order.
var tables = []string{"layers", "files", "tasks", "decls", "refs", "images"}

package store

// Row types of the export schema. IDs are assigned by the database on
// commit; inside a Batch they are negative placeholders.

type Layer struct {
	ID    int64
	Root  string
	Mode  string
	Order int
}

type File struct {
	ID      int64
	LayerID int64
	Path    string
}

type Task struct {
	ID     int64
	FileID int64
	Name   string
	Offset int
	Length int
	// Label names the manifest element of an override entry.
	Label string
}

type Decl struct {
	ID     int64
	TaskID int64
	Kind   string
	Name   string
	Owner  string
	Offset int
	Length int
}

type Ref struct {
	ID       int64
	FileID   int64
	TaskID   *int64
	Kind     string
	Target   string
	Field    string
	Offset   int
	Length   int
	JumpBack bool
	Anchor   bool
}

type Image struct {
	ID      int64
	LayerID int64
	Path    string
}

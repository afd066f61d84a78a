// Package jsontree parses JSON documents into position-annotated value
// trees. Trees carry byte offsets into the original text and hold no parent
// pointers, so they can be shared freely and are simply rebuilt on reparse.
package jsontree

import "iter"

// Kind identifies the type of value a Node holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindObject
	KindArray
	KindProperty
	KindString
	KindNumber
	KindBool
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindProperty:
		return "property"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	}
	return "invalid"
}

// Node is one parsed JSON value.
//
// Offset and Length cover the value's source text; for strings this includes
// the surrounding quotes. Object nodes hold KindProperty children, each with
// exactly two children: the key (a KindString node) and the value.
type Node struct {
	Kind     Kind
	Offset   int
	Length   int
	Str      string
	// Raw is a string's source text between the quotes, escapes intact.
	Raw      string
	Num      float64
	Bool     bool
	Children []*Node

	// Bare marks an unquoted object key.
	Bare bool
}

// Member is one object member in document order.
type Member struct {
	Key     string
	Value   *Node
	KeyNode *Node
}

// End returns the offset just past the node.
func (n *Node) End() int {
	return n.Offset + n.Length
}

// Members iterates the members of an object node in document order.
// Duplicate keys are all reported. Non-object nodes yield nothing.
func (n *Node) Members() iter.Seq[Member] {
	return func(yield func(Member) bool) {
		if n == nil || n.Kind != KindObject {
			return
		}
		for _, prop := range n.Children {
			if len(prop.Children) != 2 {
				continue
			}
			key := prop.Children[0]
			if !yield(Member{Key: key.Str, Value: prop.Children[1], KeyNode: key}) {
				return
			}
		}
	}
}

// Elements returns the elements of an array node, or nil for other kinds.
func (n *Node) Elements() []*Node {
	if n == nil || n.Kind != KindArray {
		return nil
	}
	return n.Children
}

// Get returns the value of the first member named key.
func (n *Node) Get(key string) (*Node, bool) {
	for m := range n.Members() {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// AsObject returns n when it is an object.
func (n *Node) AsObject() (*Node, bool) {
	if n == nil || n.Kind != KindObject {
		return nil, false
	}
	return n, true
}

// AsArray returns the elements of n when it is an array.
func (n *Node) AsArray() ([]*Node, bool) {
	if n == nil || n.Kind != KindArray {
		return nil, false
	}
	return n.Children, true
}

// AsString returns the unescaped value of a string node.
func (n *Node) AsString() (string, bool) {
	if n == nil || n.Kind != KindString {
		return "", false
	}
	return n.Str, true
}

// AsNumber returns the value of a number node.
func (n *Node) AsNumber() (float64, bool) {
	if n == nil || n.Kind != KindNumber {
		return 0, false
	}
	return n.Num, true
}

// AsBool returns the value of a boolean node.
func (n *Node) AsBool() (bool, bool) {
	if n == nil || n.Kind != KindBool {
		return false, false
	}
	return n.Bool, true
}

// ContentRange returns the byte range of a string's content with the quotes
// excluded. For other kinds it returns the node's full range.
func (n *Node) ContentRange() (offset, length int) {
	if n.Kind == KindString && !n.Bare && n.Length >= 2 {
		return n.Offset + 1, n.Length - 2
	}
	return n.Offset, n.Length
}

// OneOrMany returns the elements of an array, or n itself as a single
// element for any other kind. A nil node yields nil.
func (n *Node) OneOrMany() []*Node {
	if n == nil {
		return nil
	}
	if n.Kind == KindArray {
		return n.Children
	}
	return []*Node{n}
}

// Value converts the tree to plain Go values: map[string]any, []any, string,
// float64, bool or nil. Repeated object keys keep the first value.
func (n *Node) Value() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindObject:
		out := map[string]any{}
		for m := range n.Members() {
			if _, seen := out[m.Key]; !seen {
				out[m.Key] = m.Value.Value()
			}
		}
		return out
	case KindArray:
		out := make([]any, 0, len(n.Children))
		for _, c := range n.Children {
			out = append(out, c.Value())
		}
		return out
	case KindString:
		return n.Str
	case KindNumber:
		return n.Num
	case KindBool:
		return n.Bool
	}
	return nil
}

package jsontree

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// The document is parsed as a parenthesized JavaScript expression. The JS
// grammar accepts comments and trailing commas and recovers from local
// errors with ERROR nodes, which is the tolerance editors need while a file
// is being typed. Offsets are shifted back by the length of the prefix.
var (
	wrapPrefix = []byte("(")
	wrapSuffix = []byte("\n)")
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
)

// Parse parses src and returns its top-level value, or nil when the text
// holds no usable value. Parse never fails: regions the grammar cannot make
// sense of are dropped from the tree.
func Parse(ctx context.Context, src []byte) *Node {
	wrapped := make([]byte, 0, len(wrapPrefix)+len(src)+len(wrapSuffix))
	wrapped = append(wrapped, wrapPrefix...)
	wrapped = append(wrapped, src...)
	if bytes.HasPrefix(src, utf8BOM) {
		copy(wrapped[len(wrapPrefix):], "   ")
	}
	wrapped = append(wrapped, wrapSuffix...)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, wrapped)
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	b := &builder{src: wrapped, limit: len(src)}
	top := topValue(tree.RootNode())
	if top == nil {
		return nil
	}
	return b.build(top)
}

// ParseString is Parse for string content.
func ParseString(ctx context.Context, src string) *Node {
	return Parse(ctx, []byte(src))
}

// topValue finds the value inside the wrapping parentheses. When recovery
// mangled the statement structure it falls back to the first object or array
// in the tree.
func topValue(root *sitter.Node) *sitter.Node {
	if root == nil {
		return nil
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt == nil || stmt.Type() != "expression_statement" {
			continue
		}
		expr := stmt.NamedChild(0)
		if expr == nil || expr.Type() != "parenthesized_expression" {
			continue
		}
		for j := 0; j < int(expr.NamedChildCount()); j++ {
			c := expr.NamedChild(j)
			if c != nil && c.Type() != "comment" {
				return c
			}
		}
	}
	return firstContainer(root)
}

func firstContainer(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "object", "array":
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			if found := firstContainer(c); found != nil {
				return found
			}
		}
	}
	return nil
}

type builder struct {
	src   []byte
	limit int
}

func (b *builder) span(n *sitter.Node) (int, int) {
	start := int(n.StartByte()) - len(wrapPrefix)
	end := int(n.EndByte()) - len(wrapPrefix)
	start = max(0, min(start, b.limit))
	end = max(start, min(end, b.limit))
	return start, end - start
}

func (b *builder) text(n *sitter.Node) string {
	return n.Content(b.src)
}

func (b *builder) build(n *sitter.Node) *Node {
	if n == nil || n.IsMissing() {
		return nil
	}
	offset, length := b.span(n)
	switch n.Type() {
	case "object":
		obj := &Node{Kind: KindObject, Offset: offset, Length: length}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c == nil || c.Type() != "pair" {
				continue
			}
			if prop := b.buildPair(c); prop != nil {
				obj.Children = append(obj.Children, prop)
			}
		}
		return obj
	case "array":
		arr := &Node{Kind: KindArray, Offset: offset, Length: length}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c == nil || c.Type() == "comment" || c.Type() == "ERROR" {
				continue
			}
			if v := b.build(c); v != nil {
				arr.Children = append(arr.Children, v)
			}
		}
		return arr
	case "string":
		return stringNode(offset, length, b.text(n))
	case "number":
		v, ok := parseNumber(b.text(n))
		if !ok {
			return nil
		}
		return &Node{Kind: KindNumber, Offset: offset, Length: length, Num: v}
	case "unary_expression":
		op := n.ChildByFieldName("operator")
		arg := n.ChildByFieldName("argument")
		if op == nil || arg == nil || arg.Type() != "number" {
			return nil
		}
		v, ok := parseNumber(b.text(arg))
		if !ok {
			return nil
		}
		switch op.Type() {
		case "-":
			v = -v
		case "+":
		default:
			return nil
		}
		return &Node{Kind: KindNumber, Offset: offset, Length: length, Num: v}
	case "true":
		return &Node{Kind: KindBool, Offset: offset, Length: length, Bool: true}
	case "false":
		return &Node{Kind: KindBool, Offset: offset, Length: length}
	case "null":
		return &Node{Kind: KindNull, Offset: offset, Length: length}
	case "parenthesized_expression":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c != nil && c.Type() != "comment" {
				return b.build(c)
			}
		}
	}
	return nil
}

func (b *builder) buildPair(pair *sitter.Node) *Node {
	keyTS := pair.ChildByFieldName("key")
	valTS := pair.ChildByFieldName("value")
	if keyTS == nil || valTS == nil || keyTS.IsMissing() {
		return nil
	}
	key := b.buildKey(keyTS)
	if key == nil {
		return nil
	}
	value := b.build(valTS)
	if value == nil {
		return nil
	}
	return &Node{
		Kind:     KindProperty,
		Offset:   key.Offset,
		Length:   value.End() - key.Offset,
		Str:      key.Str,
		Children: []*Node{key, value},
	}
}

func (b *builder) buildKey(n *sitter.Node) *Node {
	offset, length := b.span(n)
	switch n.Type() {
	case "string":
		return stringNode(offset, length, b.text(n))
	case "property_identifier", "number":
		text := b.text(n)
		return &Node{Kind: KindString, Offset: offset, Length: length, Str: text, Raw: text, Bare: true}
	}
	return nil
}

func stringNode(offset, length int, literal string) *Node {
	n := &Node{Kind: KindString, Offset: offset, Length: length, Str: unquote(literal)}
	if len(literal) >= 2 {
		n.Raw = literal[1 : len(literal)-1]
	}
	return n
}

// unquote decodes a JSON string literal. Literals that do not decode (bad
// escapes, single quotes) fall back to their raw content.
func unquote(raw string) string {
	if len(raw) < 2 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			return s
		}
	}
	return raw[1 : len(raw)-1]
}

func parseNumber(text string) (float64, bool) {
	text = strings.ReplaceAll(text, "_", "")
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseInt(text, 0, 64); err == nil {
		return float64(v), true
	}
	return 0, false
}

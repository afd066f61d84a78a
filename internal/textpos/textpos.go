// Package textpos converts byte offsets in document text to editor
// positions and renders source excerpts for terminal output.
package textpos

import (
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Index maps byte offsets of one text to lines and UTF-16 columns.
type Index struct {
	text  string
	lines []int // byte offset of each line start
}

// New indexes text. Lines end at "\n"; a preceding "\r" stays part of the
// line it ends.
func New(text string) *Index {
	lines := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &Index{text: text, lines: lines}
}

// LineCount returns the number of lines, counting a trailing empty line.
func (x *Index) LineCount() int {
	return len(x.lines)
}

// Position returns the zero-based line and UTF-16 column of offset. Offsets
// past the end clamp to the end; offsets inside a multi-byte rune count the
// rune as consumed.
func (x *Index) Position(offset int) (line, character int) {
	offset = max(0, min(offset, len(x.text)))
	line = sort.Search(len(x.lines), func(i int) bool { return x.lines[i] > offset }) - 1
	for s := x.text[x.lines[line]:offset]; s != ""; {
		r, size := utf8.DecodeRuneInString(s)
		character += utf16.RuneLen(r)
		s = s[size:]
	}
	return line, character
}

// Offset is the inverse of Position. Columns beyond the line end clamp to
// it.
func (x *Index) Offset(line, character int) int {
	if line < 0 {
		return 0
	}
	if line >= len(x.lines) {
		return len(x.text)
	}
	start := x.lines[line]
	s := strings.TrimSuffix(x.Line(line), "\r")
	col := 0
	for i, r := range s {
		if col >= character {
			return start + i
		}
		col += utf16.RuneLen(r)
	}
	return start + len(s)
}

// Line returns the text of line n without its newline.
func (x *Index) Line(n int) string {
	if n < 0 || n >= len(x.lines) {
		return ""
	}
	end := len(x.text)
	if n+1 < len(x.lines) {
		end = x.lines[n+1] - 1
	}
	return x.text[x.lines[n]:end]
}

// Excerpt renders the line holding offset and a caret marker under the
// length bytes that follow, clipped to that line. An empty range gets a
// single caret. Tabs expand to four
// columns and wide runes take two, so the marker lines up in a terminal.
func (x *Index) Excerpt(offset, length int) (source, marker string) {
	line, _ := x.Position(offset)
	text := strings.TrimSuffix(x.Line(line), "\r")
	start := offset - x.lines[line]
	start = max(0, min(start, len(text)))
	end := max(start, min(start+length, len(text)))
	if end == start && start < len(text) {
		_, size := utf8.DecodeRuneInString(text[start:])
		end = start + size
	}

	var src, mark strings.Builder
	for i, r := range text {
		w := runewidth.RuneWidth(r)
		if r == '\t' {
			w = 4
			src.WriteString("    ")
		} else {
			src.WriteRune(r)
		}
		fill := " "
		if i >= start && i < end {
			fill = "^"
		}
		mark.WriteString(strings.Repeat(fill, w))
	}
	if start == len(text) {
		mark.WriteString("^")
	}
	return src.String(), strings.TrimRight(mark.String(), " ")
}

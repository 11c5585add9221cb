// Package srcfile maps byte offsets in query text to line and column
// positions and renders located errors with a source excerpt.
package srcfile

import (
	"fmt"
	"sort"
	"strings"
)

// File holds one query text and its line offsets.  JSQ compiles a single
// source at a time, so there is no multi-file concatenation here.
type File struct {
	Name  string
	Text  string
	lines []int
}

// New builds a File for text.  Name may be empty for inline query text.
func New(name, text string) *File {
	lines := []int{0}
	for off := 0; off < len(text); off++ {
		if text[off] == '\n' {
			lines = append(lines, off+1)
		}
	}
	return &File{Name: name, Text: text, lines: lines}
}

// Position converts a byte offset into a 1-based line/column Position.
func (f *File) Position(pos int) Position {
	if pos < 0 || pos > len(f.Text) {
		return Position{Pos: -1, Line: -1, Column: -1}
	}
	i := searchLine(f.lines, pos)
	return Position{Pos: pos, Line: i + 1, Column: pos - f.lines[i] + 1}
}

// Line returns the text of the line containing pos without its trailing
// newline.
func (f *File) Line(pos int) string {
	i := searchLine(f.lines, pos)
	start := f.lines[i]
	end := len(f.Text)
	if i+1 < len(f.lines) {
		end = f.lines[i+1]
	}
	line := f.Text[start:end]
	return strings.TrimSuffix(line, "\n")
}

func searchLine(lines []int, pos int) int {
	return sort.Search(len(lines), func(i int) bool { return lines[i] > pos }) - 1
}

type Position struct {
	Pos    int `json:"pos"`    // Byte offset in the source text.
	Line   int `json:"line"`   // 1-based line number.
	Column int `json:"column"` // 1-based column number.
}

func (p Position) IsValid() bool { return p.Pos >= 0 }

// Error is a message located in a File.  End may equal Pos for a point
// error.
type Error struct {
	Msg  string
	Pos  int
	End  int
	file *File
}

// NewError builds a located error for f.
func (f *File) NewError(msg string, pos, end int) *Error {
	return &Error{Msg: msg, Pos: pos, End: end, file: f}
}

func (e *Error) Error() string {
	if e.file == nil || !e.file.Position(e.Pos).IsValid() {
		return e.Msg
	}
	return e.file.FormatError(e.Msg, e.Pos, e.End)
}

// FormatError renders msg with the source line containing pos and a marker
// under the offending span.
func (f *File) FormatError(msg string, pos, end int) string {
	start := f.Position(pos)
	if !start.IsValid() {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	if f.Name != "" {
		fmt.Fprintf(&b, " in %s", f.Name)
	}
	line := f.Line(pos)
	fmt.Fprintf(&b, " at line %d, column %d:\n%s\n", start.Line, start.Column, line)
	if stop := f.Position(end); stop.IsValid() && end > pos {
		formatSpan(&b, line, start, stop)
	} else {
		formatPoint(&b, start)
	}
	return b.String()
}

func formatSpan(b *strings.Builder, line string, start, end Position) {
	b.WriteString(strings.Repeat(" ", start.Column-1))
	n := end.Column - start.Column
	if start.Line != end.Line {
		n = len(line) - start.Column + 1
	}
	if n < 1 {
		n = 1
	}
	b.WriteString(strings.Repeat("~", n))
}

func formatPoint(b *strings.Builder, start Position) {
	col := start.Column - 1
	for k := 0; k < col; k++ {
		if k >= col-4 && k != col-1 {
			b.WriteByte('=')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteString("^ ===")
}

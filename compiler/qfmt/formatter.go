package qfmt

import (
	"fmt"
	"strings"
)

// formatter accumulates canonical text with tab-sized indentation.
type formatter struct {
	sb     strings.Builder
	tab    int
	indent int
}

func (f *formatter) write(format string, args ...any) {
	fmt.Fprintf(&f.sb, format, args...)
}

// open writes a construct's head and indents what follows.
func (f *formatter) open(format string, args ...any) {
	f.write(format, args...)
	f.indent += f.tab
}

func (f *formatter) close() {
	f.indent -= f.tab
}

// ret starts a fresh line at the current indent.
func (f *formatter) ret() {
	f.sb.WriteByte('\n')
	for i := 0; i < f.indent; i++ {
		f.sb.WriteByte(' ')
	}
}

func (f *formatter) String() string { return f.sb.String() }

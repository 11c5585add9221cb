package parser

import (
	"fmt"
	"strings"

	"github.com/jsqlang/jsq/compiler/srcfile"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenLBrace
	tokenRBrace
	tokenLBracket
	tokenRBracket
	tokenColon
	tokenComma
	tokenDot
	tokenString
	tokenNumber
	tokenIdent
	tokenOp
)

var tokenNames = map[tokenKind]string{
	tokenEOF:      "end of query",
	tokenLBrace:   "'{'",
	tokenRBrace:   "'}'",
	tokenLBracket: "'['",
	tokenRBracket: "']'",
	tokenColon:    "':'",
	tokenComma:    "','",
	tokenDot:      "'.'",
	tokenString:   "string",
	tokenNumber:   "number",
	tokenIdent:    "identifier",
	tokenOp:       "operator",
}

func (k tokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return "token"
}

// token holds one lexeme.  For strings, text is the unescaped content while
// pos/end still span the quotes.
type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

type lexer struct {
	file *srcfile.File
	src  string
	off  int
}

func newLexer(file *srcfile.File) *lexer {
	return &lexer{file: file, src: file.Text}
}

func (l *lexer) errorf(pos, end int, format string, args ...any) error {
	return l.file.NewError(fmt.Sprintf(format, args...), pos, end)
}

func (l *lexer) scan() (token, error) {
	l.skipSpace()
	start := l.off
	if l.off >= len(l.src) {
		return token{tokenEOF, "", start, start}, nil
	}
	c := l.src[l.off]
	switch {
	case c == '{':
		return l.single(tokenLBrace), nil
	case c == '}':
		return l.single(tokenRBrace), nil
	case c == '[':
		return l.single(tokenLBracket), nil
	case c == ']':
		return l.single(tokenRBracket), nil
	case c == ':':
		return l.single(tokenColon), nil
	case c == ',':
		return l.single(tokenComma), nil
	case c == '.':
		return l.single(tokenDot), nil
	case c == '\'':
		return l.scanString()
	case c == '$':
		return l.scanOp()
	case c == '-' || isDigit(c):
		return l.scanNumber()
	case isIdentStart(c):
		return l.scanIdent()
	}
	return token{}, l.errorf(start, start+1, "unexpected character %q", rune(c))
}

func (l *lexer) single(kind tokenKind) token {
	tok := token{kind, l.src[l.off : l.off+1], l.off, l.off + 1}
	l.off++
	return tok
}

func (l *lexer) skipSpace() {
	for l.off < len(l.src) {
		switch l.src[l.off] {
		case ' ', '\t', '\r', '\n':
			l.off++
		default:
			return
		}
	}
}

// Strings are single-quoted with backslash escapes for the quote, the
// backslash itself, and the usual control characters.
func (l *lexer) scanString() (token, error) {
	start := l.off
	l.off++ // opening quote
	var b strings.Builder
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch c {
		case '\'':
			l.off++
			return token{tokenString, b.String(), start, l.off}, nil
		case '\\':
			if l.off+1 >= len(l.src) {
				return token{}, l.errorf(start, l.off+1, "unterminated string")
			}
			esc := l.src[l.off+1]
			switch esc {
			case '\'', '\\':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				return token{}, l.errorf(l.off, l.off+2, "invalid escape %q in string", "\\"+string(esc))
			}
			l.off += 2
		case '\n':
			return token{}, l.errorf(start, l.off, "unterminated string")
		default:
			b.WriteByte(c)
			l.off++
		}
	}
	return token{}, l.errorf(start, l.off, "unterminated string")
}

func (l *lexer) scanOp() (token, error) {
	start := l.off
	l.off++ // '$'
	if l.off >= len(l.src) || !isIdentStart(l.src[l.off]) {
		return token{}, l.errorf(start, l.off, "'$' must begin an operator name")
	}
	for l.off < len(l.src) && isIdentRune(l.src[l.off]) {
		l.off++
	}
	return token{tokenOp, l.src[start:l.off], start, l.off}, nil
}

func (l *lexer) scanIdent() (token, error) {
	start := l.off
	for l.off < len(l.src) && isIdentRune(l.src[l.off]) {
		l.off++
	}
	return token{tokenIdent, l.src[start:l.off], start, l.off}, nil
}

func (l *lexer) scanNumber() (token, error) {
	start := l.off
	if l.src[l.off] == '-' {
		l.off++
		if l.off >= len(l.src) || !isDigit(l.src[l.off]) {
			return token{}, l.errorf(start, l.off, "'-' must begin a number")
		}
	}
	for l.off < len(l.src) && isDigit(l.src[l.off]) {
		l.off++
	}
	if l.off < len(l.src) && l.src[l.off] == '.' {
		if l.off+1 >= len(l.src) || !isDigit(l.src[l.off+1]) {
			return token{}, l.errorf(start, l.off+1, "malformed number")
		}
		l.off++
		for l.off < len(l.src) && isDigit(l.src[l.off]) {
			l.off++
		}
	}
	if l.off < len(l.src) && (l.src[l.off] == 'e' || l.src[l.off] == 'E') {
		l.off++
		if l.off < len(l.src) && (l.src[l.off] == '+' || l.src[l.off] == '-') {
			l.off++
		}
		if l.off >= len(l.src) || !isDigit(l.src[l.off]) {
			return token{}, l.errorf(start, l.off, "malformed number")
		}
		for l.off < len(l.src) && isDigit(l.src[l.off]) {
			l.off++
		}
	}
	return token{tokenNumber, l.src[start:l.off], start, l.off}, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentRune(c byte) bool { return isIdentStart(c) || isDigit(c) }

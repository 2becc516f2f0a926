package tuplescript

import (
	"strings"

	"github.com/Comcast/tuplescript/core"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokPunct
)

// token is a lexeme.  For punctuation, Text is the single character.
type token struct {
	Kind tokenKind
	Text string
	Pos  core.Pos
}

func (t token) is(punct string) bool {
	return t.Kind == tokPunct && t.Text == punct
}

func (t token) String() string {
	switch t.Kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return `"` + t.Text + `"`
	}
	return "'" + t.Text + "'"
}

// singular characters are always tokens by themselves.
const singular = "={}[]+()$@:%'"

// lex splits source text into tokens.
//
// Whitespace separates tokens, "#" starts a comment that runs to the
// end of the line, and commas are ignored.  Everything else that's
// not a singular character or a string is part of a word, so
// "kernel.name", "-1", and "components.*.reqState" are each one
// token.
func lex(filename string, src []byte) ([]token, error) {
	var (
		acc       = make([]token, 0, len(src)/4)
		line, col = 1, 1
		i         = 0
	)

	pos := func() core.Pos {
		return core.Pos{File: filename, Line: line, Col: col}
	}
	advance := func() {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
		i++
	}

	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			advance()

		case c == '#':
			for i < len(src) && src[i] != '\n' {
				advance()
			}

		case strings.IndexByte(singular, c) >= 0:
			acc = append(acc, token{Kind: tokPunct, Text: string(c), Pos: pos()})
			advance()

		case c == '"':
			at := pos()
			advance()
			var s strings.Builder
			closed := false
			for i < len(src) && !closed {
				c = src[i]
				switch c {
				case '"':
					closed = true
				case '\\':
					if i+1 == len(src) {
						break
					}
					advance()
					switch src[i] {
					case 'n':
						s.WriteByte('\n')
					case 'r':
						s.WriteByte('\r')
					case 't':
						s.WriteByte('\t')
					case '\n':
						// Line continuation.
					default:
						s.WriteByte(src[i])
					}
				default:
					s.WriteByte(c)
				}
				advance()
			}
			if !closed {
				return nil, core.Errorf(core.ParseError, "unterminated string").At(at)
			}
			acc = append(acc, token{Kind: tokString, Text: s.String(), Pos: at})

		default:
			at := pos()
			start := i
			for i < len(src) && !isBreak(src[i]) {
				advance()
			}
			acc = append(acc, token{Kind: tokWord, Text: string(src[start:i]), Pos: at})
		}
	}

	acc = append(acc, token{Kind: tokEOF, Pos: pos()})
	return acc, nil
}

func isBreak(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', '#', '"':
		return true
	}
	return strings.IndexByte(singular, c) >= 0
}

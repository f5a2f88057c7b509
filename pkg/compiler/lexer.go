package compiler

import (
	"io"
	"unicode"
	"unicode/utf8"
)

// Lexer holds all mutable state for a single scanning pass over src.
// Positions are byte offsets so word text is sliced from src unchanged,
// including bytes that are not valid UTF-8.
type Lexer struct {
	src  string
	pos  int // byte offset of the next rune to consume
	line int // current 1-based source line
	col  int // current 1-based column
}

// NewLexer returns a Lexer positioned at the start of src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, pos: 0, line: 1, col: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	_, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if l.pos+size >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos+size:])
	return r
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) atComment() bool {
	return l.peek() == '/' && l.peek2() == '/'
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// scanWord collects a bare word. It stops at whitespace or at the start of
// a line comment, so "1//note" lexes as "1".
func (l *Lexer) scanWord() Word {
	w := Word{Line: l.line, Col: l.col}
	start := l.pos
	for l.pos < len(l.src) && !unicode.IsSpace(l.peek()) && !l.atComment() {
		l.advance()
	}
	w.Text = l.src[start:l.pos]
	return w
}

// scanString collects a string literal including both quotes. Escapes are
// skipped over here and decoded by the op builder.
func (l *Lexer) scanString() (Word, error) {
	w := Word{Line: l.line, Col: l.col, Quoted: true}
	start := l.pos
	l.advance() // consume opening "

	for l.pos < len(l.src) {
		r := l.peek()
		if r == '"' {
			l.advance()
			w.Text = l.src[start:l.pos]
			return w, nil
		}
		if r == '\n' {
			break
		}
		if r == '\\' {
			l.advance()
			if l.peek() == '\n' {
				break
			}
		}
		l.advance()
	}
	return Word{}, &SyntaxError{Line: w.Line, Col: w.Col, Err: ErrUnterminatedString}
}

// Next returns the next word, or io.EOF once the input is exhausted.
func (l *Lexer) Next() (Word, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Word{}, io.EOF
		}
		if l.atComment() {
			l.skipLineComment()
			continue
		}
		break
	}

	if l.peek() == '"' {
		return l.scanString()
	}
	return l.scanWord(), nil
}

// Lex splits src into words. It returns the words read so far together with
// the first error encountered.
func Lex(src string) ([]Word, error) {
	l := NewLexer(src)
	var words []Word
	for {
		w, err := l.Next()
		if err == io.EOF {
			return words, nil
		}
		if err != nil {
			return words, err
		}
		words = append(words, w)
	}
}

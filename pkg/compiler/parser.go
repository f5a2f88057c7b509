package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Builder turns lexed words into ops. It keeps the raw source around so
// errors can quote the offending line.
type Builder struct {
	sourceLines []string
}

func NewBuilder(rawSource string) *Builder {
	return &Builder{sourceLines: strings.Split(rawSource, "\n")}
}

// snippet returns the trimmed source line for a 1-based line number.
func (b *Builder) snippet(line int) string {
	idx := line - 1
	if idx < 0 || idx >= len(b.sourceLines) {
		return ""
	}
	return strings.TrimSpace(b.sourceLines[idx])
}

// Build maps each word to exactly one Op, in source order.
func (b *Builder) Build(words []Word) (Program, error) {
	prog := make(Program, 0, len(words))
	for _, w := range words {
		op, err := ParseWord(w)
		if err != nil {
			var unknown *UnknownWordError
			if errors.As(err, &unknown) {
				unknown.Context = b.snippet(w.Line)
			}
			return nil, err
		}
		prog = append(prog, op)
	}
	return prog, nil
}

// Build is shorthand for NewBuilder(src).Build(words).
func Build(words []Word, src string) (Program, error) {
	return NewBuilder(src).Build(words)
}

// ParseWord classifies a single word.
func ParseWord(w Word) (Op, error) {
	pos := Pos{Line: w.Line, Col: w.Col}

	if w.Quoted {
		s, err := unquote(w.Text)
		if err != nil {
			return Op{}, &SyntaxError{Line: w.Line, Col: w.Col, Msg: err.Error()}
		}
		return Op{Kind: Push, Value: Str(s), Pos: pos}, nil
	}

	if kind, ok := keywords[w.Text]; ok {
		return Op{Kind: kind, Pos: pos}, nil
	}

	if isDecimal(w.Text) {
		n, err := strconv.ParseUint(w.Text, 10, 64)
		if err != nil {
			return Op{}, &SyntaxError{Line: w.Line, Col: w.Col, Msg: fmt.Sprintf("integer literal %s does not fit in 64 bits", w.Text)}
		}
		return Op{Kind: Push, Value: Int(n), Pos: pos}, nil
	}

	return Op{}, &UnknownWordError{Word: w.Text, Line: w.Line, Col: w.Col}
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// unquote strips the surrounding quotes of a string literal and decodes
// its escape sequences.
func unquote(lit string) (string, error) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", ErrUnterminatedString
	}
	body := lit[1 : len(lit)-1]

	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("dangling backslash in string literal")
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		default:
			return "", fmt.Errorf("unknown escape sequence \\%c", body[i])
		}
	}
	return b.String(), nil
}

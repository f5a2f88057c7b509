package compiler

import (
	"errors"
	"fmt"
)

var (
	ErrUnterminatedString = errors.New("unterminated string literal")
	ErrUnterminatedBlock  = errors.New("unterminated block")
	ErrUnmatchedEnd       = errors.New("end without an open block")
	ErrDoWithoutWhile     = errors.New("do without a matching while")
	ErrDuplicateDo        = errors.New("while already has a do")
	ErrMissingDo          = errors.New("while block closed without a do")
	ErrUnresolved         = errors.New("control-flow op left unresolved")
)

// SyntaxError reports a malformed word.
type SyntaxError struct {
	Line, Col int
	Msg       string
	Err       error
}

func (e *SyntaxError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// UnknownWordError reports a word that is neither a literal nor a keyword.
type UnknownWordError struct {
	Word      string
	Line, Col int
	Context   string // the source line the word appeared on
}

func (e *UnknownWordError) Error() string {
	s := fmt.Sprintf("%d:%d: unknown word %q", e.Line, e.Col, e.Word)
	if e.Context != "" {
		s += "\n  |> " + e.Context
	}
	return s
}

// BlockError reports a structural problem found by Resolve.
type BlockError struct {
	Kind OpKind
	IP   int
	Pos  Pos
	Err  error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%s: %s at ip %d: %v", e.Pos, e.Kind, e.IP, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

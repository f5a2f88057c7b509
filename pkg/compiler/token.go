package compiler

import "fmt"

// OpKind identifies the operation an Op performs.
type OpKind int

const (
	Push OpKind = iota // push an integer or string literal

	// Control flow
	If    // "if"
	While // "while"
	Do    // "do"
	End   // "end"

	// Arithmetic and comparison
	Plus   // +
	Minus  // -
	Mult   // *
	Div    // /
	Equals // =
	GT     // >
	LT     // <

	// Output
	Print // "print"
	Write // "write"

	// Stack shuffling
	Dup  // "dup"
	Swap // "swap"
	Rot  // "rot"
	Drop // "drop"
	Over // "over"

	opKindCount // sentinel: number of kinds, keep last
)

// opKindNames is indexed by OpKind. Keyword kinds use their source spelling.
var opKindNames = [...]string{
	Push:   "push",
	If:     "if",
	While:  "while",
	Do:     "do",
	End:    "end",
	Plus:   "+",
	Minus:  "-",
	Mult:   "*",
	Div:    "/",
	Equals: "=",
	GT:     ">",
	LT:     "<",
	Print:  "print",
	Write:  "write",
	Dup:    "dup",
	Swap:   "swap",
	Rot:    "rot",
	Drop:   "drop",
	Over:   "over",
}

// A kind added without a name (or a name without a kind) fails to compile here.
var _ = [1]struct{}{}[len(opKindNames)-int(opKindCount)]

// keywords maps source words to their OpKind. Push has no keyword.
var keywords = func() map[string]OpKind {
	m := make(map[string]OpKind, len(opKindNames)-1)
	for k := Push + 1; k < opKindCount; k++ {
		m[opKindNames[k]] = k
	}
	return m
}()

func (k OpKind) String() string {
	if k >= 0 && k < opKindCount {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// IsBlock reports whether k takes part in block resolution.
func (k OpKind) IsBlock() bool {
	switch k {
	case If, While, Do, End:
		return true
	}
	return false
}

// AllOpKinds returns every OpKind in declaration order.
func AllOpKinds() []OpKind {
	kinds := make([]OpKind, 0, opKindCount)
	for k := Push; k < opKindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Word is a single lexical unit produced by the Lexer.
type Word struct {
	Text   string // exact source text; string literals keep their quotes
	Line   int    // 1-based source line of the first rune
	Col    int    // 1-based column of the first rune
	Quoted bool   // true for string literals
}

func (w Word) String() string {
	return fmt.Sprintf("%-14q  %d:%d", w.Text, w.Line, w.Col)
}

package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the payload carried by a Value.
type ValueKind uint8

const (
	NoValue  ValueKind = iota // control ops before resolution, and plain operators
	IntValue                  // unsigned 64-bit integer
	StrValue                  // string literal
)

// Value is the optional payload of an Op, and the element type of the
// interpreter's stack.
type Value struct {
	Kind ValueKind
	Int  uint64
	Str  string
}

// Int returns an integer Value.
func Int(v uint64) Value { return Value{Kind: IntValue, Int: v} }

// Str returns a string Value.
func Str(s string) Value { return Value{Kind: StrValue, Str: s} }

// IsSet reports whether v carries a payload.
func (v Value) IsSet() bool { return v.Kind != NoValue }

func (v Value) String() string {
	switch v.Kind {
	case IntValue:
		return strconv.FormatUint(v.Int, 10)
	case StrValue:
		return strconv.Quote(v.Str)
	default:
		return "-"
	}
}

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Op is one instruction of a Program.
type Op struct {
	Kind  OpKind
	Value Value
	Pos   Pos
}

func (o Op) String() string {
	if !o.Value.IsSet() {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Value)
}

// Target returns the jump target attached by Resolve.
func (o Op) Target() (int, bool) {
	if o.Value.Kind != IntValue || !o.Kind.IsBlock() {
		return 0, false
	}
	return int(o.Value.Int), true
}

// Program is a flat op sequence; the index of an op is its instruction pointer.
type Program []Op

func (p Program) String() string {
	var b strings.Builder
	for ip, op := range p {
		fmt.Fprintf(&b, "%4d  %s\n", ip, op)
	}
	return b.String()
}

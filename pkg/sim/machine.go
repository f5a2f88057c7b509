// Package sim interprets resolved rorth programs directly.
package sim

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/tjcampanella/rorth/pkg/compiler"
	"github.com/tjcampanella/rorth/pkg/logging"
)

var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrDivisionByZero = errors.New("division by zero")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrStepLimit      = errors.New("step limit exceeded")
)

// RuntimeError is a fault raised while executing op at IP.
type RuntimeError struct {
	IP  int
	Op  compiler.Op
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s at ip %d: %v", e.Op.Pos, e.Op.Kind, e.IP, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Machine executes a Program against a value stack.
type Machine struct {
	Program compiler.Program
	IP      int
	Halted  bool
	Steps   int

	// Output receives fd 1 writes and print output. If nil, os.Stdout is used.
	Output io.Writer

	stack     []compiler.Value
	sinks     map[uint64]io.Writer
	logger    *slog.Logger
	trace     bool
	stepLimit int
}

// Option configures a Machine.
type Option func(*Machine)

// WithOutput sets the stdout sink.
func WithOutput(w io.Writer) Option {
	return func(m *Machine) { m.Output = w }
}

// WithSink routes write calls for fd to w. fd 1 is the Output.
func WithSink(fd uint64, w io.Writer) Option {
	return func(m *Machine) { m.sinks[fd] = w }
}

// WithLogger enables step tracing when l is enabled at logging.LevelTrace.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithStepLimit makes Step fail with ErrStepLimit after n steps. Zero means no limit.
func WithStepLimit(n int) Option {
	return func(m *Machine) { m.stepLimit = n }
}

// New returns a Machine ready to run prog from IP 0.
func New(prog compiler.Program, opts ...Option) *Machine {
	m := &Machine{
		Program: prog,
		sinks:   make(map[uint64]io.Writer),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.trace = logging.TraceEnabled(m.logger)
	m.Halted = len(prog) == 0
	return m
}

// Load replaces the program and rewinds the IP, keeping the stack.
func (m *Machine) Load(prog compiler.Program) {
	m.Program = prog
	m.IP = 0
	m.Halted = len(prog) == 0
}

// Reset empties the stack and rewinds the IP.
func (m *Machine) Reset() {
	m.stack = m.stack[:0]
	m.IP = 0
	m.Steps = 0
	m.Halted = len(m.Program) == 0
}

// Stack returns a copy of the stack, bottom first.
func (m *Machine) Stack() []compiler.Value {
	out := make([]compiler.Value, len(m.stack))
	copy(out, m.stack)
	return out
}

// Push places v on top of the stack.
func (m *Machine) Push(v compiler.Value) {
	m.stack = append(m.stack, v)
}

func (m *Machine) outputSink() io.Writer {
	if m.Output != nil {
		return m.Output
	}
	return os.Stdout
}

func (m *Machine) sink(fd uint64) io.Writer {
	if fd == 1 {
		return m.outputSink()
	}
	return m.sinks[fd]
}

func (m *Machine) pop() (compiler.Value, error) {
	if len(m.stack) == 0 {
		return compiler.Value{}, ErrStackUnderflow
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) popInt() (uint64, error) {
	v, err := m.pop()
	if err != nil {
		return 0, err
	}
	if v.Kind != compiler.IntValue {
		return 0, fmt.Errorf("%w: expected integer, got %s", ErrTypeMismatch, v)
	}
	return v.Int, nil
}

func (m *Machine) popStr() (string, error) {
	v, err := m.pop()
	if err != nil {
		return "", err
	}
	if v.Kind != compiler.StrValue {
		return "", fmt.Errorf("%w: expected string, got %s", ErrTypeMismatch, v)
	}
	return v.Str, nil
}

// popN pops n values and returns them top first. Nothing is popped when the
// stack holds fewer than n values.
func (m *Machine) popN(n int) ([]compiler.Value, error) {
	if len(m.stack) < n {
		return nil, ErrStackUnderflow
	}
	out := make([]compiler.Value, n)
	for i := range out {
		out[i] = m.stack[len(m.stack)-1-i]
	}
	m.stack = m.stack[:len(m.stack)-n]
	return out, nil
}

// popInts pops two integers: a is the top of the stack, b the one below.
func (m *Machine) popInts() (a, b uint64, err error) {
	vals, err := m.popN(2)
	if err != nil {
		return 0, 0, err
	}
	for _, v := range vals {
		if v.Kind != compiler.IntValue {
			return 0, 0, fmt.Errorf("%w: expected integer, got %s", ErrTypeMismatch, v)
		}
	}
	return vals[0].Int, vals[1].Int, nil
}

func boolValue(ok bool) compiler.Value {
	if ok {
		return compiler.Int(1)
	}
	return compiler.Int(0)
}

// FormatPrint renders n the way the print op does: decimal digits
// right-aligned in a NUL-padded field of compiler.PrintWidth bytes, then a newline.
func FormatPrint(n uint64) []byte {
	var buf [compiler.PrintWidth + 1]byte
	digits := strconv.FormatUint(n, 10)
	copy(buf[compiler.PrintWidth-len(digits):], digits)
	buf[compiler.PrintWidth] = '\n'
	return buf[:]
}

func (m *Machine) fault(op compiler.Op, err error) error {
	return &RuntimeError{IP: m.IP, Op: op, Err: err}
}

// Step executes the op at IP.
func (m *Machine) Step() error {
	if m.Halted {
		return nil
	}
	if m.IP >= len(m.Program) {
		m.Halted = true
		return nil
	}

	op := m.Program[m.IP]
	if m.stepLimit > 0 && m.Steps >= m.stepLimit {
		return m.fault(op, ErrStepLimit)
	}
	m.Steps++

	if m.trace {
		logging.Trace(m.logger, "step", "ip", m.IP, "op", op.String(), "depth", len(m.stack))
	}

	next := m.IP + 1

	switch op.Kind {
	case compiler.Push:
		if !op.Value.IsSet() {
			return m.fault(op, errors.New("push without a value"))
		}
		m.stack = append(m.stack, op.Value)

	case compiler.Plus:
		a, b, err := m.popInts()
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(compiler.Int(a + b))

	case compiler.Minus:
		a, b, err := m.popInts()
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(compiler.Int(b - a))

	case compiler.Mult:
		a, b, err := m.popInts()
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(compiler.Int(a * b))

	case compiler.Div:
		a, b, err := m.popInts()
		if err != nil {
			return m.fault(op, err)
		}
		if a == 0 {
			return m.fault(op, ErrDivisionByZero)
		}
		m.Push(compiler.Int(b / a))

	case compiler.Equals:
		a, b, err := m.popInts()
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(boolValue(b == a))

	case compiler.GT:
		a, b, err := m.popInts()
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(boolValue(b > a))

	case compiler.LT:
		a, b, err := m.popInts()
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(boolValue(b < a))

	case compiler.Print:
		a, err := m.popInt()
		if err != nil {
			return m.fault(op, err)
		}
		if _, err := m.outputSink().Write(FormatPrint(a)); err != nil {
			return m.fault(op, err)
		}

	case compiler.Write:
		vals, err := m.popN(3)
		if err != nil {
			return m.fault(op, err)
		}
		// vals[0] is the length operand; the whole string is always written
		fd, s := vals[1], vals[2]
		if fd.Kind != compiler.IntValue || s.Kind != compiler.StrValue {
			return m.fault(op, fmt.Errorf("%w: write expects string, fd, length", ErrTypeMismatch))
		}
		if w := m.sink(fd.Int); w != nil {
			if _, err := io.WriteString(w, s.Str); err != nil {
				return m.fault(op, err)
			}
		}

	case compiler.Dup:
		vals, err := m.popN(1)
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(vals[0])
		m.Push(vals[0])

	case compiler.Swap:
		vals, err := m.popN(2)
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(vals[0])
		m.Push(vals[1])

	case compiler.Rot:
		vals, err := m.popN(3)
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(vals[1])
		m.Push(vals[0])
		m.Push(vals[2])

	case compiler.Drop:
		if _, err := m.popN(1); err != nil {
			return m.fault(op, err)
		}

	case compiler.Over:
		vals, err := m.popN(2)
		if err != nil {
			return m.fault(op, err)
		}
		m.Push(vals[1])
		m.Push(vals[0])
		m.Push(vals[1])

	case compiler.If, compiler.Do:
		target, ok := op.Target()
		if !ok {
			return m.fault(op, compiler.ErrUnresolved)
		}
		cond, err := m.popInt()
		if err != nil {
			return m.fault(op, err)
		}
		if cond == 0 {
			next = target
		}

	case compiler.While:
		// loop head marker only

	case compiler.End:
		target, ok := op.Target()
		if !ok {
			return m.fault(op, compiler.ErrUnresolved)
		}
		if target != m.IP {
			next = target
		}

	default:
		return m.fault(op, fmt.Errorf("unhandled op kind %s", op.Kind))
	}

	m.IP = next
	if m.IP >= len(m.Program) {
		m.Halted = true
	}
	return nil
}

// Run steps until the program ends or a fault occurs.
func (m *Machine) Run() error {
	for !m.Halted {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Run interprets prog, writing stdout to w.
func Run(prog compiler.Program, w io.Writer, opts ...Option) error {
	return New(prog, append([]Option{WithOutput(w)}, opts...)...).Run()
}

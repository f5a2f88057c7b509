package sim

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tjcampanella/rorth/pkg/compiler"
)

// snapshotValue is the JSON form of one stack entry.
type snapshotValue struct {
	Int *uint64 `json:"int,omitempty"`
	Str *string `json:"str,omitempty"`
}

// humanReadableState is the JSON-serializable snapshot of the machine.
type humanReadableState struct {
	Version int             `json:"version"`
	Steps   int             `json:"steps"`
	Stack   []snapshotValue `json:"stack"`
}

const snapshotVersion = 1

// Snapshot writes the stack and step counter as JSON. The program and IP are
// not saved: a snapshot is restored into whatever program runs next.
func (m *Machine) Snapshot(w io.Writer) error {
	state := humanReadableState{
		Version: snapshotVersion,
		Steps:   m.Steps,
		Stack:   make([]snapshotValue, 0, len(m.stack)),
	}
	for _, v := range m.stack {
		switch v.Kind {
		case compiler.IntValue:
			n := v.Int
			state.Stack = append(state.Stack, snapshotValue{Int: &n})
		case compiler.StrValue:
			s := v.Str
			state.Stack = append(state.Stack, snapshotValue{Str: &s})
		default:
			return fmt.Errorf("snapshot: stack holds a value without a kind")
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

// Restore replaces the stack with the one stored in a snapshot.
func (m *Machine) Restore(r io.Reader) error {
	var state humanReadableState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if state.Version != snapshotVersion {
		return fmt.Errorf("restore: unsupported snapshot version %d", state.Version)
	}

	stack := make([]compiler.Value, 0, len(state.Stack))
	for i, sv := range state.Stack {
		switch {
		case sv.Int != nil && sv.Str == nil:
			stack = append(stack, compiler.Int(*sv.Int))
		case sv.Str != nil && sv.Int == nil:
			stack = append(stack, compiler.Str(*sv.Str))
		default:
			return fmt.Errorf("restore: entry %d must hold exactly one of int or str", i)
		}
	}

	m.stack = stack
	m.Steps = state.Steps
	return nil
}

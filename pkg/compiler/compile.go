package compiler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tjcampanella/rorth/pkg/asm"
)

// Parse lexes, builds and resolves src into a Program ready for either backend.
func Parse(src string) (Program, error) {
	words, err := Lex(src)
	if err != nil {
		return nil, fmt.Errorf("lex error: %w", err)
	}

	prog, err := Build(words, src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	if err := Resolve(prog); err != nil {
		return nil, fmt.Errorf("block error: %w", err)
	}

	slog.Debug("parsed program", "words", len(words), "ops", len(prog))
	return prog, nil
}

// Compile parses src and returns the generated assembly.
func Compile(src string) (string, error) {
	prog, err := Parse(src)
	if err != nil {
		return "", err
	}
	return emit(prog)
}

// emit generates the assembly for a resolved prog. The listing is read back
// with the asm package to make sure every label it references exists.
func emit(prog Program) (string, error) {
	assembly, err := Generate(prog)
	if err != nil {
		return "", err
	}

	listing, err := asm.Parse(assembly)
	if err != nil {
		return assembly, fmt.Errorf("generated assembly is malformed: %w", err)
	}

	slog.Debug("generated assembly",
		"bytes", len(assembly),
		"instructions", len(listing.Instructions),
		"literals", len(listing.Strings))
	return assembly, nil
}

// CompileFile compiles src into asmPath.
func CompileFile(src, asmPath string) error {
	prog, err := Parse(src)
	if err != nil {
		return err
	}
	return CompileProgram(prog, asmPath)
}

// CompileProgram writes the assembly for an already parsed prog to asmPath.
// The assembly goes to a temporary file in the same directory and is renamed
// into place, so a failed write never leaves a partial artifact behind.
func CompileProgram(prog Program, asmPath string) error {
	assembly, err := emit(prog)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(asmPath), ".rorth-*.asm")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(assembly); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", asmPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", asmPath, err)
	}
	if err := os.Rename(tmpName, asmPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

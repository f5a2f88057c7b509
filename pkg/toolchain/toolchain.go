// Package toolchain drives the external assembler and linker that turn the
// generated NASM listing into a static executable, and runs the result.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tjcampanella/rorth/pkg/config"
	"github.com/tjcampanella/rorth/pkg/logging"
)

// Command is one external process invocation.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts cmd and waits for it to exit.
func (ExecRunner) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr
	return c.Run()
}

// Builder assembles and links generated assembly.
type Builder struct {
	Config config.Toolchain
	Runner Runner
	Logger *slog.Logger
}

// NewBuilder returns a Builder using ExecRunner. A nil logger discards.
func NewBuilder(cfg config.Toolchain, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Builder{Config: cfg, Runner: ExecRunner{}, Logger: logger}
}

// BuildError reports a failed assembler or linker step with its captured stderr.
type BuildError struct {
	Step   string
	Cmd    Command
	Stderr string
	Err    error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("%s failed: %s: %v", e.Step, e.Cmd, e.Err)
	if e.Stderr != "" {
		msg += "\n" + strings.TrimRight(e.Stderr, "\n")
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// ObjectPath and ExePath derive the artifact names for asmPath.
func ObjectPath(asmPath string) string {
	return strings.TrimSuffix(asmPath, filepath.Ext(asmPath)) + ".o"
}

func ExePath(asmPath string) string {
	return strings.TrimSuffix(asmPath, filepath.Ext(asmPath))
}

// Build assembles asmPath into an object file next to it and links that into
// an executable. It returns the executable path.
func (b *Builder) Build(ctx context.Context, asmPath string) (string, error) {
	objPath := ObjectPath(asmPath)
	exePath := ExePath(asmPath)
	if exePath == asmPath {
		return "", fmt.Errorf("build %s: assembly file needs an extension", asmPath)
	}

	asmArgs := append(append([]string{}, b.Config.AssemblerFlags...), "-o", objPath, asmPath)
	if err := b.step(ctx, "assemble", Command{Name: b.Config.Assembler, Args: asmArgs}); err != nil {
		return "", err
	}

	ldArgs := append(append([]string{}, b.Config.LinkerFlags...), "-o", exePath, objPath)
	if err := b.step(ctx, "link", Command{Name: b.Config.Linker, Args: ldArgs}); err != nil {
		return "", err
	}
	return exePath, nil
}

func (b *Builder) step(ctx context.Context, name string, cmd Command) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b.Logger.Info(name, "cmd", cmd.String())
	if err := b.Runner.Run(ctx, cmd); err != nil {
		return &BuildError{Step: name, Cmd: cmd, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// Execute runs exePath and returns its exit status. A non-zero status is not
// an error; err is set only when the process could not be run.
func (b *Builder) Execute(ctx context.Context, exePath string, stdout, stderr io.Writer) (int, error) {
	if !strings.ContainsRune(exePath, filepath.Separator) {
		exePath = "." + string(filepath.Separator) + exePath
	}
	cmd := Command{Name: exePath, Stdout: stdout, Stderr: stderr}
	b.Logger.Info("run", "cmd", cmd.String())

	err := b.Runner.Run(ctx, cmd)
	if err == nil {
		return 0, nil
	}
	var exit interface{ ExitCode() int }
	if errors.As(err, &exit) && exit.ExitCode() >= 0 {
		return exit.ExitCode(), nil
	}
	return -1, fmt.Errorf("run %s: %w", exePath, err)
}

// Available reports whether the configured assembler and linker are on PATH.
func Available(cfg config.Toolchain) bool {
	for _, name := range []string{cfg.Assembler, cfg.Linker} {
		if _, err := exec.LookPath(name); err != nil {
			return false
		}
	}
	return true
}

package toolchain

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/tjcampanella/rorth/pkg/compiler"
)

// CompileAndRun compiles src into workDir under the given base name, builds
// it and runs the executable. It returns the program's exit status.
func (b *Builder) CompileAndRun(ctx context.Context, src, workDir, name string, stdout, stderr io.Writer) (int, error) {
	asmPath := filepath.Join(workDir, name+".asm")
	if err := compiler.CompileFile(src, asmPath); err != nil {
		return -1, err
	}

	exePath, err := b.Build(ctx, asmPath)
	if err != nil {
		return -1, err
	}
	defer os.Remove(ObjectPath(asmPath))

	return b.Execute(ctx, exePath, stdout, stderr)
}

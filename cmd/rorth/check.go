package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tebeka/atexit"

	"github.com/tjcampanella/rorth/pkg/compiler"
	"github.com/tjcampanella/rorth/pkg/sim"
	"github.com/tjcampanella/rorth/pkg/toolchain"
	"github.com/tjcampanella/rorth/pkg/utils"
)

// outcome is what one backend produced for a program.
type outcome struct {
	stdout string
	code   int
}

func (o outcome) String() string {
	return fmt.Sprintf("exit %d, %d bytes", o.code, len(o.stdout))
}

func (a *app) cmdCheck(args []string) int {
	dir := "examples"
	if len(args) > 0 {
		dir = args[0]
	}

	sources, err := utils.FindSources(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(sources) == 0 {
		fmt.Fprintf(os.Stderr, "no *%s files in %s\n", utils.SourceExt, dir)
		return 1
	}

	native := toolchain.Available(a.cfg.Toolchain)
	if !native {
		a.logger.Warn("assembler or linker not found, native backend skipped",
			"assembler", a.cfg.Toolchain.Assembler, "linker", a.cfg.Toolchain.Linker)
	}

	workDir, err := os.MkdirTemp("", "rorth-check-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cleanup := atexit.Register(func() { os.RemoveAll(workDir) })
	defer func() {
		_ = cleanup.Cancel()
		os.RemoveAll(workDir)
	}()

	builder := toolchain.NewBuilder(a.cfg.Toolchain, a.logger)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Program", "Interpreter", "Native", "Result"})

	failed := 0
	for _, path := range sources {
		name := utils.BaseName(path)
		data, err := os.ReadFile(path)
		if err != nil {
			t.AppendRow(table.Row{name, err, "", "FAIL"})
			failed++
			continue
		}
		src := string(data)

		simOut, err := interpret(src)
		if err != nil {
			t.AppendRow(table.Row{name, err, "", "FAIL"})
			failed++
			continue
		}
		if !native {
			t.AppendRow(table.Row{name, simOut, "-", "SKIP"})
			continue
		}

		var stdout bytes.Buffer
		code, err := builder.CompileAndRun(a.ctx, src, workDir, name, &stdout, io.Discard)
		if err != nil {
			t.AppendRow(table.Row{name, simOut, err, "FAIL"})
			failed++
			continue
		}
		comOut := outcome{stdout: stdout.String(), code: code}

		result := "PASS"
		if comOut != simOut {
			result = "FAIL"
			failed++
		}
		t.AppendRow(table.Row{name, simOut, comOut, result})
	}

	t.AppendFooter(table.Row{"", "", "failed", fmt.Sprintf("%d/%d", failed, len(sources))})
	t.Render()

	if failed > 0 {
		return 1
	}
	return 0
}

// interpret runs src with the interpreter. A runtime fault is an outcome with
// exit status 1, like the native fault routines; only parse errors are errors.
func interpret(src string) (outcome, error) {
	prog, err := compiler.Parse(src)
	if err != nil {
		return outcome{}, err
	}

	var stdout bytes.Buffer
	m := sim.New(prog, sim.WithOutput(&stdout))
	if err := m.Run(); err != nil {
		return outcome{stdout: stdout.String(), code: 1}, nil
	}
	return outcome{stdout: stdout.String()}, nil
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tjcampanella/rorth/pkg/compiler"
	"github.com/tjcampanella/rorth/pkg/logging"
	"github.com/tjcampanella/rorth/pkg/toolchain"
	"github.com/tjcampanella/rorth/pkg/utils"
)

func (a *app) cmdCom(args []string) int {
	fs := flag.NewFlagSet("com", flag.ContinueOnError)
	run := fs.Bool("r", false, "run the executable after building it")
	silent := fs.Bool("s", false, "do not log build steps")
	outDir := fs.String("o", a.cfg.Output.Dir, "output directory (default: next to the source)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rorth com [-r] [-s] [-o dir] <file>")
		return 2
	}
	srcPath := fs.Arg(0)

	logger := a.logger
	if *silent {
		logger = logging.Discard()
	}

	prog, _, err := readProgram(srcPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	asmPath, exePath, err := utils.ArtifactPaths(srcPath, *outDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	logger.Info("generate", "asm", asmPath)
	if err := compiler.CompileProgram(prog, asmPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	builder := toolchain.NewBuilder(a.cfg.Toolchain, logger)
	if _, err := builder.Build(a.ctx, asmPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !a.cfg.Output.KeepIntermediate {
		os.Remove(toolchain.ObjectPath(asmPath))
	}

	if !*run {
		return 0
	}
	code, err := builder.Execute(a.ctx, exePath, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return code
}

func (a *app) cmdDump(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: rorth dump <file>")
		return 2
	}

	prog, _, err := readProgram(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("%s", args[0])
	t.AppendHeader(table.Row{"IP", "Op", "Value", "Jump", "Pos"})
	for ip, op := range prog {
		value, jump := op.Value.String(), ""
		if target, ok := op.Target(); ok {
			value = "-"
			if op.Kind != compiler.While {
				jump = fmt.Sprintf("-> %d", target)
			}
		}
		t.AppendRow(table.Row{ip, op.Kind, value, jump, op.Pos})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d ops", len(prog))})
	t.Render()
	return 0
}

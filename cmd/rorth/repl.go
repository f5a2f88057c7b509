package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/peterh/liner"
	"github.com/tebeka/atexit"

	"github.com/tjcampanella/rorth/pkg/compiler"
	"github.com/tjcampanella/rorth/pkg/sim"
)

const (
	historyFile = ".rorth_history"
	promptMain  = "rorth> "
	promptCont  = "   ... "

	// replStepLimit stops a runaway loop without killing the session.
	replStepLimit = 50_000_000
)

const replHelp = `REPL commands:
  :stack        show the stack, top first
  :reset        empty the stack
  :save <file>  write the stack to file
  :load <file>  replace the stack with the one saved in file
  :quit         exit
`

func (a *app) cmdRepl(_ []string) int {
	fmt.Printf("%s %s REPL\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands.\n", appName, version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	saveHistory := func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
		ln.Close()
	}
	id := atexit.Register(saveHistory)
	defer func() {
		_ = id.Cancel()
		saveHistory()
	}()

	stdout := bufio.NewWriter(os.Stdout)
	m := sim.New(nil,
		sim.WithOutput(stdout),
		sim.WithSink(2, os.Stderr),
		sim.WithLogger(a.logger),
		sim.WithStepLimit(replStepLimit),
	)

	for {
		src, ok := readInput(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		trimmed := strings.TrimSpace(src)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			if quit := replCommand(m, trimmed); quit {
				return 0
			}
			continue
		}

		prog, err := compiler.Parse(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		m.Load(prog)
		m.Steps = 0
		err = m.Run()
		_ = stdout.Flush()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// readInput reads one line, and keeps reading while the source so far has
// an open if/while block.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder

	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := compiler.Parse(src); errors.Is(err, compiler.ErrUnterminatedBlock) {
			continue
		}
		return src, true
	}
}

// replCommand runs a :command and reports whether the session should end.
func replCommand(m *sim.Machine, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":help":
		fmt.Print(replHelp)
	case ":stack":
		printStack(m.Stack())
	case ":reset":
		m.Reset()
	case ":save", ":load":
		if len(fields) != 2 {
			fmt.Fprintf(os.Stderr, "usage: %s <file>\n", fields[0])
			return false
		}
		var err error
		if fields[0] == ":save" {
			err = saveStack(m, fields[1])
		} else {
			err = loadStack(m, fields[1])
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s. Type :help for a list.\n", fields[0])
	}
	return false
}

func printStack(stack []compiler.Value) {
	if len(stack) == 0 {
		fmt.Println("stack is empty")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Depth", "Value"})
	for i := len(stack) - 1; i >= 0; i-- {
		t.AppendRow(table.Row{len(stack) - 1 - i, stack[i]})
	}
	t.Render()
}

func saveStack(m *sim.Machine, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Snapshot(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func loadStack(m *sim.Machine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Restore(f)
}

// Command rorth interprets or compiles rorth programs.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/tebeka/atexit"

	"github.com/tjcampanella/rorth/pkg/compiler"
	"github.com/tjcampanella/rorth/pkg/config"
	"github.com/tjcampanella/rorth/pkg/logging"
	"github.com/tjcampanella/rorth/pkg/sim"
	"github.com/tjcampanella/rorth/pkg/utils"
)

const (
	appName = "rorth"
	version = "0.1.0"
)

const usageText = `usage: rorth [-config file] [-log-level level] <command> [args]

commands:
  sim <file>                    interpret a program
  com [-r] [-s] [-o dir] <file> compile a program to a native executable
  dump <file>                   show the resolved program
  repl                          interactive session with a persistent stack
  check [dir]                   run every example with both backends and compare
  version                       print the version
`

// app carries the settings shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	ctx    context.Context
}

func usage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	fs := flag.NewFlagSet(appName, flag.ExitOnError)
	configPath := fs.String("config", "", "settings file (default ./"+config.DefaultFile+" if present)")
	logLevel := fs.String("log-level", "", "override log.level from the settings file")
	fs.Usage = usage
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		usage()
		atexit.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		atexit.Fatal(err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		atexit.Fatal(err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	atexit.Register(stop)

	a := &app{cfg: cfg, logger: logger, ctx: ctx}

	var code int
	switch args[0] {
	case "sim":
		code = a.cmdSim(args[1:])
	case "com":
		code = a.cmdCom(args[1:])
	case "dump":
		code = a.cmdDump(args[1:])
	case "repl":
		code = a.cmdRepl(args[1:])
	case "check":
		code = a.cmdCheck(args[1:])
	case "version":
		fmt.Println(appName, version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		code = 2
	}
	atexit.Exit(code)
}

// readProgram loads and parses a source file.
func readProgram(path string) (compiler.Program, string, error) {
	fullPath, _, err := utils.GetPathInfo(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, "", err
	}
	src := string(data)

	prog, err := compiler.Parse(src)
	if err != nil {
		return nil, src, fmt.Errorf("%s: %w", path, err)
	}
	return prog, src, nil
}

func (a *app) cmdSim(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: rorth sim <file>")
		return 2
	}

	prog, _, err := readProgram(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	stdout := bufio.NewWriter(os.Stdout)
	m := sim.New(prog,
		sim.WithOutput(stdout),
		sim.WithSink(2, os.Stderr),
		sim.WithLogger(a.logger),
	)
	runErr := m.Run()
	if err := stdout.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if runErr != nil {
		var rte *sim.RuntimeError
		if errors.As(runErr, &rte) {
			a.logger.Debug("fault", "ip", rte.IP, "op", rte.Op.String(), "steps", m.Steps)
		}
		fmt.Fprintln(os.Stderr, runErr)
		return 1
	}
	return 0
}

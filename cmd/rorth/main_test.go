package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tjcampanella/rorth/pkg/config"
	"github.com/tjcampanella/rorth/pkg/logging"
	"github.com/tjcampanella/rorth/pkg/sim"
)

func testApp() *app {
	cfg := config.Default()
	cfg.Toolchain.Assembler = "rorth-test-missing-assembler"
	return &app{cfg: cfg, logger: logging.Discard(), ctx: context.Background()}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		src  string
		want outcome
	}{
		{"7 print", outcome{stdout: string(sim.FormatPrint(7))}},
		{"1 print +", outcome{stdout: string(sim.FormatPrint(1)), code: 1}},
		{"1 0 /", outcome{code: 1}},
		{`"hi" 2 2 write`, outcome{}},
	}
	for _, tc := range tests {
		got, err := interpret(tc.src)
		if err != nil {
			t.Errorf("interpret(%q) error: %v", tc.src, err)
			continue
		}
		if got != tc.want {
			t.Errorf("interpret(%q) = %+v; want %+v", tc.src, got, tc.want)
		}
	}

	if _, err := interpret("1 if"); err == nil {
		t.Error("interpret should report parse errors")
	}
}

func TestReadProgram(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.rorth")
	bad := filepath.Join(dir, "bad.rorth")
	if err := os.WriteFile(good, []byte("1 if 2 print end"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("1 nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	prog, _, err := readProgram(good)
	if err != nil {
		t.Fatalf("readProgram(good) error: %v", err)
	}
	if len(prog) != 5 {
		t.Errorf("got %d ops; want 5", len(prog))
	}

	if _, _, err := readProgram(bad); err == nil || !strings.Contains(err.Error(), "bad.rorth") {
		t.Errorf("readProgram(bad) error = %v; want it to name the file", err)
	}
}

func TestCheckWithoutToolchain(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ok.rorth"), []byte("1 print"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := testApp().cmdCheck([]string{dir}); code != 0 {
		t.Errorf("cmdCheck = %d; want 0 when only the interpreter runs", code)
	}
}

func TestCheckReportsParseErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.rorth"), []byte("end"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := testApp().cmdCheck([]string{dir}); code != 1 {
		t.Errorf("cmdCheck = %d; want 1", code)
	}
}

func TestCheckEmptyDir(t *testing.T) {
	if code := testApp().cmdCheck([]string{t.TempDir()}); code != 1 {
		t.Errorf("cmdCheck = %d; want 1 for a directory without programs", code)
	}
}

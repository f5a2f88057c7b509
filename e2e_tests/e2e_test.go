package e2e_tests

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tjcampanella/rorth/pkg/compiler"
	"github.com/tjcampanella/rorth/pkg/config"
	"github.com/tjcampanella/rorth/pkg/sim"
	"github.com/tjcampanella/rorth/pkg/toolchain"
	"github.com/tjcampanella/rorth/pkg/utils"
)

const examplesDir = "../examples"

// result is the observable behaviour of one program run.
type result struct {
	Stdout string
	Code   int
}

func printed(nums ...uint64) string {
	var b strings.Builder
	for _, n := range nums {
		b.Write(sim.FormatPrint(n))
	}
	return b.String()
}

// expected holds the stdout and exit status of every program in examplesDir.
var expected = map[string]result{
	"arithmetic": {Stdout: printed(69, 42, 42, 14, 18446744073709551615, 0)},
	"stack":      {Stdout: printed(1, 3, 2, 4, 5, 6, 7, 6, 16, 9)},
	"compare":    {Stdout: printed(1, 0, 1, 0, 1, 1)},
	"if":         {Stdout: printed(10, 30, 50)},
	"loop":       {Stdout: printed(5, 4, 3, 2, 1)},
	"nested":     {Stdout: printed(1, 2, 3, 2, 4, 6, 3, 6, 9)},
	"hello":      {Stdout: "Hello, World!\ntab\tand \"quotes\"\n"},
	"fizzbuzz": {Stdout: printed(1, 2) + "Fizz\n" + printed(4) + "Buzz\nFizz\n" + printed(7, 8) +
		"Fizz\nBuzz\n" + printed(11) + "Fizz\n" + printed(13, 14) + "FizzBuzz\n"},
	"underflow": {Stdout: printed(1, 2), Code: 1},
	"divzero":   {Stdout: printed(7), Code: 1},
}

func readExample(name string) string {
	data, err := os.ReadFile(filepath.Join(examplesDir, name+utils.SourceExt))
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

// interpret runs src with the interpreter; a runtime fault maps to status 1.
func interpret(src string) (result, error) {
	prog, err := compiler.Parse(src)
	if err != nil {
		return result{}, err
	}
	var stdout bytes.Buffer
	if err := sim.Run(prog, &stdout); err != nil {
		GinkgoWriter.Printf("interpreter fault: %v\n", err)
		return result{Stdout: stdout.String(), Code: 1}, nil
	}
	return result{Stdout: stdout.String()}, nil
}

// native compiles src with the external toolchain and runs it.
func native(src, name string) result {
	cfg := config.Default().Toolchain
	if !toolchain.Available(cfg) {
		Skip("nasm or ld not found on PATH")
	}
	builder := toolchain.NewBuilder(cfg, nil)

	var stdout bytes.Buffer
	code, err := builder.CompileAndRun(context.Background(), src, GinkgoT().TempDir(), name, &stdout, GinkgoWriter)
	Expect(err).NotTo(HaveOccurred())
	return result{Stdout: stdout.String(), Code: code}
}

func exampleEntries() []TableEntry {
	var entries []TableEntry
	for _, name := range keys(expected) {
		entries = append(entries, Entry(name, name))
	}
	return entries
}

var _ = Describe("Examples", func() {
	It("should have an expectation for every example program", func() {
		sources, err := utils.FindSources(examplesDir)
		Expect(err).NotTo(HaveOccurred())

		var names []string
		for _, path := range sources {
			names = append(names, utils.BaseName(path))
		}
		Expect(names).To(ConsistOf(keys(expected)))
	})

	DescribeTable("interpreter",
		func(name string) {
			got, err := interpret(readExample(name))

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(expected[name]))
		},
		exampleEntries(),
	)

	DescribeTable("native executable",
		func(name string) {
			got := native(readExample(name), name)

			Expect(got).To(Equal(expected[name]))
		},
		exampleEntries(),
	)
})

var _ = Describe("Backend equivalence", func() {
	DescribeTable("both backends agree",
		func(src string) {
			want, err := interpret(src)
			Expect(err).NotTo(HaveOccurred())

			got := native(src, "prog")

			Expect(got).To(Equal(want))
		},
		Entry("dup drop is a no-op", "5 dup drop print"),
		Entry("swap swap is a no-op", "1 2 swap swap print print"),
		Entry("print padding", "7 print 123456789012345 print 0 print"),
		Entry("large literal", "18446744073709551615 print"),
		Entry("unsigned division", "0 1 - 2 / print"),
		Entry("non-zero is true", "2 if 1 print end 0 1 - if 2 print end"),
		Entry("nested ends", "1 if 1 if 3 print end end 4 print"),
		Entry("loop not entered", "0 while dup do 1 print end print"),
		Entry("repeated literal", `"ab" 1 2 write "ab" 1 2 write "c" 1 1 write`),
		Entry("empty literal", `"" 1 0 write 5 print`),
		Entry("length operand ignored", `"abcdef" 1 1 write`),
		Entry("unknown fd dropped", `"x" 7 1 write 1 print`),
		Entry("underflow", "1 print drop drop 2 print"),
		Entry("division by zero", "5 0 / print"),
	)
})

var _ = Describe("Interpreter properties", func() {
	It("should skip an if body on zero and run it otherwise", func() {
		Expect(interpret("0 if 1 print end 2 print")).To(Equal(result{Stdout: printed(2)}))
		Expect(interpret("1 if 1 print end 2 print")).To(Equal(result{Stdout: printed(1, 2)}))
	})

	It("should stop a while loop when the condition is zero", func() {
		Expect(interpret("3 while dup do dup print 1 - end drop")).
			To(Equal(result{Stdout: printed(3, 2, 1)}))
	})

	It("should leave the stack unchanged for dup drop and swap swap", func() {
		for _, pair := range [][2]string{
			{"5", "5 dup drop"},
			{"1 2", "1 2 swap swap"},
		} {
			var a, b []compiler.Value
			for i, src := range pair {
				m := sim.New(mustParse(src), sim.WithOutput(io.Discard))
				Expect(m.Run()).To(Succeed())
				if i == 0 {
					a = m.Stack()
				} else {
					b = m.Stack()
				}
			}
			Expect(b).To(Equal(a))
		}
	})
})

func mustParse(src string) compiler.Program {
	prog, err := compiler.Parse(src)
	Expect(err).NotTo(HaveOccurred())
	return prog
}

func keys(m map[string]result) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

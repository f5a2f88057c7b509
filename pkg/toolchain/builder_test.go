package toolchain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tjcampanella/rorth/pkg/config"
)

type exitStatus int

func (e exitStatus) Error() string { return "exit status" }
func (e exitStatus) ExitCode() int { return int(e) }

var _ = Describe("Builder", func() {
	var (
		mockCtrl   *gomock.Controller
		mockRunner *MockRunner
		builder    *Builder
		ctx        context.Context
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mockRunner = NewMockRunner(mockCtrl)

		builder = NewBuilder(config.Default().Toolchain, nil)
		builder.Runner = mockRunner
		ctx = context.Background()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should assemble then link", func() {
		var cmds []Command
		mockRunner.EXPECT().
			Run(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd Command) error {
				cmds = append(cmds, cmd)
				return nil
			}).
			Times(2)

		exe, err := builder.Build(ctx, "/tmp/out/prog.asm")

		Expect(err).NotTo(HaveOccurred())
		Expect(exe).To(Equal("/tmp/out/prog"))
		Expect(cmds).To(HaveLen(2))
		Expect(cmds[0].Name).To(Equal("nasm"))
		Expect(cmds[0].Args).To(Equal([]string{"-felf64", "-o", "/tmp/out/prog.o", "/tmp/out/prog.asm"}))
		Expect(cmds[1].Name).To(Equal("ld"))
		Expect(cmds[1].Args).To(Equal([]string{"-o", "/tmp/out/prog", "/tmp/out/prog.o"}))
	})

	It("should pass configured flags", func() {
		builder.Config.Assembler = "yasm"
		builder.Config.AssemblerFlags = []string{"-f", "elf64", "-g", "dwarf2"}
		builder.Config.LinkerFlags = []string{"-s"}

		var cmds []Command
		mockRunner.EXPECT().
			Run(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd Command) error {
				cmds = append(cmds, cmd)
				return nil
			}).
			Times(2)

		_, err := builder.Build(ctx, "a.asm")

		Expect(err).NotTo(HaveOccurred())
		Expect(cmds[0].String()).To(Equal("yasm -f elf64 -g dwarf2 -o a.o a.asm"))
		Expect(cmds[1].String()).To(Equal("ld -s -o a a.o"))
	})

	It("should stop when the assembler fails", func() {
		mockRunner.EXPECT().
			Run(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd Command) error {
				_, _ = io.WriteString(cmd.Stderr, "prog.asm:3: error: parser: instruction expected\n")
				return exitStatus(1)
			})

		_, err := builder.Build(ctx, "prog.asm")

		var buildErr *BuildError
		Expect(errors.As(err, &buildErr)).To(BeTrue())
		Expect(buildErr.Step).To(Equal("assemble"))
		Expect(buildErr.Stderr).To(ContainSubstring("instruction expected"))
		Expect(err.Error()).To(ContainSubstring("assemble failed: nasm"))
	})

	It("should reject an assembly path without extension", func() {
		_, err := builder.Build(ctx, "prog")

		Expect(err).To(MatchError(ContainSubstring("needs an extension")))
	})

	It("should return the exit status of the executable", func() {
		mockRunner.EXPECT().
			Run(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd Command) error {
				Expect(cmd.Name).To(Equal("./prog"))
				_, _ = io.WriteString(cmd.Stdout, "hello\n")
				return exitStatus(3)
			})

		var stdout bytes.Buffer
		code, err := builder.Execute(ctx, "prog", &stdout, io.Discard)

		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(3))
		Expect(stdout.String()).To(Equal("hello\n"))
	})

	It("should report a process that could not start", func() {
		mockRunner.EXPECT().
			Run(ctx, gomock.Any()).
			Return(errors.New("exec format error"))

		code, err := builder.Execute(ctx, "/bin/prog", io.Discard, io.Discard)

		Expect(err).To(MatchError(ContainSubstring("exec format error")))
		Expect(code).To(Equal(-1))
	})
})

var _ = Describe("Artifact names", func() {
	It("should replace the extension", func() {
		Expect(ObjectPath("dir/x.asm")).To(Equal("dir/x.o"))
		Expect(ExePath("dir/x.asm")).To(Equal("dir/x"))
	})
})

var _ = Describe("Available", func() {
	It("should be false for a missing tool", func() {
		cfg := config.Default().Toolchain
		cfg.Assembler = "rorth-no-such-assembler"

		Expect(Available(cfg)).To(BeFalse())
	})
})

var _ = Describe("CompileAndRun", func() {
	var (
		mockCtrl   *gomock.Controller
		mockRunner *MockRunner
		builder    *Builder
		ctx        context.Context
		workDir    string
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mockRunner = NewMockRunner(mockCtrl)
		builder = NewBuilder(config.Default().Toolchain, nil)
		builder.Runner = mockRunner
		ctx = context.Background()
		workDir = GinkgoT().TempDir()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should write the assembly and run the linked program", func() {
		asmPath := filepath.Join(workDir, "hello.asm")
		exePath := filepath.Join(workDir, "hello")

		gomock.InOrder(
			mockRunner.EXPECT().
				Run(ctx, gomock.Any()).
				DoAndReturn(func(_ context.Context, cmd Command) error {
					Expect(cmd.Name).To(Equal("nasm"))
					Expect(cmd.Args).To(ContainElement(asmPath))
					Expect(asmPath).To(BeAnExistingFile())
					return nil
				}),
			mockRunner.EXPECT().
				Run(ctx, gomock.Any()).
				DoAndReturn(func(_ context.Context, cmd Command) error {
					Expect(cmd.Name).To(Equal("ld"))
					return nil
				}),
			mockRunner.EXPECT().
				Run(ctx, gomock.Any()).
				DoAndReturn(func(_ context.Context, cmd Command) error {
					Expect(cmd.Name).To(Equal(exePath))
					_, _ = io.WriteString(cmd.Stdout, "ok")
					return nil
				}),
		)

		var stdout bytes.Buffer
		code, err := builder.CompileAndRun(ctx, "1 print", workDir, "hello", &stdout, io.Discard)

		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(0))
		Expect(stdout.String()).To(Equal("ok"))
	})

	It("should not invoke the toolchain for an invalid program", func() {
		_, err := builder.CompileAndRun(ctx, "1 if", workDir, "bad", io.Discard, io.Discard)

		Expect(err).To(HaveOccurred())
	})
})

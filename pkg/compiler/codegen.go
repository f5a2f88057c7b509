package compiler

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PrintWidth is the fixed field width of the print routine. Both backends
// right-align the decimal digits in it and pad with NUL bytes.
const PrintWidth = 20

// literal is an interned string constant.
type literal struct {
	label string
	value string
}

// CodeGen walks a resolved Program and emits x86-64 NASM assembly for Linux.
type CodeGen struct {
	out      io.Writer
	err      error // first write error; emission stops once set
	literals []literal
	interned map[string]string // value -> label
}

func newCodeGen(w io.Writer) *CodeGen {
	return &CodeGen{out: w, interned: make(map[string]string)}
}

func (cg *CodeGen) line(format string, args ...any) {
	if cg.err != nil {
		return
	}
	_, cg.err = fmt.Fprintf(cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("    ; "+format, args...)
}

// intern returns the data label for s. Labels are numbered by the position of
// the literal's first occurrence among all push ops.
func (cg *CodeGen) intern(s string, pushIndex int) string {
	if label, ok := cg.interned[s]; ok {
		return label
	}
	label := fmt.Sprintf("str_%d", pushIndex)
	cg.interned[s] = label
	cg.literals = append(cg.literals, literal{label: label, value: s})
	return label
}

// setcc holds the unsigned condition-set instruction for each comparison.
var setcc = map[OpKind]string{
	Equals: "sete",
	GT:     "seta",
	LT:     "setb",
}

func opLabel(ip int) string { return fmt.Sprintf("addr_%d", ip) }

func (cg *CodeGen) prologue() {
	cg.line("BITS 64")
	cg.line("%%define SYS_WRITE 1")
	cg.line("%%define SYS_EXIT 60")
	cg.line("")
	cg.line("; need N: fault unless the data stack holds at least N values")
	cg.line("%%macro need 1")
	cg.line("    mov rax, [stack_base]")
	cg.line("    sub rax, rsp")
	cg.line("    cmp rax, %%1*8")
	cg.line("    jb underflow")
	cg.line("%%endmacro")
	cg.line("")
	cg.line("section .text")
	cg.line("global _start")
	cg.line("")
	cg.genPrintRoutine()
	cg.genFaultRoutine("underflow", "underflow_msg")
	cg.genFaultRoutine("div_by_zero", "div_by_zero_msg")
	cg.line("_start:")
	cg.line("    mov [stack_base], rsp")
}

// genPrintRoutine emits print(rdi): digits are written from the last byte of
// print_buf backward, the whole 20-byte field is written, then a newline, and
// the buffer is zeroed for the next caller.
func (cg *CodeGen) genPrintRoutine() {
	cg.line("print:")
	cg.line("    mov rax, rdi")
	cg.line("    mov rsi, print_buf + %d", PrintWidth-1)
	cg.line("    mov rcx, 10")
	cg.line(".digit:")
	cg.line("    xor rdx, rdx")
	cg.line("    div rcx")
	cg.line("    add dl, '0'")
	cg.line("    mov [rsi], dl")
	cg.line("    dec rsi")
	cg.line("    test rax, rax")
	cg.line("    jnz .digit")
	cg.line("    mov rax, SYS_WRITE")
	cg.line("    mov rdi, 1")
	cg.line("    mov rsi, print_buf")
	cg.line("    mov rdx, %d", PrintWidth)
	cg.line("    syscall")
	cg.line("    mov rax, SYS_WRITE")
	cg.line("    mov rdi, 1")
	cg.line("    mov rsi, newline")
	cg.line("    mov rdx, 1")
	cg.line("    syscall")
	cg.line("    xor rax, rax")
	cg.line("    mov [print_buf], rax")
	cg.line("    mov [print_buf + 8], rax")
	cg.line("    mov [print_buf + 16], eax")
	cg.line("    ret")
	cg.line("")
}

func (cg *CodeGen) genFaultRoutine(label, msg string) {
	cg.line("%s:", label)
	cg.line("    mov rax, SYS_WRITE")
	cg.line("    mov rdi, 2")
	cg.line("    mov rsi, %s", msg)
	cg.line("    mov rdx, %s_len", msg)
	cg.line("    syscall")
	cg.line("    mov rax, SYS_EXIT")
	cg.line("    mov rdi, 1")
	cg.line("    syscall")
	cg.line("")
}

func (cg *CodeGen) genOp(ip int, op Op, pushIndex int) error {
	cg.line("%s:", opLabel(ip))
	cg.comment("%s", op)

	switch op.Kind {
	case Push:
		switch op.Value.Kind {
		case IntValue:
			// full-width immediate: literals may not fit in 32 bits
			cg.line("    mov rax, strict qword %d", op.Value.Int)
		case StrValue:
			cg.line("    mov rax, %s", cg.intern(op.Value.Str, pushIndex))
		default:
			return fmt.Errorf("codegen: push without a value at ip %d", ip)
		}
		cg.line("    push rax")

	case Plus:
		cg.line("    need 2")
		cg.line("    pop rax")
		cg.line("    pop rbx")
		cg.line("    add rax, rbx")
		cg.line("    push rax")

	case Minus:
		cg.line("    need 2")
		cg.line("    pop rax")
		cg.line("    pop rbx")
		cg.line("    sub rbx, rax")
		cg.line("    push rbx")

	case Mult:
		cg.line("    need 2")
		cg.line("    pop rax")
		cg.line("    pop rbx")
		cg.line("    mul rbx")
		cg.line("    push rax")

	case Div:
		cg.line("    need 2")
		cg.line("    pop rbx")
		cg.line("    pop rax")
		cg.line("    test rbx, rbx")
		cg.line("    jz div_by_zero")
		cg.line("    xor rdx, rdx")
		cg.line("    div rbx")
		cg.line("    push rax")

	case Equals, GT, LT:
		cg.line("    need 2")
		cg.line("    pop rax")
		cg.line("    pop rbx")
		cg.line("    xor rcx, rcx")
		cg.line("    cmp rbx, rax")
		cg.line("    %s cl", setcc[op.Kind])
		cg.line("    push rcx")

	case Print:
		cg.line("    need 1")
		cg.line("    pop rdi")
		cg.line("    call print")

	case Write:
		// the length operand is consumed but the stored length is used,
		// matching the interpreter which writes the whole string
		cg.line("    need 3")
		cg.line("    pop rax")
		cg.line("    pop rdi")
		cg.line("    pop rsi")
		cg.line("    mov rdx, [rsi - 8]")
		cg.line("    mov rax, SYS_WRITE")
		cg.line("    syscall")

	case Dup:
		cg.line("    need 1")
		cg.line("    pop rax")
		cg.line("    push rax")
		cg.line("    push rax")

	case Swap:
		cg.line("    need 2")
		cg.line("    pop rax")
		cg.line("    pop rbx")
		cg.line("    push rax")
		cg.line("    push rbx")

	case Rot:
		cg.line("    need 3")
		cg.line("    pop rax")
		cg.line("    pop rbx")
		cg.line("    pop rcx")
		cg.line("    push rbx")
		cg.line("    push rax")
		cg.line("    push rcx")

	case Drop:
		cg.line("    need 1")
		cg.line("    pop rax")

	case Over:
		cg.line("    need 2")
		cg.line("    pop rax")
		cg.line("    pop rbx")
		cg.line("    push rbx")
		cg.line("    push rax")
		cg.line("    push rbx")

	case If, Do:
		target, ok := op.Target()
		if !ok {
			return fmt.Errorf("codegen: unresolved %s at ip %d", op.Kind, ip)
		}
		cg.line("    need 1")
		cg.line("    pop rax")
		cg.line("    test rax, rax")
		cg.line("    jz %s", opLabel(target))

	case While:
		if _, ok := op.Target(); !ok {
			return fmt.Errorf("codegen: unresolved %s at ip %d", op.Kind, ip)
		}

	case End:
		target, ok := op.Target()
		if !ok {
			return fmt.Errorf("codegen: unresolved %s at ip %d", op.Kind, ip)
		}
		if target != ip {
			cg.line("    jmp %s", opLabel(target))
		}

	default:
		return fmt.Errorf("codegen: unhandled op kind %s at ip %d", op.Kind, ip)
	}
	return nil
}

func (cg *CodeGen) epilogue(n int) {
	cg.line("%s:", opLabel(n))
	cg.line("    mov rax, SYS_EXIT")
	cg.line("    xor rdi, rdi")
	cg.line("    syscall")
	cg.line("")
	cg.line("section .data")
	cg.line("newline: db 10")
	cg.line("underflow_msg: db \"stack underflow\", 10")
	cg.line("underflow_msg_len equ $ - underflow_msg")
	cg.line("div_by_zero_msg: db \"division by zero\", 10")
	cg.line("div_by_zero_msg_len equ $ - div_by_zero_msg")

	if len(cg.literals) > 0 {
		cg.line("")
		cg.line("; String literals, each preceded by its byte length")
		for _, lit := range cg.literals {
			cg.line("    dq %d", len(lit.value))
			if lit.value == "" {
				cg.line("%s:", lit.label)
				continue
			}
			cg.line("%s: db %s", lit.label, byteList(lit.value))
		}
	}

	cg.line("")
	cg.line("section .bss")
	cg.line("stack_base: resq 1")
	cg.line("print_buf: resb %d", PrintWidth)
}

func byteList(s string) string {
	parts := make([]string, len(s))
	for i := 0; i < len(s); i++ {
		parts[i] = strconv.Itoa(int(s[i]))
	}
	return strings.Join(parts, ",")
}

// GenerateTo writes the assembly for prog to w. prog must have been resolved.
// The first write error aborts generation and is returned.
func GenerateTo(w io.Writer, prog Program) error {
	cg := newCodeGen(w)
	cg.prologue()

	pushIndex := 0
	for ip, op := range prog {
		if err := cg.genOp(ip, op, pushIndex); err != nil {
			return err
		}
		if op.Kind == Push {
			pushIndex++
		}
		if cg.err != nil {
			return fmt.Errorf("codegen: write failed at ip %d: %w", ip, cg.err)
		}
	}

	cg.epilogue(len(prog))
	if cg.err != nil {
		return fmt.Errorf("codegen: write failed: %w", cg.err)
	}
	return nil
}

// Generate returns the assembly for prog as a string.
func Generate(prog Program) (string, error) {
	var b strings.Builder
	if err := GenerateTo(&b, prog); err != nil {
		return "", err
	}
	return b.String(), nil
}

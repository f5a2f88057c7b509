// Package asm reads back the NASM listings produced by the code generator.
// It does not encode machine code; it resolves labels in a first pass and
// checks every symbol reference in a second, so a listing that would fail to
// assemble because of a dangling label is caught before nasm is invoked.
package asm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

var jumpOps = map[string]bool{
	"jmp":  true,
	"jz":   true,
	"jnz":  true,
	"je":   true,
	"jne":  true,
	"jb":   true,
	"jae":  true,
	"ja":   true,
	"jbe":  true,
	"call": true,
}

var plainOps = map[string]bool{
	"mov":     true,
	"push":    true,
	"pop":     true,
	"add":     true,
	"sub":     true,
	"mul":     true,
	"div":     true,
	"xor":     true,
	"cmp":     true,
	"test":    true,
	"inc":     true,
	"dec":     true,
	"lea":     true,
	"ret":     true,
	"syscall": true,
	"sete":    true,
	"setne":   true,
	"seta":    true,
	"setb":    true,
}

var dataOps = map[string]bool{
	"db":   true,
	"dq":   true,
	"resb": true,
	"resq": true,
}

var directives = map[string]bool{
	"bits":    true,
	"section": true,
	"global":  true,
	"default": true,
}

// reserved words that may appear inside operands without being symbols.
var reserved = func() map[string]bool {
	m := map[string]bool{
		"byte": true, "word": true, "dword": true, "qword": true,
		"strict": true, "rel": true, "abs": true,
		"rsp": true, "rbp": true, "rsi": true, "rdi": true,
		"esp": true, "ebp": true, "esi": true, "edi": true,
		"sil": true, "dil": true,
	}
	for _, r := range []string{"a", "b", "c", "d"} {
		m["r"+r+"x"] = true
		m["e"+r+"x"] = true
		m[r+"x"] = true
		m[r+"l"] = true
		m[r+"h"] = true
	}
	for i := 8; i <= 15; i++ {
		for _, suffix := range []string{"", "d", "w", "b"} {
			m[fmt.Sprintf("r%d%s", i, suffix)] = true
		}
	}
	return m
}()

// Line is one instruction or data line of a listing.
type Line struct {
	No       int
	Label    string // label defined on this line, qualified
	Section  string
	Mnemonic string // lower-case
	Operands []string
}

func (l Line) String() string {
	return fmt.Sprintf("%d: %s %s", l.No, l.Mnemonic, strings.Join(l.Operands, ", "))
}

// Listing is the parsed form of an assembly source.
type Listing struct {
	Labels       map[string]int    // label -> defining line
	Equates      map[string]string // name -> expression
	Defines      map[string]string // %define name -> value
	Macros       map[string]bool
	Globals      []string
	Instructions []Line            // code lines in source order
	Strings      map[string][]byte // db contents by label
	Lengths      map[string]uint64 // dq value emitted directly before a label
}

// Count returns how many instructions use mnemonic.
func (l *Listing) Count(mnemonic string) int {
	mnemonic = strings.ToLower(mnemonic)
	n := 0
	for _, in := range l.Instructions {
		if in.Mnemonic == mnemonic {
			n++
		}
	}
	return n
}

// References returns how many instruction operands mention symbol.
func (l *Listing) References(symbol string) int {
	n := 0
	for _, in := range l.Instructions {
		for _, op := range in.Operands {
			for _, id := range identifiers(op) {
				if id == symbol {
					n++
				}
			}
		}
	}
	return n
}

// LabelsWithPrefix returns the defined labels starting with prefix, sorted.
func (l *Listing) LabelsWithPrefix(prefix string) []string {
	var out []string
	for name := range l.Labels {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Reader holds the state of one Parse call.
type Reader struct {
	listing *Listing
}

type parsedLine struct {
	lineNo   int
	label    string
	mnemonic string
	operands []string
}

func NewReader() *Reader {
	return &Reader{
		listing: &Listing{
			Labels:  make(map[string]int),
			Equates: make(map[string]string),
			Defines: make(map[string]string),
			Macros:  make(map[string]bool),
			Strings: make(map[string][]byte),
			Lengths: make(map[string]uint64),
		},
	}
}

// Parse reads an assembly listing.
func Parse(text string) (*Listing, error) {
	return NewReader().Parse(text)
}

func (r *Reader) Parse(text string) (*Listing, error) {
	lines := strings.Split(text, "\n")

	if err := r.pass1(lines); err != nil {
		return nil, err
	}
	if err := r.pass2(lines); err != nil {
		return nil, err
	}
	return r.listing, nil
}

// pass1 records every label, equate, define and macro name.
func (r *Reader) pass1(lines []string) error {
	l := r.listing
	scope := ""
	inMacro := false

	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return err
		}

		switch {
		case p.mnemonic == "%macro":
			if len(p.operands) == 0 {
				return fmt.Errorf("line %d: %%macro without a name", p.lineNo)
			}
			l.Macros[p.operands[0]] = true
			inMacro = true
			continue
		case p.mnemonic == "%endmacro":
			inMacro = false
			continue
		case inMacro:
			continue
		case p.mnemonic == "%define":
			if len(p.operands) == 0 {
				return fmt.Errorf("line %d: %%define without a name", p.lineNo)
			}
			l.Defines[p.operands[0]] = strings.Join(p.operands[1:], " ")
			continue
		case p.mnemonic == "equ":
			if len(p.operands) != 2 {
				return fmt.Errorf("line %d: equ expects a name and a value", p.lineNo)
			}
			if _, exists := l.Equates[p.operands[0]]; exists {
				return fmt.Errorf("duplicate symbol '%s' on line %d", p.operands[0], p.lineNo)
			}
			l.Equates[p.operands[0]] = p.operands[1]
			continue
		}

		if p.label == "" {
			continue
		}
		label := qualify(p.label, &scope)
		if _, exists := l.Labels[label]; exists {
			return fmt.Errorf("duplicate label '%s' on line %d", label, p.lineNo)
		}
		l.Labels[label] = p.lineNo
	}

	if inMacro {
		return fmt.Errorf("unterminated %%macro")
	}
	return nil
}

// pass2 checks mnemonics and symbol references and collects data.
func (r *Reader) pass2(lines []string) error {
	l := r.listing
	scope := ""
	section := ""
	inMacro := false
	var pendingQuad *uint64

	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return err
		}

		switch p.mnemonic {
		case "%macro":
			inMacro = true
			continue
		case "%endmacro":
			inMacro = false
			continue
		case "%define", "equ":
			continue
		}
		if inMacro {
			continue
		}

		label := ""
		if p.label != "" {
			label = qualify(p.label, &scope)
			if pendingQuad != nil {
				l.Lengths[label] = *pendingQuad
				pendingQuad = nil
			}
		}
		if p.mnemonic == "" {
			continue
		}

		switch {
		case directives[p.mnemonic]:
			switch p.mnemonic {
			case "section":
				if len(p.operands) != 1 {
					return fmt.Errorf("line %d: section expects one operand", p.lineNo)
				}
				section = p.operands[0]
			case "global":
				l.Globals = append(l.Globals, p.operands...)
			}

		case dataOps[p.mnemonic]:
			if err := r.data(p, label, &pendingQuad); err != nil {
				return err
			}

		case jumpOps[p.mnemonic]:
			if len(p.operands) != 1 {
				return fmt.Errorf("line %d: %s expects one operand", p.lineNo, p.mnemonic)
			}
			target := p.operands[0]
			if strings.HasPrefix(target, ".") {
				target = scope + target
			}
			if _, ok := l.Labels[target]; !ok {
				return fmt.Errorf("undefined label '%s' on line %d", target, p.lineNo)
			}
			l.Instructions = append(l.Instructions, Line{No: p.lineNo, Label: label, Section: section, Mnemonic: p.mnemonic, Operands: []string{target}})

		case plainOps[p.mnemonic] || l.Macros[p.mnemonic]:
			for _, op := range p.operands {
				for _, id := range identifiers(op) {
					if !r.known(id, scope) {
						return fmt.Errorf("undefined symbol '%s' on line %d", id, p.lineNo)
					}
				}
			}
			l.Instructions = append(l.Instructions, Line{No: p.lineNo, Label: label, Section: section, Mnemonic: p.mnemonic, Operands: p.operands})

		default:
			return fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
		}
	}

	for _, g := range l.Globals {
		if _, ok := l.Labels[g]; !ok {
			return fmt.Errorf("global symbol '%s' is never defined", g)
		}
	}
	return nil
}

func (r *Reader) data(p parsedLine, label string, pendingQuad **uint64) error {
	switch p.mnemonic {
	case "db":
		bytes, err := decodeBytes(p.operands, p.lineNo)
		if err != nil {
			return err
		}
		if label != "" {
			r.listing.Strings[label] = bytes
		}
	case "dq":
		if len(p.operands) != 1 {
			return fmt.Errorf("line %d: dq expects one operand", p.lineNo)
		}
		v, err := strconv.ParseUint(p.operands[0], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid dq value on line %d: %s", p.lineNo, p.operands[0])
		}
		if label == "" {
			*pendingQuad = &v
		}
	case "resb", "resq":
		if len(p.operands) != 1 {
			return fmt.Errorf("line %d: %s expects one operand", p.lineNo, p.mnemonic)
		}
		if _, err := strconv.ParseUint(p.operands[0], 0, 32); err != nil {
			return fmt.Errorf("invalid %s size on line %d: %s", p.mnemonic, p.lineNo, p.operands[0])
		}
	}
	return nil
}

// known reports whether id names a label, equate or define.
func (r *Reader) known(id, scope string) bool {
	l := r.listing
	if strings.HasPrefix(id, ".") {
		id = scope + id
	}
	if _, ok := l.Labels[id]; ok {
		return true
	}
	if _, ok := l.Equates[id]; ok {
		return true
	}
	_, ok := l.Defines[id]
	return ok
}

// qualify expands a local label against the current scope, or makes a
// global label the new scope.
func qualify(label string, scope *string) string {
	if strings.HasPrefix(label, ".") {
		return *scope + label
	}
	*scope = label
	return label
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	if strings.HasPrefix(line, "%") {
		fields := strings.Fields(line)
		p.mnemonic = strings.ToLower(fields[0])
		p.operands = fields[1:]
		return p, nil
	}

	first, rest := splitFirst(line)
	if strings.HasSuffix(first, ":") {
		label := strings.TrimSuffix(first, ":")
		if !isIdentifier(label) {
			return p, fmt.Errorf("invalid label '%s' on line %d", label, lineNo)
		}
		p.label = label
		if rest == "" {
			return p, nil
		}
		first, rest = splitFirst(rest)
	}

	// "name equ value"
	if second, value := splitFirst(rest); strings.EqualFold(second, "equ") {
		p.mnemonic = "equ"
		p.operands = []string{first, value}
		return p, nil
	}

	p.mnemonic = strings.ToLower(first)
	if rest != "" {
		p.operands = splitOperands(rest)
	}
	return p, nil
}

func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// stripComments cuts the line at the first ';' outside a quoted string.
func stripComments(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ';':
			return line[:i]
		}
	}
	return line
}

// splitOperands splits on commas outside quoted strings.
func splitOperands(s string) []string {
	var out []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ',':
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

// identifiers returns the symbol names mentioned in an operand, skipping
// registers, size keywords, numbers and quoted text.
func identifiers(operand string) []string {
	var out []string
	for i := 0; i < len(operand); {
		c := operand[i]
		switch {
		case c == '"' || c == '\'':
			end := strings.IndexByte(operand[i+1:], c)
			if end < 0 {
				return out
			}
			i += end + 2
		case c >= '0' && c <= '9':
			for i < len(operand) && isIdentRune(rune(operand[i])) {
				i++
			}
		case c == '_' || c == '.' || unicode.IsLetter(rune(c)):
			start := i
			for i < len(operand) && isIdentRune(rune(operand[i])) {
				i++
			}
			if id := operand[start:i]; !reserved[strings.ToLower(id)] {
				out = append(out, id)
			}
		default:
			i++
		}
	}
	return out
}

func decodeBytes(operands []string, lineNo int) ([]byte, error) {
	var out []byte
	for _, op := range operands {
		if len(op) >= 2 && (op[0] == '"' || op[0] == '\'') && op[len(op)-1] == op[0] {
			out = append(out, op[1:len(op)-1]...)
			continue
		}
		v, err := strconv.ParseUint(op, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte '%s' on line %d", op, lineNo)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '.' {
				return false
			}
			continue
		}

		if !isIdentRune(r) {
			return false
		}
	}

	return true
}

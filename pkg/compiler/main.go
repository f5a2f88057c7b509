// Package compiler turns rorth source into a resolved Program and generates
// x86-64 NASM assembly from it.
//
// Pipeline: source → Lex → Build → Resolve → Program → Generate → NASM text
//
// The Program produced by Parse is also what the sim package interprets, so
// both backends execute the same op sequence with the same jump targets.
package compiler

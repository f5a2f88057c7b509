package compiler

import "fmt"

// pendingBlock is an opened if/while that has not met its end yet.
type pendingBlock struct {
	kind OpKind
	ip   int
	doIP int // -1 until the while's do is seen
}

// Resolve attaches jump targets to the control-flow ops of prog in place.
//
// After a successful call:
//   - if.value and do.value hold the IP just past the matching end
//   - end.value holds the while's IP for loops and its own IP for if-blocks
//   - while.value is 0
//
// Ops are never moved, so IPs stay valid for both backends.
func Resolve(prog Program) error {
	var open []pendingBlock

	for ip := range prog {
		op := &prog[ip]
		switch op.Kind {
		case If, While:
			open = append(open, pendingBlock{kind: op.Kind, ip: ip, doIP: -1})

		case Do:
			if len(open) == 0 || open[len(open)-1].kind != While {
				return blockError(prog, ip, ErrDoWithoutWhile)
			}
			top := &open[len(open)-1]
			if top.doIP >= 0 {
				return blockError(prog, ip, ErrDuplicateDo)
			}
			top.doIP = ip

		case End:
			if len(open) == 0 {
				return blockError(prog, ip, ErrUnmatchedEnd)
			}
			top := open[len(open)-1]
			open = open[:len(open)-1]

			switch top.kind {
			case If:
				prog[top.ip].Value = Int(uint64(ip + 1))
				op.Value = Int(uint64(ip))
			case While:
				if top.doIP < 0 {
					return blockError(prog, top.ip, ErrMissingDo)
				}
				op.Value = Int(uint64(top.ip))
				prog[top.ip].Value = Int(0)
				prog[top.doIP].Value = Int(uint64(ip + 1))
			}

		case Push, Plus, Minus, Mult, Div, Equals, GT, LT, Print, Write, Dup, Swap, Rot, Drop, Over:
			// no jump target

		default:
			return fmt.Errorf("resolve: unhandled op kind %s at ip %d", op.Kind, ip)
		}
	}

	if len(open) > 0 {
		return blockError(prog, open[len(open)-1].ip, ErrUnterminatedBlock)
	}
	return checkResolved(prog)
}

// checkResolved verifies every control-flow op carries a target.
func checkResolved(prog Program) error {
	for ip, op := range prog {
		if op.Kind.IsBlock() && op.Value.Kind != IntValue {
			return blockError(prog, ip, ErrUnresolved)
		}
	}
	return nil
}

func blockError(prog Program, ip int, err error) *BlockError {
	op := prog[ip]
	return &BlockError{Kind: op.Kind, IP: ip, Pos: op.Pos, Err: err}
}

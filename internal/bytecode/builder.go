package bytecode

import (
	"encoding/binary"

	"github.com/roach88/waypost/internal/value"
)

// Assembler builds a Program incrementally: a compiler emits condition and
// result bodies instruction by instruction, interning constants and
// registers as it goes, then attaches the BDD and calls Program.
//
// Labels support forward references only. A jump emits a 2-byte placeholder
// that is patched when the label is marked; the encoded offset is the label
// position minus the position immediately after the placeholder, so a label
// marked right after its jump encodes 0.
type Assembler struct {
	buf    []byte
	regs   *Allocator
	consts *ConstPool

	funcs     []FuncDef
	funcIndex map[string]int

	conditionOffsets []int32
	resultOffsets    []int32

	labels map[string]int // label -> marked position
	fixups []fixup

	bddNodes []Node
	bddRoot  Ref

	err error // first build error, surfaced by Program
}

type fixup struct {
	pos   int // placeholder position in buf
	label string
}

// NewAssembler creates an empty assembler with FALSE as the BDD root.
func NewAssembler() *Assembler {
	return &Assembler{
		regs:      NewAllocator(),
		consts:    NewConstPool(),
		funcIndex: make(map[string]int),
		labels:    make(map[string]int),
		bddRoot:   RefFalse,
	}
}

// Registers exposes the register allocator.
func (a *Assembler) Registers() *Allocator { return a.regs }

// Const interns v in the constant pool and returns its index.
func (a *Assembler) Const(v value.Value) int { return a.consts.Index(v) }

// Func interns a function-table entry and returns its index. Re-declaring a
// name with a different arity is a build error.
func (a *Assembler) Func(name string, argCount int) int {
	if idx, exists := a.funcIndex[name]; exists {
		if a.funcs[idx].ArgCount != argCount && a.err == nil {
			a.err = NewFormatError(ErrCodeUnknownFunction, "function %q redeclared with arity %d (was %d)", name, argCount, a.funcs[idx].ArgCount)
		}
		return idx
	}
	idx := len(a.funcs)
	a.funcs = append(a.funcs, FuncDef{Name: name, ArgCount: argCount})
	a.funcIndex[name] = idx
	return idx
}

// StartCondition records the current position as the next condition body's
// start and returns the condition index.
func (a *Assembler) StartCondition() int {
	a.conditionOffsets = append(a.conditionOffsets, int32(len(a.buf)))
	return len(a.conditionOffsets) - 1
}

// StartResult records the current position as the next result body's start
// and returns the result index.
func (a *Assembler) StartResult() int {
	a.resultOffsets = append(a.resultOffsets, int32(len(a.buf)))
	return len(a.resultOffsets) - 1
}

// EmitByte appends one raw byte.
func (a *Assembler) EmitByte(b byte) {
	a.buf = append(a.buf, b)
}

// EmitShort appends one raw big-endian 16-bit value.
func (a *Assembler) EmitShort(v uint16) {
	a.buf = binary.BigEndian.AppendUint16(a.buf, v)
}

// Emit appends op with its operands, encoded at the widths the opcode
// declares. Operand count or range mismatches are build errors.
func (a *Assembler) Emit(op Opcode, operands ...int) {
	widths := op.OperandWidths()
	if len(operands) != len(widths) {
		a.fail(NewFormatError(ErrCodeBadOffsets, "%s takes %d operands, got %d", op, len(widths), len(operands)))
		return
	}
	a.EmitByte(byte(op))
	for i, v := range operands {
		switch widths[i] {
		case 1:
			if v < 0 || v > 0xff {
				a.fail(NewFormatError(ErrCodeBadOffsets, "%s operand %d value %d does not fit one byte", op, i, v))
				return
			}
			a.EmitByte(byte(v))
		case 2:
			if v < 0 || v > 0xffff {
				a.fail(NewFormatError(ErrCodeBadOffsets, "%s operand %d value %d does not fit two bytes", op, i, v))
				return
			}
			a.EmitShort(uint16(v))
		}
	}
}

// EmitJump appends a jump instruction targeting label, reserving a 2-byte
// placeholder patched when MarkLabel(label) runs. The label may be marked
// before or after the jump is emitted, but only forward offsets encode.
func (a *Assembler) EmitJump(op Opcode, label string) {
	if !op.IsJump() {
		a.fail(NewFormatError(ErrCodeBadOffsets, "%s is not a jump opcode", op))
		return
	}
	a.EmitByte(byte(op))
	pos := len(a.buf)
	a.EmitShort(0)
	if target, marked := a.labels[label]; marked {
		a.patch(pos, label, target)
		return
	}
	a.fixups = append(a.fixups, fixup{pos: pos, label: label})
}

// MarkLabel records the current position as label's target and patches all
// pending jumps to it.
func (a *Assembler) MarkLabel(label string) {
	target := len(a.buf)
	a.labels[label] = target
	remaining := a.fixups[:0]
	for _, f := range a.fixups {
		if f.label == label {
			a.patch(f.pos, label, target)
			continue
		}
		remaining = append(remaining, f)
	}
	a.fixups = remaining
}

func (a *Assembler) patch(pos int, label string, target int) {
	offset := target - (pos + 2)
	if offset < 0 || offset > 0xffff {
		a.fail(NewFormatError(ErrCodeBadOffsets, "jump to label %q needs offset %d, outside the 2-byte forward range", label, offset))
		return
	}
	binary.BigEndian.PutUint16(a.buf[pos:], uint16(offset))
}

// SetBDD attaches the decision diagram.
func (a *Assembler) SetBDD(nodes []Node, root Ref) {
	a.bddNodes = nodes
	a.bddRoot = root
}

func (a *Assembler) fail(err *FormatError) {
	if a.err == nil {
		a.err = err
	}
}

// Program finalizes the build. Unresolved labels and any emission error
// recorded along the way fail here.
func (a *Assembler) Program() (*Program, error) {
	if a.err != nil {
		return nil, a.err
	}
	if len(a.fixups) > 0 {
		return nil, NewFormatError(ErrCodeUnresolvedLabel, "label %q referenced but never marked", a.fixups[0].label)
	}
	p := &Program{
		Instructions:     a.buf,
		ConditionOffsets: a.conditionOffsets,
		ResultOffsets:    a.resultOffsets,
		Registers:        a.regs.Defs(),
		Constants:        a.consts.Values(),
		Functions:        a.funcs,
		BDDNodes:         a.bddNodes,
		BDDRoot:          a.bddRoot,
	}
	if err := p.finalize(); err != nil {
		return nil, err
	}
	return p, nil
}

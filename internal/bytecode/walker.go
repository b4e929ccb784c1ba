package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Walker is an instruction-level cursor over a byte-encoded instruction
// stream, shared by the disassembler and tooling. It decodes one
// instruction at a time: opcode, operand values, encoded length, and jump
// targets. The walker may step one instruction past the last meaningful
// instruction, onto the end-of-buffer sentinel, before HasNext reports
// false.
type Walker struct {
	code []byte
	pos  int
}

// NewWalker positions a walker at offset within code.
func NewWalker(code []byte, offset int) (*Walker, error) {
	if offset < 0 || offset > len(code) {
		return nil, fmt.Errorf("walker offset %d outside code of %d bytes", offset, len(code))
	}
	return &Walker{code: code, pos: offset}, nil
}

// Pos returns the current instruction's byte offset.
func (w *Walker) Pos() int { return w.pos }

// AtEnd reports whether the walker sits on the end-of-buffer sentinel.
func (w *Walker) AtEnd() bool { return w.pos >= len(w.code) }

// Opcode returns the opcode under the cursor. At the sentinel it returns
// the reserved invalid opcode.
func (w *Walker) Opcode() Opcode {
	if w.AtEnd() {
		return opInvalid
	}
	return Opcode(w.code[w.pos])
}

// Len returns the current instruction's encoded length in bytes.
func (w *Walker) Len() int {
	if w.AtEnd() {
		return 0
	}
	return w.Opcode().Width()
}

// OperandCount returns how many operands the current instruction carries.
func (w *Walker) OperandCount() int {
	return len(w.Opcode().OperandWidths())
}

// Operand returns the i-th operand's decoded value.
// An out-of-range index or a truncated instruction is an error.
func (w *Walker) Operand(i int) (int, error) {
	widths := w.Opcode().OperandWidths()
	if i < 0 || i >= len(widths) {
		return 0, fmt.Errorf("%s has %d operands, requested %d", w.Opcode(), len(widths), i)
	}
	pos := w.pos + 1
	for _, size := range widths[:i] {
		pos += size
	}
	if pos+widths[i] > len(w.code) {
		return 0, fmt.Errorf("%s at %d truncated: operand %d overruns the buffer", w.Opcode(), w.pos, i)
	}
	switch widths[i] {
	case 1:
		return int(w.code[pos]), nil
	default:
		return int(binary.BigEndian.Uint16(w.code[pos:])), nil
	}
}

// JumpTarget resolves the current jump instruction's absolute target: the
// decoded 2-byte relative offset added to the position immediately after
// the full instruction.
func (w *Walker) JumpTarget() (int, error) {
	if !w.Opcode().IsJump() {
		return 0, fmt.Errorf("%s at %d is not a jump", w.Opcode(), w.pos)
	}
	rel, err := w.Operand(w.OperandCount() - 1)
	if err != nil {
		return 0, err
	}
	return w.pos + w.Len() + rel, nil
}

// HasNext reports whether the cursor has not yet passed the sentinel.
func (w *Walker) HasNext() bool {
	return w.pos <= len(w.code)
}

// Next advances past the current instruction. Advancing from the sentinel
// is an error.
func (w *Walker) Next() error {
	if w.AtEnd() {
		if w.pos == len(w.code) {
			// One step onto-and-off the sentinel is allowed; mark it
			// consumed so HasNext turns false.
			w.pos++
			return nil
		}
		return fmt.Errorf("walker advanced past end of code")
	}
	if w.pos+w.Len() > len(w.code) {
		return fmt.Errorf("%s at %d truncated: instruction overruns the buffer", w.Opcode(), w.pos)
	}
	w.pos += w.Len()
	return nil
}

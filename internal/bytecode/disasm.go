package bytecode

import (
	"fmt"
	"strings"

	"github.com/roach88/waypost/internal/value"
)

// Disassemble renders p as a deterministic human-readable report with five
// sections: header counts, registers, constant pool, BDD structure, and a
// per-instruction listing of every condition and result body. Register,
// constant, and function names are resolved inline.
func Disassemble(p *Program) string {
	var b strings.Builder

	fmt.Fprintf(&b, ".header\n")
	fmt.Fprintf(&b, "  conditions: %d\n", p.ConditionCount())
	fmt.Fprintf(&b, "  results: %d\n", p.ResultCount())
	fmt.Fprintf(&b, "  registers: %d\n", len(p.Registers))
	fmt.Fprintf(&b, "  constants: %d\n", len(p.Constants))
	fmt.Fprintf(&b, "  functions: %d\n", len(p.Functions))

	fmt.Fprintf(&b, "\n.registers\n")
	for i, def := range p.Registers {
		fmt.Fprintf(&b, "  r%d: %s%s\n", i, def.Name, registerMarkers(def))
	}

	fmt.Fprintf(&b, "\n.constants\n")
	for i, v := range p.Constants {
		fmt.Fprintf(&b, "  c%d: %s\n", i, value.Format(v))
	}

	fmt.Fprintf(&b, "\n.bdd\n")
	fmt.Fprintf(&b, "  nodes: %d\n", len(p.BDDNodes))
	fmt.Fprintf(&b, "  root: %s\n", p.BDDRoot)
	for i, n := range p.BDDNodes {
		fmt.Fprintf(&b, "  n%d: var=%d high=%s low=%s\n", i, n.Condition, n.High, n.Low)
	}

	for i, off := range p.ConditionOffsets {
		fmt.Fprintf(&b, "\n.condition %d @%d\n", i, off)
		disasmBody(&b, p, off)
	}
	for i, off := range p.ResultOffsets {
		fmt.Fprintf(&b, "\n.result %d @%d\n", i, off)
		disasmBody(&b, p, off)
	}
	return b.String()
}

func registerMarkers(def RegisterDef) string {
	var b strings.Builder
	if def.Required {
		b.WriteString(" [required]")
	}
	if def.Temporary {
		b.WriteString(" [temp]")
	}
	if def.Default != nil {
		fmt.Fprintf(&b, " default=%s", value.Format(def.Default))
	}
	if def.Builtin != "" {
		fmt.Fprintf(&b, " builtin=%s", def.Builtin)
	}
	return b.String()
}

func disasmBody(b *strings.Builder, p *Program, offset int32) {
	end := int(p.BodyEnd(offset))
	w, err := NewWalker(p.Instructions, int(offset))
	if err != nil {
		fmt.Fprintf(b, "  <%v>\n", err)
		return
	}
	for !w.AtEnd() && w.Pos() < end {
		fmt.Fprintf(b, "  %04d  %s\n", w.Pos(), disasmInstruction(p, w))
		if !w.Opcode().Valid() {
			// Cannot size an undefined opcode's operands; stop the body.
			return
		}
		if err := w.Next(); err != nil {
			fmt.Fprintf(b, "  <%v>\n", err)
			return
		}
	}
}

// disasmInstruction renders the instruction under w, resolving operand
// meanings from the opcode.
func disasmInstruction(p *Program, w *Walker) string {
	op := w.Opcode()
	if !op.Valid() {
		return op.String()
	}

	operands := make([]int, w.OperandCount())
	for i := range operands {
		v, err := w.Operand(i)
		if err != nil {
			return fmt.Sprintf("%s <%v>", op, err)
		}
		operands[i] = v
	}

	switch op {
	case OpLoadConst, OpLoadConstW:
		return fmt.Sprintf("%s %s", op, constName(p, operands[0]))
	case OpLoadRegister, OpSetRegister,
		OpTestRegisterIsSet, OpTestRegisterNotSet,
		OpTestRegisterIsTrue, OpTestRegisterIsFalse:
		return fmt.Sprintf("%s %s", op, regName(p, operands[0]))
	case OpListN, OpMapN:
		return fmt.Sprintf("%s %d", op, operands[0])
	case OpGetProperty:
		return fmt.Sprintf("%s %s", op, constName(p, operands[0]))
	case OpGetPropertyReg:
		return fmt.Sprintf("%s %s %s", op, regName(p, operands[0]), constName(p, operands[1]))
	case OpGetIndex:
		return fmt.Sprintf("%s [%d]", op, operands[0])
	case OpGetIndexReg:
		return fmt.Sprintf("%s %s [%d]", op, regName(p, operands[0]), operands[1])
	case OpResolveTemplate:
		return fmt.Sprintf("%s exprs=%d %s", op, operands[0], constName(p, operands[1]))
	case OpSubstring:
		return fmt.Sprintf("%s start=%d stop=%d fromEnd=%d", op, operands[0], operands[1], operands[2])
	case OpSplit:
		return fmt.Sprintf("%s limit=%d", op, operands[0])
	case OpFn1, OpFn2, OpFn3, OpFn:
		return fmt.Sprintf("%s %s", op, funcName(p, operands[0]))
	case OpFnVa:
		return fmt.Sprintf("%s %s argc=%d", op, funcName(p, operands[0]), operands[1])
	case OpJnnOrPop:
		target, err := w.JumpTarget()
		if err != nil {
			return fmt.Sprintf("%s <%v>", op, err)
		}
		return fmt.Sprintf("%s -> %04d", op, target)
	case OpReturnEndpoint:
		return fmt.Sprintf("%s flags=%d", op, operands[0])
	default:
		return op.String()
	}
}

func constName(p *Program, idx int) string {
	if idx < 0 || idx >= len(p.Constants) {
		return fmt.Sprintf("c%d<out of range>", idx)
	}
	return fmt.Sprintf("c%d=%s", idx, value.Format(p.Constants[idx]))
}

func regName(p *Program, idx int) string {
	if idx < 0 || idx >= len(p.Registers) {
		return fmt.Sprintf("r%d<out of range>", idx)
	}
	return fmt.Sprintf("r%d(%s)", idx, p.Registers[idx].Name)
}

func funcName(p *Program, idx int) string {
	if idx < 0 || idx >= len(p.Functions) {
		return fmt.Sprintf("f%d<out of range>", idx)
	}
	return fmt.Sprintf("f%d(%s/%d)", idx, p.Functions[idx].Name, p.Functions[idx].ArgCount)
}

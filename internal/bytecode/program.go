package bytecode

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/roach88/waypost/internal/value"
)

// FuncDef names one callable slot of the function table. The index in
// Program.Functions is the operand of the FN-family opcodes; linking against
// registered implementations happens when an evaluator is constructed.
type FuncDef struct {
	Name     string
	ArgCount int
}

// Program is a compiled decision program: immutable once built, safe to
// share across concurrent evaluations.
type Program struct {
	// Instructions holds all condition bodies followed by all result
	// bodies, concatenated.
	Instructions []byte

	// ConditionOffsets and ResultOffsets mark each body's first byte.
	ConditionOffsets []int32
	ResultOffsets    []int32

	Registers []RegisterDef
	Constants []value.Value
	Functions []FuncDef

	BDDNodes []Node
	BDDRoot  Ref

	// Derived views, computed once by finalize.
	inputIndex   map[string]int
	builtinRegs  []int
	hardRequired []int
	bodyStarts   []int32
}

// finalize computes the derived views and validates internal consistency.
func (p *Program) finalize() error {
	if len(p.Registers) > MaxRegisters {
		return NewFormatError(ErrCodeRegisterOverflow, "program declares %d registers, limit is %d", len(p.Registers), MaxRegisters)
	}

	p.inputIndex = make(map[string]int, len(p.Registers))
	p.builtinRegs = nil
	p.hardRequired = nil
	for i, def := range p.Registers {
		if !def.Temporary {
			if _, dup := p.inputIndex[def.Name]; dup {
				return NewFormatError(ErrCodeDuplicateRegister, "register %q already allocated", def.Name)
			}
			p.inputIndex[def.Name] = i
		}
		if def.Builtin != "" {
			p.builtinRegs = append(p.builtinRegs, i)
		}
		if def.Required && def.Default == nil && def.Builtin == "" && !def.Temporary {
			p.hardRequired = append(p.hardRequired, i)
		}
	}

	size := int32(len(p.Instructions))
	p.bodyStarts = make([]int32, 0, len(p.ConditionOffsets)+len(p.ResultOffsets))
	for _, off := range p.ConditionOffsets {
		if off < 0 || off >= size {
			return NewFormatError(ErrCodeBadOffsets, "condition offset %d outside instruction stream (%d bytes)", off, size)
		}
		p.bodyStarts = append(p.bodyStarts, off)
	}
	for _, off := range p.ResultOffsets {
		if off < 0 || off >= size {
			return NewFormatError(ErrCodeBadOffsets, "result offset %d outside instruction stream (%d bytes)", off, size)
		}
		p.bodyStarts = append(p.bodyStarts, off)
	}
	sort.Slice(p.bodyStarts, func(i, j int) bool { return p.bodyStarts[i] < p.bodyStarts[j] })

	for i, n := range p.BDDNodes {
		if n.Condition < 0 || int(n.Condition) >= len(p.ConditionOffsets) {
			return NewFormatError(ErrCodeBadOffsets, "BDD node %d references condition %d (%d conditions)", i, n.Condition, len(p.ConditionOffsets))
		}
		if err := checkRef(n.High, len(p.BDDNodes), len(p.ResultOffsets)); err != nil {
			return err
		}
		if err := checkRef(n.Low, len(p.BDDNodes), len(p.ResultOffsets)); err != nil {
			return err
		}
	}
	return checkRef(p.BDDRoot, len(p.BDDNodes), len(p.ResultOffsets))
}

// ConditionCount returns the number of condition bodies.
func (p *Program) ConditionCount() int { return len(p.ConditionOffsets) }

// ResultCount returns the number of result bodies.
func (p *Program) ResultCount() int { return len(p.ResultOffsets) }

// InputIndex returns the register index for a caller-suppliable parameter
// name. Temporary registers are not addressable by name.
func (p *Program) InputIndex(name string) (int, bool) {
	idx, ok := p.inputIndex[name]
	return idx, ok
}

// BuiltinRegisters returns the indices of registers with a builtin source,
// in register order. The slice is shared; callers must not mutate it.
func (p *Program) BuiltinRegisters() []int { return p.builtinRegs }

// HardRequired returns the indices of registers that are required yet have
// no default and no builtin: the registers the caller alone can satisfy.
func (p *Program) HardRequired() []int { return p.hardRequired }

// Template returns a fresh register array pre-populated with static
// defaults, nil where a register has none. One call per evaluation.
func (p *Program) Template() []value.Value {
	regs := make([]value.Value, len(p.Registers))
	for i, def := range p.Registers {
		regs[i] = def.Default
	}
	return regs
}

// BodyEnd returns the exclusive end of the instruction body starting at
// offset: the next recorded body start, or the end of the stream.
func (p *Program) BodyEnd(offset int32) int32 {
	i := sort.Search(len(p.bodyStarts), func(i int) bool { return p.bodyStarts[i] > offset })
	if i < len(p.bodyStarts) {
		return p.bodyStarts[i]
	}
	return int32(len(p.Instructions))
}

// Fingerprint returns the hex SHA-256 of the program's binary encoding,
// usable as a cache key for loaded programs.
func (p *Program) Fingerprint() string {
	sum := sha256.Sum256(Encode(p))
	return hex.EncodeToString(sum[:])
}

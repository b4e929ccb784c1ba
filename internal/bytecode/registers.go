package bytecode

import (
	"github.com/roach88/waypost/internal/value"
)

// MaxRegisters bounds the register table: a register index must fit in the
// single unsigned operand byte of LOAD_REGISTER / SET_REGISTER.
const MaxRegisters = 256

// RegisterDef describes one register slot of a compiled program. The slot's
// position in Program.Registers is its index in the instruction stream.
type RegisterDef struct {
	// Name is the parameter name callers use to supply a value.
	Name string

	// Required marks a register that must hold a value after filling.
	Required bool

	// Default is the statically-compiled fallback value, nil when absent.
	Default value.Value

	// Builtin names an external provider consulted when the caller
	// supplies no value. Empty when the register has no builtin source.
	Builtin string

	// Temporary marks a compiler-introduced scratch register. Temporaries
	// are never fillable from caller parameters.
	Temporary bool
}

// Allocator assigns stable register indices at compile time.
// Indices equal allocation order, starting at 0.
type Allocator struct {
	defs   []RegisterDef
	byName map[string]int
}

// NewAllocator creates an empty register allocator.
func NewAllocator() *Allocator {
	return &Allocator{byName: make(map[string]int)}
}

// Allocate assigns the next index to def. Allocating a name twice or
// exceeding MaxRegisters is a fatal compile error.
func (a *Allocator) Allocate(def RegisterDef) (int, error) {
	if _, exists := a.byName[def.Name]; exists {
		return 0, NewFormatError(ErrCodeDuplicateRegister, "register %q already allocated", def.Name)
	}
	if len(a.defs) >= MaxRegisters {
		return 0, NewFormatError(ErrCodeRegisterOverflow, "cannot allocate %q: register limit %d reached", def.Name, MaxRegisters)
	}
	idx := len(a.defs)
	a.defs = append(a.defs, def)
	a.byName[def.Name] = idx
	return idx, nil
}

// GetOrAllocate returns the index of name, allocating a fresh temporary
// register (no default, no builtin) on first sight.
func (a *Allocator) GetOrAllocate(name string) (int, error) {
	if idx, exists := a.byName[name]; exists {
		return idx, nil
	}
	return a.Allocate(RegisterDef{Name: name, Temporary: true})
}

// Get returns the index of name. Looking up a name that was never
// allocated is an illegal-state error.
func (a *Allocator) Get(name string) (int, error) {
	idx, exists := a.byName[name]
	if !exists {
		return 0, NewFormatError(ErrCodeUnknownRegister, "register %q was never allocated", name)
	}
	return idx, nil
}

// Len returns the number of allocated registers.
func (a *Allocator) Len() int {
	return len(a.defs)
}

// Defs returns the register definitions in index order.
// The slice is shared; callers must not mutate it.
func (a *Allocator) Defs() []RegisterDef {
	return a.defs
}

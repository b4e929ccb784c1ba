package vm

import (
	"github.com/roach88/waypost/internal/bytecode"
	"github.com/roach88/waypost/internal/value"
)

// RegisterFiller populates a register array for one evaluation from three
// sources, in precedence order: caller-supplied parameters, builtin
// providers, and statically-compiled defaults. One filler may be shared
// across evaluations; it holds no per-call state.
type RegisterFiller struct {
	prog     *bytecode.Program
	builtins map[string]BuiltinProvider
}

// NewRegisterFiller creates a filler for prog consulting the given builtin
// providers. A nil provider map is valid: every builtin probe then falls
// through to the register's default.
func NewRegisterFiller(prog *bytecode.Program, builtins map[string]BuiltinProvider) *RegisterFiller {
	return &RegisterFiller{prog: prog, builtins: builtins}
}

// Fill populates regs (length must equal the program's register count,
// pre-loaded with static defaults via Program.Template) and validates
// required registers. Temporary registers never take caller parameters. A
// builtin probe where the provider is missing, or present but yielding
// null, falls through to the default already in place.
func (f *RegisterFiller) Fill(regs []value.Value, ctx Context, params map[string]value.Value) error {
	for _, i := range f.prog.BuiltinRegisters() {
		def := f.prog.Registers[i]
		if provider, ok := f.builtins[def.Builtin]; ok {
			if v := provider(ctx); value.IsSet(v) {
				regs[i] = v
			}
		}
	}

	for name, v := range params {
		i, ok := f.prog.InputIndex(name)
		if !ok {
			// Unknown parameters are ignored, same as parameters
			// aimed at temporaries: only declared inputs bind.
			continue
		}
		// A null parameter is an absent parameter; it cannot mask a
		// builtin or default value.
		if value.IsSet(v) {
			regs[i] = v
		}
	}

	for i, def := range f.prog.Registers {
		if def.Required && !value.IsSet(regs[i]) {
			return &EvalError{
				Code:     ErrCodeMissingParameter,
				Message:  "required parameter has no value",
				Address:  -1,
				Register: def.Name,
			}
		}
	}
	return nil
}

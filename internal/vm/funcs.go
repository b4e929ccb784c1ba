package vm

import (
	"github.com/roach88/waypost/internal/bytecode"
	"github.com/roach88/waypost/internal/value"
)

// Context carries ambient per-resolution data into builtin providers and
// endpoint hooks. The VM itself never reads it.
type Context map[string]value.Value

// BuiltinProvider produces a value for a register that declares a builtin
// source. Returning nil or Null means "no value"; the filler falls through
// to the register's static default.
type BuiltinProvider func(ctx Context) value.Value

// Func is one callable implementation for the FN-family opcodes.
type Func struct {
	// Name links the implementation to function-table entries.
	Name string

	// ArgCount is the declared arity, checked at link time against the
	// program's function table.
	ArgCount int

	// Impl receives exactly ArgCount arguments in push order.
	Impl func(ctx Context, args []value.Value) (value.Value, error)
}

// EndpointHook runs after a result body produces an endpoint, and may
// enrich it with extra headers or properties derived from ambient context.
type EndpointHook func(ctx Context, ep *Endpoint) error

// DefaultFuncs returns the builtin function table every evaluator carries.
// Extensions add to it, they cannot shadow it.
func DefaultFuncs() []Func {
	return []Func{
		{
			Name:     "isValidHostLabel",
			ArgCount: 2,
			Impl: func(_ Context, args []value.Value) (value.Value, error) {
				label, ok := args[0].(value.String)
				if !ok {
					return value.Bool(false), nil
				}
				allowDots, _ := args[1].(value.Bool)
				return value.Bool(IsValidHostLabel(string(label), bool(allowDots))), nil
			},
		},
	}
}

// linkFunctions resolves every function-table entry of p against the
// registered implementations. An unregistered name or an arity mismatch is
// a fatal load error, reported before any evaluation runs.
func linkFunctions(p *bytecode.Program, registered []Func) ([]Func, error) {
	byName := make(map[string]Func, len(registered))
	for _, fn := range registered {
		byName[fn.Name] = fn
	}
	linked := make([]Func, len(p.Functions))
	for i, def := range p.Functions {
		fn, ok := byName[def.Name]
		if !ok {
			return nil, bytecode.NewFormatError(bytecode.ErrCodeUnknownFunction, "function %q (table index %d) is not registered", def.Name, i)
		}
		if fn.ArgCount != def.ArgCount {
			return nil, bytecode.NewFormatError(bytecode.ErrCodeUnknownFunction, "function %q declared with arity %d, implementation takes %d", def.Name, def.ArgCount, fn.ArgCount)
		}
		linked[i] = fn
	}
	return linked, nil
}

// IsValidHostLabel reports whether s is a valid RFC 1123 host label, or,
// when allowDots is true, a dotted sequence of valid labels. Each label is
// 1-63 characters of ASCII letters, digits, and hyphens, and may not start
// with a hyphen.
func IsValidHostLabel(s string, allowDots bool) bool {
	if s == "" {
		return false
	}
	if !allowDots {
		return validLabel(s)
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			// Empty segments cover leading, trailing, and consecutive dots.
			if !validLabel(s[start:i]) {
				return false
			}
			start = i + 1
		}
	}
	return true
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > 63 {
		return false
	}
	if label[0] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

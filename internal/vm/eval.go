// Package vm implements the waypost bytecode evaluator: a stack machine
// that fills a register file from caller parameters, walks a program's
// decision diagram to pick the instruction bodies to run, and executes them
// to produce a resolved endpoint, a plain value, or an evaluation error.
//
// A compiled Program is immutable and may be shared by concurrent
// evaluations; every Resolve call allocates its own register array and
// operand stack. The evaluator performs no I/O.
package vm

import (
	"encoding/binary"
	"strings"

	"github.com/roach88/waypost/internal/bytecode"
	"github.com/roach88/waypost/internal/value"
)

// Evaluator runs one compiled program. Constructing an evaluator links the
// program's function table against the default and extension functions,
// failing fast on any unresolved or mis-declared entry.
type Evaluator struct {
	prog     *bytecode.Program
	funcs    []Func
	filler   *RegisterFiller
	hooks    []EndpointHook
	uriCache *URICache
}

type config struct {
	funcs     []Func
	builtins  map[string]BuiltinProvider
	hooks     []EndpointHook
	uriCache  *URICache
	cacheSize int
}

// Option configures an Evaluator.
type Option func(*config)

// WithFunctions registers extension functions callable via FN opcodes.
func WithFunctions(fns ...Func) Option {
	return func(c *config) { c.funcs = append(c.funcs, fns...) }
}

// WithBuiltins registers the builtin providers the register filler consults.
func WithBuiltins(providers map[string]BuiltinProvider) Option {
	return func(c *config) { c.builtins = providers }
}

// WithEndpointHook adds a post-resolution hook run on every produced
// endpoint, in registration order.
func WithEndpointHook(h EndpointHook) Option {
	return func(c *config) { c.hooks = append(c.hooks, h) }
}

// WithURICache shares an existing URI cache with this evaluator.
func WithURICache(cache *URICache) Option {
	return func(c *config) { c.uriCache = cache }
}

// WithURICacheSize bounds the evaluator-owned URI cache.
func WithURICacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// NewEvaluator links prog against the registered functions and returns a
// ready evaluator. Unknown or arity-mismatched function-table entries fail
// here, never at call time.
func NewEvaluator(prog *bytecode.Program, opts ...Option) (*Evaluator, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	linked, err := linkFunctions(prog, append(DefaultFuncs(), cfg.funcs...))
	if err != nil {
		return nil, err
	}
	cache := cfg.uriCache
	if cache == nil {
		cache = NewURICache(cfg.cacheSize)
	}
	return &Evaluator{
		prog:     prog,
		funcs:    linked,
		filler:   NewRegisterFiller(prog, cfg.builtins),
		hooks:    cfg.hooks,
		uriCache: cache,
	}, nil
}

// Program returns the compiled program this evaluator runs.
func (e *Evaluator) Program() *bytecode.Program { return e.prog }

// Resolve fills a fresh register file from params, traverses the decision
// diagram, and runs the selected result body. It is safe to call
// concurrently.
func (e *Evaluator) Resolve(ctx Context, params map[string]value.Value) (*Result, error) {
	regs := e.prog.Template()
	if err := e.filler.Fill(regs, ctx, params); err != nil {
		return nil, err
	}
	return e.traverse(ctx, regs)
}

// traverse descends the decision diagram from the root. The node table is a
// DAG, so visiting more refs than there are nodes means the table is
// corrupt.
func (e *Evaluator) traverse(ctx Context, regs []value.Value) (*Result, error) {
	ref := e.prog.BDDRoot
	for steps := 0; steps <= len(e.prog.BDDNodes); steps++ {
		switch {
		case ref == bytecode.RefFalse:
			return nil, NewEvalError(ErrCodeNoMatch, "no endpoint rule matched the supplied parameters")
		case ref == bytecode.RefTrue:
			return &Result{Value: value.Bool(true)}, nil
		case ref.IsResult():
			return e.ResolveResult(ctx, ref.ResultIndex(), regs)
		default:
			node := e.prog.BDDNodes[ref.NodeIndex()]
			matched, err := e.Test(ctx, int(node.Condition), regs)
			if err != nil {
				return nil, err
			}
			if matched {
				ref = node.High
			} else {
				ref = node.Low
			}
		}
	}
	return nil, NewEvalError(ErrCodeMalformedBytecode, "BDD traversal visited more refs than the %d-node table holds", len(e.prog.BDDNodes))
}

// Test runs one condition body and returns its boolean outcome.
func (e *Evaluator) Test(ctx Context, conditionIndex int, regs []value.Value) (bool, error) {
	if conditionIndex < 0 || conditionIndex >= e.prog.ConditionCount() {
		return false, NewEvalError(ErrCodeMalformedBytecode, "condition index %d out of range (%d conditions)", conditionIndex, e.prog.ConditionCount())
	}
	x := &execution{e: e, ctx: ctx, regs: regs}
	res, err := x.run(e.prog.ConditionOffsets[conditionIndex])
	if err != nil {
		return false, err
	}
	if res.Endpoint != nil {
		return false, NewEvalError(ErrCodeMalformedBytecode, "condition %d returned an endpoint", conditionIndex)
	}
	b, ok := res.Value.(value.Bool)
	if !ok {
		return false, NewEvalError(ErrCodeTypeMismatch, "condition %d returned %s, want a boolean", conditionIndex, value.Format(res.Value))
	}
	return bool(b), nil
}

// ResolveResult runs one result body against an already-filled register
// file, applying endpoint hooks to any produced endpoint.
func (e *Evaluator) ResolveResult(ctx Context, resultIndex int, regs []value.Value) (*Result, error) {
	if resultIndex < 0 || resultIndex >= e.prog.ResultCount() {
		return nil, NewEvalError(ErrCodeMalformedBytecode, "result index %d out of range (%d results)", resultIndex, e.prog.ResultCount())
	}
	x := &execution{e: e, ctx: ctx, regs: regs}
	res, err := x.run(e.prog.ResultOffsets[resultIndex])
	if err != nil {
		return nil, err
	}
	if res.Endpoint != nil {
		for _, hook := range e.hooks {
			if err := hook(ctx, res.Endpoint); err != nil {
				return nil, NewEvalError(ErrCodeFunctionFailed, "endpoint hook failed: %v", err)
			}
		}
	}
	return res, nil
}

// execution is the mutable state of one instruction-body run: an operand
// stack and the shared register array. One execution never outlives its
// Resolve call and is never shared.
type execution struct {
	e     *Evaluator
	ctx   Context
	regs  []value.Value
	stack []value.Value
}

func (x *execution) push(v value.Value) {
	if v == nil {
		v = value.Null{}
	}
	x.stack = append(x.stack, v)
}

func (x *execution) pop(pc int) (value.Value, error) {
	if len(x.stack) == 0 {
		return nil, evalErrorAt(ErrCodeMalformedBytecode, pc, "operand stack underflow")
	}
	v := x.stack[len(x.stack)-1]
	x.stack = x.stack[:len(x.stack)-1]
	return v, nil
}

func (x *execution) popString(pc int, op bytecode.Opcode) (string, error) {
	v, err := x.pop(pc)
	if err != nil {
		return "", err
	}
	s, ok := v.(value.String)
	if !ok {
		return "", evalErrorAt(ErrCodeTypeMismatch, pc, "%s expects a string, got %s", op, value.Format(v))
	}
	return string(s), nil
}

func (x *execution) popBool(pc int, op bytecode.Opcode) (bool, error) {
	v, err := x.pop(pc)
	if err != nil {
		return false, err
	}
	b, ok := v.(value.Bool)
	if !ok {
		return false, evalErrorAt(ErrCodeTypeMismatch, pc, "%s expects a boolean, got %s", op, value.Format(v))
	}
	return bool(b), nil
}

// popN pops n values and returns them in push order.
func (x *execution) popN(pc, n int) ([]value.Value, error) {
	if len(x.stack) < n {
		return nil, evalErrorAt(ErrCodeMalformedBytecode, pc, "operand stack underflow: need %d values, have %d", n, len(x.stack))
	}
	vals := make([]value.Value, n)
	copy(vals, x.stack[len(x.stack)-n:])
	x.stack = x.stack[:len(x.stack)-n]
	return vals, nil
}

func (x *execution) register(pc, idx int) (value.Value, error) {
	if idx >= len(x.regs) {
		return nil, evalErrorAt(ErrCodeMalformedBytecode, pc, "register index %d out of range (%d registers)", idx, len(x.regs))
	}
	v := x.regs[idx]
	if v == nil {
		return value.Null{}, nil
	}
	return v, nil
}

func (x *execution) constant(pc, idx int) (value.Value, error) {
	if idx >= len(x.e.prog.Constants) {
		return nil, evalErrorAt(ErrCodeMalformedBytecode, pc, "constant index %d out of range (%d constants)", idx, len(x.e.prog.Constants))
	}
	return x.e.prog.Constants[idx], nil
}

// run executes one instruction body starting at offset until a RETURN_*
// opcode produces an outcome. Reaching the body's end without a return is a
// malformed-bytecode error.
func (x *execution) run(offset int32) (*Result, error) {
	code := x.e.prog.Instructions
	end := int(x.e.prog.BodyEnd(offset))

	for pc := int(offset); pc < end; {
		op := bytecode.Opcode(code[pc])
		if !op.Valid() {
			return nil, evalErrorAt(ErrCodeUnknownOpcode, pc, "unknown opcode 0x%02X", code[pc])
		}
		width := op.Width()
		if pc+width > end {
			return nil, evalErrorAt(ErrCodeMalformedBytecode, pc, "%s overruns the instruction body", op)
		}

		res, next, err := x.step(code, pc, op)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
		pc = next
	}
	return nil, evalErrorAt(ErrCodeMalformedBytecode, end, "instruction body ended without a return")
}

// step executes the instruction at pc. It returns a non-nil Result when the
// instruction terminates the body, else the next program counter.
func (x *execution) step(code []byte, pc int, op bytecode.Opcode) (*Result, int, error) {
	next := pc + op.Width()
	u8 := func(i int) int { return int(code[pc+i]) }
	u16 := func(i int) int { return int(binary.BigEndian.Uint16(code[pc+i:])) }

	switch op {
	case bytecode.OpLoadConst, bytecode.OpLoadConstW:
		idx := u8(1)
		if op == bytecode.OpLoadConstW {
			idx = u16(1)
		}
		v, err := x.constant(pc, idx)
		if err != nil {
			return nil, 0, err
		}
		x.push(v)

	case bytecode.OpLoadRegister:
		v, err := x.register(pc, u8(1))
		if err != nil {
			return nil, 0, err
		}
		x.push(v)

	case bytecode.OpSetRegister:
		idx := u8(1)
		if idx >= len(x.regs) {
			return nil, 0, evalErrorAt(ErrCodeMalformedBytecode, pc, "register index %d out of range (%d registers)", idx, len(x.regs))
		}
		v, err := x.pop(pc)
		if err != nil {
			return nil, 0, err
		}
		x.regs[idx] = v

	case bytecode.OpTestRegisterIsSet, bytecode.OpTestRegisterNotSet,
		bytecode.OpTestRegisterIsTrue, bytecode.OpTestRegisterIsFalse:
		v, err := x.register(pc, u8(1))
		if err != nil {
			return nil, 0, err
		}
		switch op {
		case bytecode.OpTestRegisterIsSet:
			x.push(value.Bool(value.IsSet(v)))
		case bytecode.OpTestRegisterNotSet:
			x.push(value.Bool(!value.IsSet(v)))
		case bytecode.OpTestRegisterIsTrue:
			x.push(value.Bool(v.Equal(value.Bool(true))))
		case bytecode.OpTestRegisterIsFalse:
			x.push(value.Bool(v.Equal(value.Bool(false))))
		}

	case bytecode.OpNot:
		b, err := x.popBool(pc, op)
		if err != nil {
			return nil, 0, err
		}
		x.push(value.Bool(!b))

	case bytecode.OpIsTrue:
		v, err := x.pop(pc)
		if err != nil {
			return nil, 0, err
		}
		x.push(value.Bool(v.Equal(value.Bool(true))))

	case bytecode.OpIsSet:
		v, err := x.pop(pc)
		if err != nil {
			return nil, 0, err
		}
		x.push(value.Bool(value.IsSet(v)))

	case bytecode.OpEquals:
		vals, err := x.popN(pc, 2)
		if err != nil {
			return nil, 0, err
		}
		x.push(value.Bool(vals[0].Equal(vals[1])))

	case bytecode.OpStringEquals:
		b, err := x.popString(pc, op)
		if err != nil {
			return nil, 0, err
		}
		a, err := x.popString(pc, op)
		if err != nil {
			return nil, 0, err
		}
		x.push(value.Bool(a == b))

	case bytecode.OpBooleanEquals:
		b, err := x.popBool(pc, op)
		if err != nil {
			return nil, 0, err
		}
		a, err := x.popBool(pc, op)
		if err != nil {
			return nil, 0, err
		}
		x.push(value.Bool(a == b))

	case bytecode.OpList0, bytecode.OpList1, bytecode.OpList2, bytecode.OpListN:
		n := int(op - bytecode.OpList0)
		if op == bytecode.OpListN {
			n = u8(1)
		}
		vals, err := x.popN(pc, n)
		if err != nil {
			return nil, 0, err
		}
		x.push(value.List(vals))

	case bytecode.OpMap0, bytecode.OpMap1, bytecode.OpMap2,
		bytecode.OpMap3, bytecode.OpMap4, bytecode.OpMapN:
		n := int(op - bytecode.OpMap0)
		if op == bytecode.OpMapN {
			n = u8(1)
		}
		vals, err := x.popN(pc, 2*n)
		if err != nil {
			return nil, 0, err
		}
		m := make(value.Map, n)
		for i := 0; i < n; i++ {
			k, ok := vals[2*i].(value.String)
			if !ok {
				return nil, 0, evalErrorAt(ErrCodeTypeMismatch, pc, "%s key %d must be a string, got %s", op, i, value.Format(vals[2*i]))
			}
			m[string(k)] = vals[2*i+1]
		}
		x.push(m)

	case bytecode.OpGetProperty, bytecode.OpGetPropertyReg:
		var target value.Value
		var err error
		var nameIdx int
		if op == bytecode.OpGetProperty {
			nameIdx = u16(1)
			target, err = x.pop(pc)
		} else {
			nameIdx = u16(2)
			target, err = x.register(pc, u8(1))
		}
		if err != nil {
			return nil, 0, err
		}
		nameConst, err := x.constant(pc, nameIdx)
		if err != nil {
			return nil, 0, err
		}
		name, ok := nameConst.(value.String)
		if !ok {
			return nil, 0, evalErrorAt(ErrCodeTypeMismatch, pc, "%s property name constant must be a string, got %s", op, value.Format(nameConst))
		}
		v, err := x.getProperty(pc, op, target, string(name))
		if err != nil {
			return nil, 0, err
		}
		x.push(v)

	case bytecode.OpGetIndex, bytecode.OpGetIndexReg:
		var target value.Value
		var err error
		var idx int
		if op == bytecode.OpGetIndex {
			idx = u8(1)
			target, err = x.pop(pc)
		} else {
			idx = u8(2)
			target, err = x.register(pc, u8(1))
		}
		if err != nil {
			return nil, 0, err
		}
		if !value.IsSet(target) {
			x.push(value.Null{})
			break
		}
		list, ok := target.(value.List)
		if !ok {
			return nil, 0, evalErrorAt(ErrCodeTypeMismatch, pc, "%s expects a list, got %s", op, value.Format(target))
		}
		if idx >= len(list) {
			x.push(value.Null{})
		} else {
			x.push(list[idx])
		}

	case bytecode.OpResolveTemplate:
		exprs, tmplIdx := u8(1), u16(2)
		tmpl, err := x.constant(pc, tmplIdx)
		if err != nil {
			return nil, 0, err
		}
		parts, ok := tmpl.(value.List)
		if !ok || len(parts) != exprs+1 {
			return nil, 0, evalErrorAt(ErrCodeMalformedBytecode, pc, "%s template constant must be a list of %d string parts, got %s", op, exprs+1, value.Format(tmpl))
		}
		vals, err := x.popN(pc, exprs)
		if err != nil {
			return nil, 0, err
		}
		var b strings.Builder
		for i, part := range parts {
			lit, ok := part.(value.String)
			if !ok {
				return nil, 0, evalErrorAt(ErrCodeMalformedBytecode, pc, "%s template part %d must be a string, got %s", op, i, value.Format(part))
			}
			b.WriteString(string(lit))
			if i < exprs {
				s, ok := vals[i].(value.String)
				if !ok {
					return nil, 0, evalErrorAt(ErrCodeTypeMismatch, pc, "%s expects a string for expression %d, got %s", op, i, value.Format(vals[i]))
				}
				b.WriteString(string(s))
			}
		}
		x.push(value.String(b.String()))

	case bytecode.OpSubstring:
		start, stop, fromEnd := u8(1), u8(2), u8(3)
		s, err := x.popString(pc, op)
		if err != nil {
			return nil, 0, err
		}
		x.push(substring(s, start, stop, fromEnd != 0))

	case bytecode.OpURIEncode:
		s, err := x.popString(pc, op)
		if err != nil {
			return nil, 0, err
		}
		x.push(value.String(uriEncode(s)))

	case bytecode.OpSplit:
		limit := u8(1)
		delim, err := x.popString(pc, op)
		if err != nil {
			return nil, 0, err
		}
		input, err := x.popString(pc, op)
		if err != nil {
			return nil, 0, err
		}
		n := limit
		if n == 0 {
			n = -1
		}
		pieces := strings.SplitN(input, delim, n)
		list := make(value.List, len(pieces))
		for i, piece := range pieces {
			list[i] = value.String(piece)
		}
		x.push(list)

	case bytecode.OpParseURL:
		s, err := x.popString(pc, op)
		if err != nil {
			return nil, 0, err
		}
		x.push(x.e.uriCache.Get(s))

	case bytecode.OpFn1, bytecode.OpFn2, bytecode.OpFn3:
		argc := 1 + int(op-bytecode.OpFn1)
		if res, err := x.call(pc, u8(1), argc); err != nil {
			return nil, 0, err
		} else {
			x.push(res)
		}

	case bytecode.OpFn:
		idx := u16(1)
		if idx >= len(x.e.funcs) {
			return nil, 0, evalErrorAt(ErrCodeMalformedBytecode, pc, "function index %d out of range (%d functions)", idx, len(x.e.funcs))
		}
		// A variadic entry has no declared arity to pop by; only FN_VA
		// carries an explicit argument count.
		if x.e.funcs[idx].ArgCount < 0 {
			return nil, 0, evalErrorAt(ErrCodeMalformedBytecode, pc, "variadic function %q requires FN_VA", x.e.funcs[idx].Name)
		}
		res, err := x.call(pc, idx, x.e.funcs[idx].ArgCount)
		if err != nil {
			return nil, 0, err
		}
		x.push(res)

	case bytecode.OpFnVa:
		if res, err := x.call(pc, u16(1), u8(3)); err != nil {
			return nil, 0, err
		} else {
			x.push(res)
		}

	case bytecode.OpJnnOrPop:
		if len(x.stack) == 0 {
			return nil, 0, evalErrorAt(ErrCodeMalformedBytecode, pc, "operand stack underflow")
		}
		if value.IsSet(x.stack[len(x.stack)-1]) {
			return nil, next + u16(1), nil
		}
		x.stack = x.stack[:len(x.stack)-1]

	case bytecode.OpReturnValue:
		v, err := x.pop(pc)
		if err != nil {
			return nil, 0, err
		}
		return &Result{Value: v}, 0, nil

	case bytecode.OpReturnEndpoint:
		flags := u8(1)
		var headers, properties value.Value
		var err error
		if flags&bytecode.EndpointPopProperties != 0 {
			if properties, err = x.pop(pc); err != nil {
				return nil, 0, err
			}
		}
		if flags&bytecode.EndpointPopHeaders != 0 {
			if headers, err = x.pop(pc); err != nil {
				return nil, 0, err
			}
		}
		rawURL, err := x.popString(pc, op)
		if err != nil {
			return nil, 0, err
		}
		ep, err := newEndpoint(pc, rawURL, headers, properties)
		if err != nil {
			return nil, 0, err
		}
		return &Result{Endpoint: ep}, 0, nil

	case bytecode.OpReturnError:
		v, err := x.pop(pc)
		if err != nil {
			return nil, 0, err
		}
		return nil, 0, evalErrorAt(ErrCodeErrorResult, pc, "%s", value.Stringify(v))
	}

	return nil, next, nil
}

func (x *execution) call(pc, idx, argc int) (value.Value, error) {
	if idx >= len(x.e.funcs) {
		return nil, evalErrorAt(ErrCodeMalformedBytecode, pc, "function index %d out of range (%d functions)", idx, len(x.e.funcs))
	}
	fn := x.e.funcs[idx]
	if fn.ArgCount >= 0 && fn.ArgCount != argc {
		return nil, evalErrorAt(ErrCodeMalformedBytecode, pc, "function %q takes %d arguments, called with %d", fn.Name, fn.ArgCount, argc)
	}
	args, err := x.popN(pc, argc)
	if err != nil {
		return nil, err
	}
	res, err := fn.Impl(x.ctx, args)
	if err != nil {
		return nil, evalErrorAt(ErrCodeFunctionFailed, pc, "function %q failed: %v", fn.Name, err)
	}
	return res, nil
}

// getProperty resolves a dotted property path on a map value. A null target
// or a missing path segment yields null; a non-map target is a type error.
func (x *execution) getProperty(pc int, op bytecode.Opcode, target value.Value, path string) (value.Value, error) {
	if !value.IsSet(target) {
		return value.Null{}, nil
	}
	if _, ok := target.(value.Map); !ok {
		return nil, evalErrorAt(ErrCodeTypeMismatch, pc, "%s expects a map, got %s", op, value.Format(target))
	}
	current := target
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(value.Map)
		if !ok {
			return value.Null{}, nil
		}
		next, present := m[seg]
		if !present {
			return value.Null{}, nil
		}
		current = next
	}
	return current, nil
}

// substring mirrors the endpoint-rules substring semantics: indices are
// byte positions, the input must be ASCII, and any out-of-range request
// yields null rather than an error.
func substring(s string, start, stop int, fromEnd bool) value.Value {
	if start >= stop || len(s) < stop {
		return value.Null{}
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return value.Null{}
		}
	}
	if fromEnd {
		return value.String(s[len(s)-stop : len(s)-start])
	}
	return value.String(s[start:stop])
}

// uriEncode percent-encodes every byte outside the RFC 3986 unreserved set.
func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperHex(c >> 4))
			b.WriteByte(upperHex(c & 0x0f))
		}
	}
	return b.String()
}

func upperHex(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + n - 10
}

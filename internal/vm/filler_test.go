package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/waypost/internal/bytecode"
	"github.com/roach88/waypost/internal/value"
)

// fillerProgram declares one register of each flavor the filler handles.
func fillerProgram(t *testing.T) *bytecode.Program {
	t.Helper()
	a := bytecode.NewAssembler()
	regs := a.Registers()

	_, err := regs.Allocate(bytecode.RegisterDef{Name: "Region", Required: true})
	require.NoError(t, err)
	_, err = regs.Allocate(bytecode.RegisterDef{Name: "UseFips", Default: value.Bool(false)})
	require.NoError(t, err)
	_, err = regs.Allocate(bytecode.RegisterDef{Name: "AccountId", Builtin: "env.accountId", Default: value.String("none")})
	require.NoError(t, err)
	_, err = regs.Allocate(bytecode.RegisterDef{Name: "tmp0", Temporary: true})
	require.NoError(t, err)

	a.StartResult()
	a.Emit(bytecode.OpLoadConst, a.Const(value.String("https://example.com")))
	a.Emit(bytecode.OpReturnEndpoint, 0)
	a.SetBDD(nil, bytecode.ResultRef(0))

	p, err := a.Program()
	require.NoError(t, err)
	return p
}

func TestFill_SuppliedParameterWins(t *testing.T) {
	p := fillerProgram(t)
	builtins := map[string]BuiltinProvider{
		"env.accountId": func(Context) value.Value { return value.String("from-builtin") },
	}
	regs := p.Template()

	err := NewRegisterFiller(p, builtins).Fill(regs, nil, map[string]value.Value{
		"Region":    value.String("us-west-2"),
		"UseFips":   value.Bool(true),
		"AccountId": value.String("from-caller"),
	})
	require.NoError(t, err)

	assert.Equal(t, value.String("us-west-2"), regs[0])
	assert.Equal(t, value.Bool(true), regs[1])
	assert.Equal(t, value.String("from-caller"), regs[2])
}

func TestFill_BuiltinBeatsDefault(t *testing.T) {
	p := fillerProgram(t)
	builtins := map[string]BuiltinProvider{
		"env.accountId": func(Context) value.Value { return value.String("12345") },
	}
	regs := p.Template()

	err := NewRegisterFiller(p, builtins).Fill(regs, nil, map[string]value.Value{
		"Region": value.String("us-east-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, value.String("12345"), regs[2])
}

func TestFill_NullBuiltinFallsThroughToDefault(t *testing.T) {
	p := fillerProgram(t)
	params := map[string]value.Value{"Region": value.String("us-east-1")}

	// Provider present but yielding null.
	regs := p.Template()
	builtins := map[string]BuiltinProvider{
		"env.accountId": func(Context) value.Value { return value.Null{} },
	}
	err := NewRegisterFiller(p, builtins).Fill(regs, nil, params)
	require.NoError(t, err)
	assert.Equal(t, value.String("none"), regs[2])

	// No provider registered at all behaves identically.
	regs = p.Template()
	err = NewRegisterFiller(p, nil).Fill(regs, nil, params)
	require.NoError(t, err)
	assert.Equal(t, value.String("none"), regs[2])
}

func TestFill_MissingRequiredNamesRegister(t *testing.T) {
	p := fillerProgram(t)
	regs := p.Template()

	err := NewRegisterFiller(p, nil).Fill(regs, nil, nil)
	require.Error(t, err)
	assert.True(t, IsMissingParameter(err))
	assert.Contains(t, err.Error(), "Region")
}

func TestFill_TemporariesIgnoreSuppliedParameters(t *testing.T) {
	p := fillerProgram(t)
	regs := p.Template()

	err := NewRegisterFiller(p, nil).Fill(regs, nil, map[string]value.Value{
		"Region": value.String("us-east-1"),
		"tmp0":   value.String("smuggled"),
	})
	require.NoError(t, err)
	assert.Nil(t, regs[3])
}

func TestFill_NullParameterDoesNotMaskDefault(t *testing.T) {
	p := fillerProgram(t)
	regs := p.Template()

	err := NewRegisterFiller(p, nil).Fill(regs, nil, map[string]value.Value{
		"Region":  value.String("us-east-1"),
		"UseFips": value.Null{},
	})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(false), regs[1])
}

func TestFill_ContextReachesProviders(t *testing.T) {
	p := fillerProgram(t)
	regs := p.Template()
	builtins := map[string]BuiltinProvider{
		"env.accountId": func(ctx Context) value.Value { return ctx["accountId"] },
	}
	ctx := Context{"accountId": value.String("777")}

	err := NewRegisterFiller(p, builtins).Fill(regs, ctx, map[string]value.Value{
		"Region": value.String("us-east-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, value.String("777"), regs[2])
}

package bytecode

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/waypost/internal/value"
)

func disasmProgram(t *testing.T) *Program {
	t.Helper()
	a := NewAssembler()
	regs := a.Registers()

	_, err := regs.Allocate(RegisterDef{Name: "Region", Required: true})
	require.NoError(t, err)
	_, err = regs.Allocate(RegisterDef{Name: "UseFips", Default: value.Bool(false)})
	require.NoError(t, err)
	_, err = regs.Allocate(RegisterDef{Name: "AccountId", Builtin: "env.accountId"})
	require.NoError(t, err)
	_, err = regs.Allocate(RegisterDef{Name: "tmp0", Temporary: true})
	require.NoError(t, err)

	a.StartCondition()
	a.Emit(OpTestRegisterIsSet, 0)
	a.Emit(OpReturnValue)

	a.StartCondition()
	a.Emit(OpLoadRegister, 1)
	a.Emit(OpIsTrue)
	a.Emit(OpReturnValue)

	a.StartResult()
	a.Emit(OpLoadConst, a.Const(value.String("https://fips.example.com")))
	a.Emit(OpReturnEndpoint, 0)

	a.StartResult()
	a.Emit(OpLoadRegister, 0)
	a.Emit(OpResolveTemplate, 1, a.Const(value.List{value.String("https://"), value.String(".example.com")}))
	a.Emit(OpReturnEndpoint, 0)

	a.SetBDD([]Node{
		{Condition: 0, High: Ref(1), Low: RefFalse},
		{Condition: 1, High: ResultRef(0), Low: ResultRef(1)},
	}, Ref(0))

	p, err := a.Program()
	require.NoError(t, err)
	return p
}

func TestDisassemble_Golden(t *testing.T) {
	out := Disassemble(disasmProgram(t))
	g := goldie.New(t)
	g.Assert(t, "disasm_basic", []byte(out))
}

func TestDisassemble_Deterministic(t *testing.T) {
	p := disasmProgram(t)
	assert.Equal(t, Disassemble(p), Disassemble(p))

	decoded, err := Decode(Encode(p))
	require.NoError(t, err)
	assert.Equal(t, Disassemble(p), Disassemble(decoded), "decoded programs disassemble identically")
}

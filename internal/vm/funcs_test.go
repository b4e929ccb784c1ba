package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/waypost/internal/bytecode"
	"github.com/roach88/waypost/internal/value"
)

func TestIsValidHostLabel(t *testing.T) {
	tests := []struct {
		label     string
		allowDots bool
		want      bool
	}{
		{"example", false, true},
		{"ex-ample", false, true},
		{"EXAMPLE123", false, true},
		{"-example", false, false},
		{"example.com", false, false},
		{"example.com", true, true},
		{"example..com", true, false},
		{".example.com", true, false},
		{"example.com.", true, false},
		{"ex_ample", false, false},
		{"", false, false},
		{"", true, false},
		{"a.b-c.d", true, true},
		{"a.-b.c", true, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsValidHostLabel(tc.label, tc.allowDots),
			"label=%q allowDots=%t", tc.label, tc.allowDots)
	}

	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	assert.False(t, IsValidHostLabel(string(long), false), "labels cap at 63 characters")
	assert.True(t, IsValidHostLabel(string(long[:63]), false))
}

func TestLinkFunctions_UnregisteredFailsFast(t *testing.T) {
	a := bytecode.NewAssembler()
	a.StartResult()
	a.Emit(bytecode.OpLoadConst, a.Const(value.String("x")))
	a.Emit(bytecode.OpFn1, a.Func("no.such.function", 1))
	a.Emit(bytecode.OpReturnValue)
	a.SetBDD(nil, bytecode.ResultRef(0))
	p, err := a.Program()
	require.NoError(t, err)

	_, err = NewEvaluator(p)
	require.Error(t, err)
	assert.True(t, bytecode.IsFormatError(err))
	assert.Contains(t, err.Error(), "no.such.function")
}

func TestLinkFunctions_ArityMismatchFailsFast(t *testing.T) {
	a := bytecode.NewAssembler()
	a.StartResult()
	a.Emit(bytecode.OpLoadConst, a.Const(value.String("x")))
	a.Emit(bytecode.OpFn1, a.Func("isValidHostLabel", 1)) // table says 1, builtin takes 2
	a.Emit(bytecode.OpReturnValue)
	a.SetBDD(nil, bytecode.ResultRef(0))
	p, err := a.Program()
	require.NoError(t, err)

	_, err = NewEvaluator(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arity")
}

func TestDefaultFuncs_HostLabelCallable(t *testing.T) {
	fns := DefaultFuncs()
	require.Len(t, fns, 1)
	fn := fns[0]
	assert.Equal(t, "isValidHostLabel", fn.Name)
	assert.Equal(t, 2, fn.ArgCount)

	got, err := fn.Impl(nil, []value.Value{value.String("example"), value.Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), got)

	got, err = fn.Impl(nil, []value.Value{value.Int(3), value.Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(false), got, "non-string labels are simply invalid")
}

package bytecode

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/waypost/internal/value"
)

// fullProgram builds a program exercising every table the codec carries.
func fullProgram(t *testing.T) *Program {
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
	a.Emit(OpLoadConstW, a.Const(value.String("https://fips.example.com")))
	a.Emit(OpReturnEndpoint, 0)

	a.StartResult()
	a.Emit(OpLoadConst, a.Const(value.Map{
		"tags": value.List{value.String("a"), value.String("b")},
		"ttl":  value.Int(300),
		"on":   value.Bool(true),
		"none": value.Null{},
	}))
	a.Emit(OpFn1, a.Func("partition", 1))
	a.Emit(OpReturnValue)

	a.SetBDD([]Node{
		{Condition: 0, High: Ref(1), Low: RefFalse},
		{Condition: 1, High: ResultRef(0), Low: ResultRef(1)},
	}, Ref(0))

	p, err := a.Program()
	require.NoError(t, err)
	return p
}

func TestCodec_RoundTripBytesIdentical(t *testing.T) {
	p := fullProgram(t)
	encoded := Encode(p)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, encoded, Encode(decoded), "re-encoding must reproduce the buffer byte for byte")
}

func TestCodec_RoundTripRecoversAllTables(t *testing.T) {
	p := fullProgram(t)
	decoded, err := Decode(Encode(p))
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(p.ConditionOffsets, decoded.ConditionOffsets))
	assert.Empty(t, cmp.Diff(p.ResultOffsets, decoded.ResultOffsets))
	assert.Empty(t, cmp.Diff(p.Registers, decoded.Registers))
	assert.Empty(t, cmp.Diff(p.Functions, decoded.Functions))
	assert.Empty(t, cmp.Diff(p.BDDNodes, decoded.BDDNodes))
	assert.Equal(t, p.BDDRoot, decoded.BDDRoot)
	assert.Equal(t, p.Instructions, decoded.Instructions)

	require.Len(t, decoded.Constants, len(p.Constants))
	for i := range p.Constants {
		assert.True(t, p.Constants[i].Equal(decoded.Constants[i]), "constant %d", i)
	}
}

func TestCodec_HeaderIs44Bytes(t *testing.T) {
	encoded := Encode(fullProgram(t))
	require.GreaterOrEqual(t, len(encoded), headerSize)
	assert.Equal(t, uint32(headerSize), binary.BigEndian.Uint32(encoded[24:]), "first section starts right after the header")
}

func TestDecode_WrongMagic(t *testing.T) {
	encoded := Encode(fullProgram(t))
	encoded[0] = 'X'

	_, err := Decode(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid magic number")
}

func TestDecode_TruncatedHeader(t *testing.T) {
	encoded := Encode(fullProgram(t))
	_, err := Decode(encoded[:headerSize-1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	encoded := Encode(fullProgram(t))
	binary.BigEndian.PutUint16(encoded[4:], 99)

	_, err := Decode(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported bytecode version")
}

func TestDecode_InconsistentOffsets(t *testing.T) {
	encoded := Encode(fullProgram(t))
	// Point the result table before the condition table.
	binary.BigEndian.PutUint32(encoded[28:], headerSize-4)

	_, err := Decode(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid offsets")
}

func TestDecode_OffsetPastBuffer(t *testing.T) {
	encoded := Encode(fullProgram(t))
	binary.BigEndian.PutUint32(encoded[40:], uint32(len(encoded)+1000))

	_, err := Decode(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid offsets")
}

func TestDecode_UnknownConstantTag(t *testing.T) {
	a := NewAssembler()
	a.StartResult()
	a.Emit(OpLoadConst, a.Const(value.String("x")))
	a.Emit(OpReturnValue)
	a.SetBDD(nil, ResultRef(0))
	p, err := a.Program()
	require.NoError(t, err)

	encoded := Encode(p)
	constOff := binary.BigEndian.Uint32(encoded[36:])
	encoded[constOff] = 0x7f

	_, err = Decode(encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown constant type tag")
}

func TestDecode_ConstantNestingLimit(t *testing.T) {
	// Hand-build a constant pool entry of 101 nested single-element lists.
	var nested value.Value = value.String("leaf")
	for i := 0; i <= maxConstantDepth; i++ {
		nested = value.List{nested}
	}
	a := NewAssembler()
	a.StartResult()
	a.Emit(OpLoadConst, a.Const(nested))
	a.Emit(OpReturnValue)
	a.SetBDD(nil, ResultRef(0))
	p, err := a.Program()
	require.NoError(t, err)

	_, err = Decode(Encode(p))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting exceeds depth limit")
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	p := fullProgram(t)
	assert.Equal(t, p.Fingerprint(), p.Fingerprint())

	decoded, err := Decode(Encode(p))
	require.NoError(t, err)
	assert.Equal(t, p.Fingerprint(), decoded.Fingerprint())

	a := NewAssembler()
	a.StartResult()
	a.Emit(OpLoadConst, a.Const(value.String("other")))
	a.Emit(OpReturnValue)
	a.SetBDD(nil, ResultRef(0))
	other, err := a.Program()
	require.NoError(t, err)
	assert.NotEqual(t, p.Fingerprint(), other.Fingerprint())
}

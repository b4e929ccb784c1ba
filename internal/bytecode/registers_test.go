package bytecode

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/waypost/internal/value"
)

func TestAllocator_IndicesFollowAllocationOrder(t *testing.T) {
	a := NewAllocator()
	for i := 0; i < 10; i++ {
		idx, err := a.Allocate(RegisterDef{Name: fmt.Sprintf("param%d", i)})
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
	assert.Equal(t, 10, a.Len())
}

func TestAllocator_DuplicateNameFails(t *testing.T) {
	a := NewAllocator()
	_, err := a.Allocate(RegisterDef{Name: "Region"})
	require.NoError(t, err)

	_, err = a.Allocate(RegisterDef{Name: "Region", Required: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Region"`)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeDuplicateRegister, fe.Code)
}

func TestAllocator_LimitIs256(t *testing.T) {
	a := NewAllocator()
	for i := 0; i < MaxRegisters; i++ {
		_, err := a.Allocate(RegisterDef{Name: fmt.Sprintf("r%d", i)})
		require.NoError(t, err)
	}
	_, err := a.Allocate(RegisterDef{Name: "one-too-many"})
	require.Error(t, err)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeRegisterOverflow, fe.Code)
}

func TestAllocator_GetOrAllocate(t *testing.T) {
	a := NewAllocator()
	idx, err := a.Allocate(RegisterDef{Name: "Bucket", Default: value.String("none")})
	require.NoError(t, err)

	again, err := a.GetOrAllocate("Bucket")
	require.NoError(t, err)
	assert.Equal(t, idx, again)

	tmp, err := a.GetOrAllocate("scratch")
	require.NoError(t, err)
	assert.Equal(t, 1, tmp)
	assert.True(t, a.Defs()[tmp].Temporary)
	assert.Nil(t, a.Defs()[tmp].Default)
}

func TestAllocator_GetUnknownFails(t *testing.T) {
	a := NewAllocator()
	_, err := a.Get("never-allocated")
	require.Error(t, err)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrCodeUnknownRegister, fe.Code)
}

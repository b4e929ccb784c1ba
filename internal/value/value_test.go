package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual_SameKind(t *testing.T) {
	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, String("a").Equal(String("b")))
	assert.True(t, Int(7).Equal(Int(7)))
	assert.False(t, Int(7).Equal(Int(8)))
	assert.True(t, Bool(true).Equal(Bool(true)))
	assert.True(t, Null{}.Equal(Null{}))
}

func TestEqual_CrossKindNeverEqual(t *testing.T) {
	assert.False(t, String("1").Equal(Int(1)))
	assert.False(t, Bool(false).Equal(Null{}))
	assert.False(t, Int(0).Equal(Bool(false)))
}

func TestEqual_Composites(t *testing.T) {
	a := List{String("x"), Int(1), Map{"k": Bool(true)}}
	b := List{String("x"), Int(1), Map{"k": Bool(true)}}
	assert.True(t, a.Equal(b))

	c := List{String("x"), Int(1), Map{"k": Bool(false)}}
	assert.False(t, a.Equal(c))

	assert.False(t, List{}.Equal(List{Null{}}))
	assert.False(t, Map{"a": Int(1)}.Equal(Map{"b": Int(1)}))
}

func TestIsSet(t *testing.T) {
	assert.False(t, IsSet(nil))
	assert.False(t, IsSet(Null{}))
	assert.True(t, IsSet(String("")))
	assert.True(t, IsSet(Bool(false)))
	assert.True(t, IsSet(Int(0)))
	assert.True(t, IsSet(List{}))
}

func TestFromInterface_RoundTrip(t *testing.T) {
	raw := map[string]any{
		"name":  "endpoint",
		"count": 3,
		"flag":  true,
		"items": []any{"a", nil, int64(9)},
	}

	v, err := FromInterface(raw)
	require.NoError(t, err)

	m, ok := v.(Map)
	require.True(t, ok)
	assert.True(t, m["name"].Equal(String("endpoint")))
	assert.True(t, m["count"].Equal(Int(3)))
	assert.True(t, m["flag"].Equal(Bool(true)))
	assert.True(t, m["items"].Equal(List{String("a"), Null{}, Int(9)}))

	back := ToInterface(v)
	again, err := FromInterface(back)
	require.NoError(t, err)
	assert.True(t, v.Equal(again))
}

func TestFromInterface_RejectsUnsupported(t *testing.T) {
	_, err := FromInterface(3.14)
	require.Error(t, err)

	_, err = FromInterface(int64(1) << 40)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "null", Format(Null{}))
	assert.Equal(t, `"x"`, Format(String("x")))
	assert.Equal(t, "Integer[42]", Format(Int(42)))
	assert.Equal(t, "Boolean[true]", Format(Bool(true)))
	assert.Equal(t, "List[2 items]", Format(List{Null{}, Null{}}))
	assert.Equal(t, "Map[1 entries]", Format(Map{"k": Null{}}))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "boom", Stringify(String("boom")))
	assert.Equal(t, "[a, 1]", Stringify(List{String("a"), Int(1)}))
	assert.Equal(t, "{a: 1, b: 2}", Stringify(Map{"b": Int(2), "a": Int(1)}))
}

// Package value defines the runtime value vocabulary of the waypost VM.
//
// Values flow through the constant pool, the register file, and the operand
// stack. The set is deliberately closed: null, string, integer, boolean,
// list, and map. There are no floats - endpoint rules never need them and
// excluding them keeps equality and serialization exact.
package value

import (
	"fmt"
	"sort"
	"strings"
)

// Value is a sealed interface over the six runtime value kinds.
// Only Null, String, Int, Bool, List, and Map implement it.
type Value interface {
	value() // sealed

	// Equal reports deep value equality against another Value.
	// Values of different kinds are never equal.
	Equal(other Value) bool
}

// Null is the absent value. A register holding Null is "unset".
type Null struct{}

func (Null) value() {}

// Equal reports whether other is also Null.
func (Null) Equal(other Value) bool {
	_, ok := other.(Null)
	return ok
}

// String is a UTF-8 string value.
type String string

func (String) value() {}

// Equal reports string equality by contents.
func (s String) Equal(other Value) bool {
	o, ok := other.(String)
	return ok && s == o
}

// Int is a 32-bit integer value. The binary format encodes integers as
// 4-byte big-endian, so the runtime type matches the wire width.
type Int int32

func (Int) value() {}

// Equal reports integer equality.
func (n Int) Equal(other Value) bool {
	o, ok := other.(Int)
	return ok && n == o
}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Equal reports boolean equality.
func (b Bool) Equal(other Value) bool {
	o, ok := other.(Bool)
	return ok && b == o
}

// List is an ordered sequence of values.
type List []Value

func (List) value() {}

// Equal reports element-wise equality with matching length.
func (l List) Equal(other Value) bool {
	o, ok := other.(List)
	if !ok || len(l) != len(o) {
		return false
	}
	for i, v := range l {
		if !v.Equal(o[i]) {
			return false
		}
	}
	return true
}

// Map is a string-keyed collection of values.
type Map map[string]Value

func (Map) value() {}

// Equal reports key-set and per-key value equality.
func (m Map) Equal(other Value) bool {
	o, ok := other.(Map)
	if !ok || len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, present := o[k]
		if !present || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// SortedKeys returns the map's keys in lexicographic order.
// Use this wherever iteration order must be deterministic.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSet reports whether v carries a value: non-nil and not Null.
// This is the single definition of "set" used by ISSET, the register
// test opcodes, and the register filler.
func IsSet(v Value) bool {
	if v == nil {
		return false
	}
	_, isNull := v.(Null)
	return !isNull
}

// Format renders v for diagnostics and error messages. Strings are quoted,
// composites carry their kind so a reader can tell List[0 items] from "".
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return fmt.Sprintf("%q", string(val))
	case Int:
		return fmt.Sprintf("Integer[%d]", int32(val))
	case Bool:
		return fmt.Sprintf("Boolean[%t]", bool(val))
	case List:
		return fmt.Sprintf("List[%d items]", len(val))
	case Map:
		return fmt.Sprintf("Map[%d entries]", len(val))
	default:
		return fmt.Sprintf("unknown[%v]", v)
	}
}

// Stringify renders v as the plain text used by template interpolation and
// RETURN_ERROR messages: strings are unquoted, composites render their
// elements recursively.
func Stringify(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return string(val)
	case Int:
		return fmt.Sprintf("%d", int32(val))
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Stringify(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Map:
		parts := make([]string, 0, len(val))
		for _, k := range val.SortedKeys() {
			parts = append(parts, k+": "+Stringify(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FromInterface converts plain Go data (as produced by YAML/JSON decoding or
// caller parameter maps) into a Value. Supported inputs: nil, string, bool,
// int variants that fit int32, []any, map[string]any, and values that are
// already Values. Anything else is an error.
func FromInterface(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case int:
		return intValue(int64(v))
	case int32:
		return Int(v), nil
	case int64:
		return intValue(v)
	case []any:
		list := make(List, len(v))
		for i, elem := range v {
			converted, err := FromInterface(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = converted
		}
		return list, nil
	case map[string]any:
		m := make(Map, len(v))
		for k, elem := range v {
			converted, err := FromInterface(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			m[k] = converted
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}

func intValue(n int64) (Value, error) {
	if n < -1<<31 || n > 1<<31-1 {
		return nil, fmt.Errorf("integer %d overflows 32 bits", n)
	}
	return Int(int32(n)), nil
}

// ToInterface converts a Value back to plain Go data for JSON output and
// caller-facing property bags.
func ToInterface(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int32(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToInterface(elem)
		}
		return out
	case Map:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToInterface(elem)
		}
		return out
	default:
		return nil
	}
}

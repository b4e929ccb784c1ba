package bytecode

import (
	"encoding/binary"

	"github.com/roach88/waypost/internal/value"
)

// Binary layout, format version 1.
//
// Fixed 44-byte header:
//
//	0   u32 magic "WAYP"
//	4   u16 version
//	6   u16 condition count
//	8   u16 result count
//	10  u16 register count
//	12  u16 constant count
//	14  u16 function count
//	16  u32 BDD node count
//	20  i32 BDD root reference
//	24  u32 condition table offset
//	28  u32 result table offset
//	32  u32 function table offset
//	36  u32 constant pool offset
//	40  u32 BDD table offset
//
// Sections follow in that order. The register table has no offset field: it
// starts immediately after the function table. The instruction stream runs
// from the end of the BDD table to the end of the buffer. All integers are
// big-endian; strings are 16-bit-length-prefixed UTF-8.
const (
	Magic      = 0x57415950 // "WAYP"
	Version    = 1
	headerSize = 44

	bddNodeSize = 12 // three 4-byte ints per node
)

// Constant pool type tags.
const (
	tagNull    = 0
	tagString  = 1
	tagInteger = 2
	tagBoolean = 3
	tagList    = 4
	tagMap     = 5
)

// Encode serializes p into the version-1 binary form.
func Encode(p *Program) []byte {
	condTable := make([]byte, 0, 4*len(p.ConditionOffsets))
	for _, off := range p.ConditionOffsets {
		condTable = binary.BigEndian.AppendUint32(condTable, uint32(off))
	}

	resultTable := make([]byte, 0, 4*len(p.ResultOffsets))
	for _, off := range p.ResultOffsets {
		resultTable = binary.BigEndian.AppendUint32(resultTable, uint32(off))
	}

	var funcTable []byte
	for _, fn := range p.Functions {
		funcTable = appendString(funcTable, fn.Name)
		funcTable = binary.BigEndian.AppendUint16(funcTable, uint16(fn.ArgCount))
	}

	var regTable []byte
	for _, def := range p.Registers {
		regTable = appendString(regTable, def.Name)
		regTable = append(regTable, flag(def.Required), flag(def.Temporary))
		if def.Default != nil {
			regTable = append(regTable, 1)
			regTable = appendConstant(regTable, def.Default)
		} else {
			regTable = append(regTable, 0)
		}
		if def.Builtin != "" {
			regTable = append(regTable, 1)
			regTable = appendString(regTable, def.Builtin)
		} else {
			regTable = append(regTable, 0)
		}
	}

	var constPool []byte
	for _, v := range p.Constants {
		constPool = appendConstant(constPool, v)
	}

	var bddTable []byte
	for _, n := range p.BDDNodes {
		bddTable = binary.BigEndian.AppendUint32(bddTable, uint32(n.Condition))
		bddTable = binary.BigEndian.AppendUint32(bddTable, uint32(n.High))
		bddTable = binary.BigEndian.AppendUint32(bddTable, uint32(n.Low))
	}

	condOff := uint32(headerSize)
	resultOff := condOff + uint32(len(condTable))
	funcOff := resultOff + uint32(len(resultTable))
	constOff := funcOff + uint32(len(funcTable)) + uint32(len(regTable))
	bddOff := constOff + uint32(len(constPool))

	total := int(bddOff) + len(bddTable) + len(p.Instructions)
	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint32(buf, Magic)
	buf = binary.BigEndian.AppendUint16(buf, Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.ConditionOffsets)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.ResultOffsets)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Registers)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Constants)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Functions)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.BDDNodes)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(p.BDDRoot))
	buf = binary.BigEndian.AppendUint32(buf, condOff)
	buf = binary.BigEndian.AppendUint32(buf, resultOff)
	buf = binary.BigEndian.AppendUint32(buf, funcOff)
	buf = binary.BigEndian.AppendUint32(buf, constOff)
	buf = binary.BigEndian.AppendUint32(buf, bddOff)

	buf = append(buf, condTable...)
	buf = append(buf, resultTable...)
	buf = append(buf, funcTable...)
	buf = append(buf, regTable...)
	buf = append(buf, constPool...)
	buf = append(buf, bddTable...)
	buf = append(buf, p.Instructions...)
	return buf
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendConstant(buf []byte, v value.Value) []byte {
	switch val := v.(type) {
	case nil, value.Null:
		return append(buf, tagNull)
	case value.String:
		buf = append(buf, tagString)
		return appendString(buf, string(val))
	case value.Int:
		buf = append(buf, tagInteger)
		return binary.BigEndian.AppendUint32(buf, uint32(int32(val)))
	case value.Bool:
		buf = append(buf, tagBoolean)
		return append(buf, flag(bool(val)))
	case value.List:
		buf = append(buf, tagList)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(val)))
		for _, elem := range val {
			buf = appendConstant(buf, elem)
		}
		return buf
	case value.Map:
		buf = append(buf, tagMap)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(val)))
		for _, k := range val.SortedKeys() {
			buf = appendString(buf, k)
			buf = appendConstant(buf, val[k])
		}
		return buf
	default:
		// The value interface is sealed; this branch is unreachable.
		return append(buf, tagNull)
	}
}

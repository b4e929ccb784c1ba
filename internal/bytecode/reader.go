package bytecode

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/roach88/waypost/internal/value"
)

// maxConstantDepth bounds recursive constant decoding so corrupt or hostile
// input cannot drive unbounded recursion.
const maxConstantDepth = 100

// Decode parses a version-1 binary program. The returned Program is fully
// validated and immutable; decoding failures are FormatErrors.
func Decode(buf []byte) (*Program, error) {
	if len(buf) < headerSize {
		return nil, formatErrorAt(ErrCodeTruncated, len(buf), "bytecode too short: %d bytes, header needs %d", len(buf), headerSize)
	}
	if binary.BigEndian.Uint32(buf[0:]) != Magic {
		return nil, formatErrorAt(ErrCodeBadMagic, 0, "Invalid magic number 0x%08X", binary.BigEndian.Uint32(buf[0:]))
	}
	if v := binary.BigEndian.Uint16(buf[4:]); v != Version {
		return nil, formatErrorAt(ErrCodeBadVersion, 4, "Unsupported bytecode version %d (want %d)", v, Version)
	}

	condCount := int(binary.BigEndian.Uint16(buf[6:]))
	resultCount := int(binary.BigEndian.Uint16(buf[8:]))
	regCount := int(binary.BigEndian.Uint16(buf[10:]))
	constCount := int(binary.BigEndian.Uint16(buf[12:]))
	funcCount := int(binary.BigEndian.Uint16(buf[14:]))
	nodeCount := int(binary.BigEndian.Uint32(buf[16:]))
	root := Ref(int32(binary.BigEndian.Uint32(buf[20:])))

	offsets := [5]int{}
	for i := range offsets {
		offsets[i] = int(binary.BigEndian.Uint32(buf[24+4*i:]))
	}
	prev := headerSize
	for _, off := range offsets {
		if off < prev || off > len(buf) {
			return nil, formatErrorAt(ErrCodeBadOffsets, off, "Invalid offsets: section at %d, previous section ends at %d, buffer is %d bytes", off, prev, len(buf))
		}
		prev = off
	}
	condOff, resultOff, funcOff, constOff, bddOff := offsets[0], offsets[1], offsets[2], offsets[3], offsets[4]

	instrOff := bddOff + nodeCount*bddNodeSize
	if instrOff > len(buf) {
		return nil, formatErrorAt(ErrCodeTruncated, bddOff, "bytecode too short: BDD table of %d nodes overruns the buffer", nodeCount)
	}

	p := &Program{
		Instructions: buf[instrOff:],
		BDDRoot:      root,
	}

	cr := &cursor{buf: buf, pos: condOff}
	p.ConditionOffsets = make([]int32, condCount)
	for i := range p.ConditionOffsets {
		v, err := cr.u32()
		if err != nil {
			return nil, err
		}
		p.ConditionOffsets[i] = int32(v)
	}

	cr.pos = resultOff
	p.ResultOffsets = make([]int32, resultCount)
	for i := range p.ResultOffsets {
		v, err := cr.u32()
		if err != nil {
			return nil, err
		}
		p.ResultOffsets[i] = int32(v)
	}

	cr.pos = funcOff
	p.Functions = make([]FuncDef, funcCount)
	for i := range p.Functions {
		name, err := cr.str()
		if err != nil {
			return nil, err
		}
		argc, err := cr.u16()
		if err != nil {
			return nil, err
		}
		// 0xFFFF marks a variadic entry.
		count := int(argc)
		if argc == 0xffff {
			count = -1
		}
		p.Functions[i] = FuncDef{Name: name, ArgCount: count}
	}

	// The register table starts where the function table ends.
	p.Registers = make([]RegisterDef, regCount)
	for i := range p.Registers {
		def, err := cr.register()
		if err != nil {
			return nil, err
		}
		p.Registers[i] = def
	}
	if cr.pos > constOff {
		return nil, formatErrorAt(ErrCodeBadOffsets, cr.pos, "Invalid offsets: register table overruns the constant pool at %d", constOff)
	}

	cr.pos = constOff
	p.Constants = make([]value.Value, constCount)
	for i := range p.Constants {
		v, err := cr.constant(0)
		if err != nil {
			return nil, err
		}
		p.Constants[i] = v
	}
	if cr.pos > bddOff {
		return nil, formatErrorAt(ErrCodeBadOffsets, cr.pos, "Invalid offsets: constant pool overruns the BDD table at %d", bddOff)
	}

	cr.pos = bddOff
	p.BDDNodes = make([]Node, nodeCount)
	for i := range p.BDDNodes {
		cond, err := cr.u32()
		if err != nil {
			return nil, err
		}
		high, err := cr.u32()
		if err != nil {
			return nil, err
		}
		low, err := cr.u32()
		if err != nil {
			return nil, err
		}
		p.BDDNodes[i] = Node{Condition: int32(cond), High: Ref(int32(high)), Low: Ref(int32(low))}
	}

	if err := p.finalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// cursor is a bounds-checked big-endian reader over the encoded buffer.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) need(n int) error {
	if c.pos+n > len(c.buf) {
		return formatErrorAt(ErrCodeTruncated, c.pos, "bytecode too short: need %d bytes at offset %d, have %d", n, c.pos, len(c.buf)-c.pos)
	}
	return nil
}

func (c *cursor) u8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) str() (string, error) {
	n, err := c.u16()
	if err != nil {
		return "", err
	}
	if err := c.need(int(n)); err != nil {
		return "", err
	}
	s := string(c.buf[c.pos : c.pos+int(n)])
	c.pos += int(n)
	if !utf8.ValidString(s) {
		return "", formatErrorAt(ErrCodeBadConstant, c.pos-int(n), "string is not valid UTF-8")
	}
	return s, nil
}

func (c *cursor) register() (RegisterDef, error) {
	var def RegisterDef
	var err error
	if def.Name, err = c.str(); err != nil {
		return def, err
	}
	required, err := c.u8()
	if err != nil {
		return def, err
	}
	temporary, err := c.u8()
	if err != nil {
		return def, err
	}
	def.Required = required != 0
	def.Temporary = temporary != 0

	hasDefault, err := c.u8()
	if err != nil {
		return def, err
	}
	if hasDefault != 0 {
		if def.Default, err = c.constant(0); err != nil {
			return def, err
		}
	}

	hasBuiltin, err := c.u8()
	if err != nil {
		return def, err
	}
	if hasBuiltin != 0 {
		if def.Builtin, err = c.str(); err != nil {
			return def, err
		}
	}
	return def, nil
}

func (c *cursor) constant(depth int) (value.Value, error) {
	if depth > maxConstantDepth {
		return nil, formatErrorAt(ErrCodeBadConstant, c.pos, "constant nesting exceeds depth limit %d", maxConstantDepth)
	}
	tag, err := c.u8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return value.Null{}, nil
	case tagString:
		s, err := c.str()
		if err != nil {
			return nil, err
		}
		return value.String(s), nil
	case tagInteger:
		v, err := c.u32()
		if err != nil {
			return nil, err
		}
		return value.Int(int32(v)), nil
	case tagBoolean:
		b, err := c.u8()
		if err != nil {
			return nil, err
		}
		return value.Bool(b != 0), nil
	case tagList:
		n, err := c.u16()
		if err != nil {
			return nil, err
		}
		list := make(value.List, n)
		for i := range list {
			if list[i], err = c.constant(depth + 1); err != nil {
				return nil, err
			}
		}
		return list, nil
	case tagMap:
		n, err := c.u16()
		if err != nil {
			return nil, err
		}
		m := make(value.Map, n)
		for i := 0; i < int(n); i++ {
			k, err := c.str()
			if err != nil {
				return nil, err
			}
			if m[k], err = c.constant(depth + 1); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, formatErrorAt(ErrCodeBadConstant, c.pos-1, "unknown constant type tag %d", tag)
	}
}

// Package bytecode defines the waypost compiled-program model: the opcode
// vocabulary, register and constant tables, the BDD node table, the builder
// used by compilers, the binary codec, and a disassembler.
//
// The numeric opcode values, operand widths, and the binary layout emitted
// by Encode are the format-version-1 contract. Jump offsets are 2-byte
// big-endian unsigned, forward only, measured from the byte immediately
// after the offset field.
package bytecode

// Opcode is a single-byte instruction tag.
type Opcode byte

const (
	opInvalid Opcode = iota // 0 reserved so zeroed memory never decodes

	// Stack / constant ops.
	OpLoadConst  // push constant, 1-byte pool index
	OpLoadConstW // push constant, 2-byte pool index

	// Register ops.
	OpLoadRegister
	OpSetRegister
	OpTestRegisterIsSet
	OpTestRegisterNotSet
	OpTestRegisterIsTrue
	OpTestRegisterIsFalse

	// Boolean logic.
	OpNot
	OpIsTrue
	OpIsSet
	OpEquals
	OpStringEquals
	OpBooleanEquals

	// Collection construction.
	OpList0
	OpList1
	OpList2
	OpListN
	OpMap0
	OpMap1
	OpMap2
	OpMap3
	OpMap4
	OpMapN

	// Access.
	OpGetProperty
	OpGetPropertyReg
	OpGetIndex
	OpGetIndexReg

	// String ops.
	OpResolveTemplate
	OpSubstring
	OpURIEncode
	OpSplit
	OpParseURL

	// Function calls.
	OpFn1
	OpFn2
	OpFn3
	OpFn
	OpFnVa

	// Control.
	OpJnnOrPop

	// Termination.
	OpReturnValue
	OpReturnEndpoint
	OpReturnError

	numOpcodes
)

// RETURN_ENDPOINT operand flag bits.
const (
	EndpointPopHeaders    = 1 << 0
	EndpointPopProperties = 1 << 1
)

// opInfo describes one opcode's encoding: mnemonic and the byte width of
// each operand, in instruction order.
type opInfo struct {
	name     string
	operands []int
	jump     bool
}

var opTable = [numOpcodes]opInfo{
	opInvalid:             {name: "INVALID"},
	OpLoadConst:           {name: "LOAD_CONST", operands: []int{1}},
	OpLoadConstW:          {name: "LOAD_CONST_W", operands: []int{2}},
	OpLoadRegister:        {name: "LOAD_REGISTER", operands: []int{1}},
	OpSetRegister:         {name: "SET_REGISTER", operands: []int{1}},
	OpTestRegisterIsSet:   {name: "TEST_REGISTER_ISSET", operands: []int{1}},
	OpTestRegisterNotSet:  {name: "TEST_REGISTER_NOT_SET", operands: []int{1}},
	OpTestRegisterIsTrue:  {name: "TEST_REGISTER_IS_TRUE", operands: []int{1}},
	OpTestRegisterIsFalse: {name: "TEST_REGISTER_IS_FALSE", operands: []int{1}},
	OpNot:                 {name: "NOT"},
	OpIsTrue:              {name: "IS_TRUE"},
	OpIsSet:               {name: "ISSET"},
	OpEquals:              {name: "EQUALS"},
	OpStringEquals:        {name: "STRING_EQUALS"},
	OpBooleanEquals:       {name: "BOOLEAN_EQUALS"},
	OpList0:               {name: "LIST0"},
	OpList1:               {name: "LIST1"},
	OpList2:               {name: "LIST2"},
	OpListN:               {name: "LISTN", operands: []int{1}},
	OpMap0:                {name: "MAP0"},
	OpMap1:                {name: "MAP1"},
	OpMap2:                {name: "MAP2"},
	OpMap3:                {name: "MAP3"},
	OpMap4:                {name: "MAP4"},
	OpMapN:                {name: "MAPN", operands: []int{1}},
	OpGetProperty:         {name: "GET_PROPERTY", operands: []int{2}},
	OpGetPropertyReg:      {name: "GET_PROPERTY_REG", operands: []int{1, 2}},
	OpGetIndex:            {name: "GET_INDEX", operands: []int{1}},
	OpGetIndexReg:         {name: "GET_INDEX_REG", operands: []int{1, 1}},
	OpResolveTemplate:     {name: "RESOLVE_TEMPLATE", operands: []int{1, 2}},
	OpSubstring:           {name: "SUBSTRING", operands: []int{1, 1, 1}},
	OpURIEncode:           {name: "URI_ENCODE"},
	OpSplit:               {name: "SPLIT", operands: []int{1}},
	OpParseURL:            {name: "PARSE_URL"},
	OpFn1:                 {name: "FN1", operands: []int{1}},
	OpFn2:                 {name: "FN2", operands: []int{1}},
	OpFn3:                 {name: "FN3", operands: []int{1}},
	OpFn:                  {name: "FN", operands: []int{2}},
	OpFnVa:                {name: "FN_VA", operands: []int{2, 1}},
	OpJnnOrPop:            {name: "JNN_OR_POP", operands: []int{2}, jump: true},
	OpReturnValue:         {name: "RETURN_VALUE"},
	OpReturnEndpoint:      {name: "RETURN_ENDPOINT", operands: []int{1}},
	OpReturnError:         {name: "RETURN_ERROR"},
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op > opInvalid && op < numOpcodes
}

// String returns the opcode mnemonic, or a hex form for undefined bytes.
func (op Opcode) String() string {
	if op.Valid() {
		return opTable[op].name
	}
	return "OP_0x" + hexByte(byte(op))
}

// OperandWidths returns the byte width of each operand, in order.
// The slice is shared; callers must not mutate it.
func (op Opcode) OperandWidths() []int {
	if !op.Valid() {
		return nil
	}
	return opTable[op].operands
}

// Width returns the full encoded instruction length in bytes, opcode
// included. Undefined opcodes report 1 so a walker can still step.
func (op Opcode) Width() int {
	w := 1
	for _, size := range op.OperandWidths() {
		w += size
	}
	return w
}

// IsJump reports whether the opcode's final operand is a relative forward
// jump offset.
func (op Opcode) IsJump() bool {
	return op.Valid() && opTable[op].jump
}

// IsReturn reports whether the opcode terminates an instruction body.
func (op Opcode) IsReturn() bool {
	return op == OpReturnValue || op == OpReturnEndpoint || op == OpReturnError
}

const hexDigits = "0123456789ABCDEF"

func hexByte(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0f]})
}

package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpDrop  Opcode = 0x00 // discard top of stack
	OpDup   Opcode = 0x01 // duplicate top of stack
	OpSwap  Opcode = 0x02 // exchange the two topmost values
	OpAbort Opcode = 0x03 // deliberate trap for unsupported syntax
)

// Arithmetic
const (
	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14
	OpPow Opcode = 0x15
)

// Bitwise
const (
	OpBitOr              Opcode = 0x20
	OpBitXor             Opcode = 0x21
	OpBitAnd             Opcode = 0x22
	OpShiftLeft          Opcode = 0x23 // <<
	OpShiftRight         Opcode = 0x24 // >>
	OpShiftRightUnsigned Opcode = 0x25 // >>>
)

// Relational, equality and logical
const (
	OpLT          Opcode = 0x30
	OpLTE         Opcode = 0x31
	OpGT          Opcode = 0x32
	OpGTE         Opcode = 0x33
	OpEq          Opcode = 0x34 // ==
	OpNotEq       Opcode = 0x35 // !=
	OpStrictEq    Opcode = 0x36 // ===
	OpStrictNotEq Opcode = 0x37 // !==
	OpLogicalOr   Opcode = 0x38
	OpLogicalAnd  Opcode = 0x39
	OpNot         Opcode = 0x3A
)

// Unary
const (
	OpPositive Opcode = 0x40 // unary +
	OpNeg      Opcode = 0x41 // unary -
	OpBitNot   Opcode = 0x42 // ~
)

// Loads
const (
	OpLdUndefined Opcode = 0x50
	OpLdNull      Opcode = 0x51
	OpLdTrue      Opcode = 0x52
	OpLdFalse     Opcode = 0x53
	OpLdZero      Opcode = 0x54
	OpLdOne       Opcode = 0x55
	OpLdTwo       Opcode = 0x56
	OpLdNaN       Opcode = 0x57
	OpLdInfinity  Opcode = 0x58
	OpLdThis      Opcode = 0x59
)

// Instructions with an 8-byte inline operand
const (
	OpLdValue     Opcode = 0x60 // push constant at pool offset
	OpGetProperty Opcode = 0x61 // pop object, push property named by pool offset
	OpCall        Opcode = 0x62 // call function-table id
)

// Returns
const (
	OpRet Opcode = 0x70 // return top of stack
)

// OpEnd terminates every bytecode stream. It is reserved and is never a
// valid instruction.
const OpEnd Opcode = 0xFF

// OperandSize is the width of every inline operand.
const OperandSize = 8

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // mnemonic
	OperandBytes int    // number of inline operand bytes
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Stack operations
	OpDrop:  {"DROP", 0},
	OpDup:   {"DUP", 0},
	OpSwap:  {"SWAP", 0},
	OpAbort: {"ABORT", 0},

	// Arithmetic: pop 2, push 1
	OpAdd: {"ADD", 0},
	OpSub: {"SUB", 0},
	OpMul: {"MUL", 0},
	OpDiv: {"DIV", 0},
	OpMod: {"MOD", 0},
	OpPow: {"POW", 0},

	// Bitwise
	OpBitOr:              {"BIT_OR", 0},
	OpBitXor:             {"BIT_XOR", 0},
	OpBitAnd:             {"BIT_AND", 0},
	OpShiftLeft:          {"SHIFT_LEFT", 0},
	OpShiftRight:         {"SHIFT_RIGHT", 0},
	OpShiftRightUnsigned: {"SHIFT_RIGHT_UNSIGNED", 0},

	// Relational / logical
	OpLT:          {"LT", 0},
	OpLTE:         {"LTE", 0},
	OpGT:          {"GT", 0},
	OpGTE:         {"GTE", 0},
	OpEq:          {"EQ", 0},
	OpNotEq:       {"NOT_EQ", 0},
	OpStrictEq:    {"STRICT_EQ", 0},
	OpStrictNotEq: {"STRICT_NOT_EQ", 0},
	OpLogicalOr:   {"LOGICAL_OR", 0},
	OpLogicalAnd:  {"LOGICAL_AND", 0},
	OpNot:         {"NOT", 0},

	// Unary
	OpPositive: {"POSITIVE", 0},
	OpNeg:      {"NEG", 0},
	OpBitNot:   {"BIT_NOT", 0},

	// Loads
	OpLdUndefined: {"LD_UNDEFINED", 0},
	OpLdNull:      {"LD_NULL", 0},
	OpLdTrue:      {"LD_TRUE", 0},
	OpLdFalse:     {"LD_FALSE", 0},
	OpLdZero:      {"LD_ZERO", 0},
	OpLdOne:       {"LD_ONE", 0},
	OpLdTwo:       {"LD_TWO", 0},
	OpLdNaN:       {"LD_NAN", 0},
	OpLdInfinity:  {"LD_INFINITY", 0},
	OpLdThis:      {"LD_THIS", 0},

	// Inline operand
	OpLdValue:     {"LD_VALUE", OperandSize},
	OpGetProperty: {"GET_PROPERTY", OperandSize},
	OpCall:        {"CALL", OperandSize},

	// Returns
	OpRet: {"RET", 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	if op == OpEnd {
		return OpcodeInfo{Name: "END"}
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a real instruction.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// Width returns the full encoded size of the instruction.
func (op Opcode) Width() int {
	return 1 + op.OperandBytes()
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	if op.OperandBytes() != 0 {
		panic(fmt.Sprintf("Emit: %s takes an operand", op.Name()))
	}
	b.bytes = append(b.bytes, byte(op))
}

// EmitRaw appends a raw byte to the bytecode.
func (b *BytecodeBuilder) EmitRaw(data byte) {
	b.bytes = append(b.bytes, data)
}

// EmitOperand appends an opcode with its 8-byte operand (little-endian).
func (b *BytecodeBuilder) EmitOperand(op Opcode, operand uint64) {
	if op.OperandBytes() != OperandSize {
		panic(fmt.Sprintf("EmitOperand: %s takes no operand", op.Name()))
	}
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.LittleEndian.AppendUint64(b.bytes, operand)
}

// EmitEnd appends the stream terminator.
func (b *BytecodeBuilder) EmitEnd() {
	b.bytes = append(b.bytes, byte(OpEnd))
}

// ---------------------------------------------------------------------------
// Bytecode reader for disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for interpretation or disassembly.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

// ReadUint64 reads an 8-byte operand (little-endian).
func (r *BytecodeReader) ReadUint64() uint64 {
	if r.pos+8 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return v
}

// Remaining returns the number of unread bytes.
func (r *BytecodeReader) Remaining() int {
	return len(r.bytes) - r.pos
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.pos += n
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at the reader's position as
// "offset | mnemonic | hex bytes" and advances past it.
func DisassembleInstruction(r *BytecodeReader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	width := op.OperandBytes()
	if width > r.Remaining() {
		width = r.Remaining()
	}
	raw := r.bytes[pos : r.pos+width]
	r.Skip(width)
	return fmt.Sprintf("%04d | %-20s | % x", pos, op.Name(), raw)
}

// Disassemble returns a full disassembly of bytecode, stopping after the
// terminator.
func Disassemble(bc []byte) string {
	r := NewBytecodeReader(bc)
	var lines []string
	for r.HasMore() {
		end := Opcode(bc[r.Position()]) == OpEnd
		lines = append(lines, DisassembleInstruction(r))
		if end {
			break
		}
	}
	return strings.Join(lines, "\n")
}

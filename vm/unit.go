package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// ---------------------------------------------------------------------------
// Compiled Unit
// ---------------------------------------------------------------------------

// Unit is a compiled bytecode unit. Data holds four consecutive regions:
//
//	[0, ConstantPoolOffset)            bytecode
//	[ConstantPoolOffset, ScopeOffset)  constant pool
//	[ScopeOffset, MapOffset)           scope descriptors
//	[MapOffset, len(Data))             source map
//
// Inline operands of LD_VALUE and GET_PROPERTY are byte offsets into the
// constant pool region.
type Unit struct {
	ConstantPoolOffset uint64
	ScopeOffset        uint64
	MapOffset          uint64
	Data               []byte
}

// unitHeaderSize is the encoded size of the three offsets.
const unitHeaderSize = 24

// Constant pool entry tags.
const (
	constNumber byte = 0x01 // tag, float64 bits
	constString byte = 0x02 // tag, uint32 code-unit count, UTF-16LE code units
)

// sourceMapEntrySize is one (offset, line, column) triple of uint32s.
const sourceMapEntrySize = 12

// Validate checks that the offsets are monotonic and inside Data.
func (u *Unit) Validate() error {
	n := uint64(len(u.Data))
	if u.ConstantPoolOffset > u.ScopeOffset || u.ScopeOffset > u.MapOffset || u.MapOffset > n {
		return fmt.Errorf("offsets %d/%d/%d over %d bytes: %w",
			u.ConstantPoolOffset, u.ScopeOffset, u.MapOffset, n, ErrCorruptUnit)
	}
	if (n-u.MapOffset)%sourceMapEntrySize != 0 {
		return fmt.Errorf("source map length %d: %w", n-u.MapOffset, ErrCorruptUnit)
	}
	return nil
}

// Code returns the bytecode region.
func (u *Unit) Code() []byte { return u.Data[:u.ConstantPoolOffset] }

// ConstantPool returns the constant pool region.
func (u *Unit) ConstantPool() []byte { return u.Data[u.ConstantPoolOffset:u.ScopeOffset] }

// ScopeRegion returns the scope descriptor region.
func (u *Unit) ScopeRegion() []byte { return u.Data[u.ScopeOffset:u.MapOffset] }

// SourceMap returns the raw source map region.
func (u *Unit) SourceMap() []byte { return u.Data[u.MapOffset:] }

// Disassemble renders the bytecode region.
func (u *Unit) Disassemble() string { return Disassemble(u.Code()) }

// Constant decodes the constant-pool entry at offset into a fresh value.
func (u *Unit) Constant(offset uint64) (*Value, error) {
	pool := u.ConstantPool()
	if offset >= uint64(len(pool)) {
		return nil, fmt.Errorf("constant offset %d past pool of %d bytes: %w", offset, len(pool), ErrCorruptUnit)
	}
	entry := pool[offset:]
	switch entry[0] {
	case constNumber:
		if len(entry) < 9 {
			return nil, fmt.Errorf("truncated number constant at %d: %w", offset, ErrCorruptUnit)
		}
		return NewNumber(math.Float64frombits(binary.LittleEndian.Uint64(entry[1:]))), nil
	case constString:
		if len(entry) < 5 {
			return nil, fmt.Errorf("truncated string constant at %d: %w", offset, ErrCorruptUnit)
		}
		count := int(binary.LittleEndian.Uint32(entry[1:]))
		body := entry[5:]
		if len(body) < 2*count {
			return nil, fmt.Errorf("truncated string constant at %d: %w", offset, ErrCorruptUnit)
		}
		units := make([]uint16, count)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(body[2*i:])
		}
		return &Value{kind: KindString, str: units}, nil
	default:
		return nil, fmt.Errorf("unknown constant tag 0x%02x at %d: %w", entry[0], offset, ErrCorruptUnit)
	}
}

// SourcePosition maps a bytecode offset to the line and column of the node
// that produced the nearest preceding instruction.
func (u *Unit) SourcePosition(offset int) (line, column uint32, ok bool) {
	m := u.SourceMap()
	for i := 0; i+sourceMapEntrySize <= len(m); i += sourceMapEntrySize {
		at := binary.LittleEndian.Uint32(m[i:])
		if int(at) > offset {
			break
		}
		line = binary.LittleEndian.Uint32(m[i+4:])
		column = binary.LittleEndian.Uint32(m[i+8:])
		ok = true
	}
	return line, column, ok
}

// MarshalBinary encodes the unit as three little-endian uint64 offsets
// followed by Data.
func (u *Unit) MarshalBinary() ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, unitHeaderSize+len(u.Data))
	buf = binary.LittleEndian.AppendUint64(buf, u.ConstantPoolOffset)
	buf = binary.LittleEndian.AppendUint64(buf, u.ScopeOffset)
	buf = binary.LittleEndian.AppendUint64(buf, u.MapOffset)
	return append(buf, u.Data...), nil
}

// UnmarshalBinary decodes the layout written by MarshalBinary.
func (u *Unit) UnmarshalBinary(data []byte) error {
	if len(data) < unitHeaderSize {
		return fmt.Errorf("unit header needs %d bytes, have %d: %w", unitHeaderSize, len(data), ErrCorruptUnit)
	}
	u.ConstantPoolOffset = binary.LittleEndian.Uint64(data[0:])
	u.ScopeOffset = binary.LittleEndian.Uint64(data[8:])
	u.MapOffset = binary.LittleEndian.Uint64(data[16:])
	u.Data = append([]byte(nil), data[unitHeaderSize:]...)
	return u.Validate()
}

// ---------------------------------------------------------------------------
// UnitBuilder
// ---------------------------------------------------------------------------

// UnitBuilder assembles bytecode, constants and source positions into a
// Unit. Constants are deduplicated.
type UnitBuilder struct {
	code    *BytecodeBuilder
	pool    []byte
	numbers map[uint64]uint64
	strings map[string]uint64
	srcmap  []byte
}

// NewUnitBuilder creates an empty builder.
func NewUnitBuilder() *UnitBuilder {
	return &UnitBuilder{
		code:    NewBytecodeBuilder(),
		numbers: make(map[uint64]uint64),
		strings: make(map[string]uint64),
	}
}

// Code exposes the underlying bytecode builder.
func (b *UnitBuilder) Code() *BytecodeBuilder { return b.code }

// Emit appends an instruction without operand.
func (b *UnitBuilder) Emit(op Opcode) { b.code.Emit(op) }

// EmitOperand appends an instruction with its inline operand.
func (b *UnitBuilder) EmitOperand(op Opcode, operand uint64) { b.code.EmitOperand(op, operand) }

// EmitEnd appends the stream terminator.
func (b *UnitBuilder) EmitEnd() { b.code.EmitEnd() }

// AddNumber interns a number constant and returns its pool offset.
func (b *UnitBuilder) AddNumber(f float64) uint64 {
	bits := math.Float64bits(f)
	if off, ok := b.numbers[bits]; ok {
		return off
	}
	off := uint64(len(b.pool))
	b.pool = append(b.pool, constNumber)
	b.pool = binary.LittleEndian.AppendUint64(b.pool, bits)
	b.numbers[bits] = off
	return off
}

// AddString interns a string constant and returns its pool offset.
func (b *UnitBuilder) AddString(s string) uint64 {
	if off, ok := b.strings[s]; ok {
		return off
	}
	units := utf16.Encode([]rune(s))
	off := uint64(len(b.pool))
	b.pool = append(b.pool, constString)
	b.pool = binary.LittleEndian.AppendUint32(b.pool, uint32(len(units)))
	for _, cu := range units {
		b.pool = binary.LittleEndian.AppendUint16(b.pool, cu)
	}
	b.strings[s] = off
	return off
}

// Mark records that the next instruction comes from line:column.
func (b *UnitBuilder) Mark(line, column uint32) {
	at := uint32(b.code.Len())
	if n := len(b.srcmap); n >= sourceMapEntrySize {
		if binary.LittleEndian.Uint32(b.srcmap[n-sourceMapEntrySize:]) == at {
			b.srcmap = b.srcmap[:n-sourceMapEntrySize]
		}
	}
	b.srcmap = binary.LittleEndian.AppendUint32(b.srcmap, at)
	b.srcmap = binary.LittleEndian.AppendUint32(b.srcmap, line)
	b.srcmap = binary.LittleEndian.AppendUint32(b.srcmap, column)
}

// Build lays the regions out into a Unit. The scope region is empty.
func (b *UnitBuilder) Build() *Unit {
	code := b.code.Bytes()
	data := make([]byte, 0, len(code)+len(b.pool)+len(b.srcmap))
	data = append(data, code...)
	data = append(data, b.pool...)
	cp := uint64(len(code))
	scope := cp + uint64(len(b.pool))
	data = append(data, b.srcmap...)
	return &Unit{
		ConstantPoolOffset: cp,
		ScopeOffset:        scope,
		MapOffset:          scope,
		Data:               data,
	}
}

package hash

import (
	"encoding/binary"
	"math"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen hashing AST.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (uint16=2B, uint32=4B, int64=8B)
//   - Floats: IEEE 754 big-endian 8B; every NaN is written as the same bits
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Child nodes: serialized inline (flat)
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeUint16(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeInt(v int) {
	s.buf = binary.BigEndian.AppendUint64(s.buf, uint64(int64(v)))
}

func (s *serializer) writeFloat64(v float64) {
	if math.IsNaN(v) {
		v = math.NaN()
	}
	s.buf = binary.BigEndian.AppendUint64(s.buf, math.Float64bits(v))
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeNodes(nodes []HNode) {
	s.writeUint32(uint32(len(nodes)))
	for _, n := range nodes {
		s.serializeNode(n)
	}
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HNumber:
		s.writeByte(TagNumber)
		s.writeFloat64(n.Value)

	case *HString:
		s.writeByte(TagString)
		s.writeString(n.Value)

	case *HBool:
		s.writeByte(TagBool)
		s.writeBool(n.Value)

	case *HNull:
		s.writeByte(TagNull)

	case *HThis:
		s.writeByte(TagThis)

	case *HLocalRef:
		s.writeByte(TagLocalRef)
		s.writeUint16(n.ScopeDepth)
		s.writeUint16(n.SlotIndex)

	case *HFreeRef:
		s.writeByte(TagFreeRef)
		s.writeString(n.Name)

	case *HBinary:
		s.writeByte(TagBinary)
		s.writeString(n.Op)
		s.serializeNode(n.Left)
		s.serializeNode(n.Right)

	case *HUnary:
		s.writeByte(TagUnary)
		s.writeString(n.Op)
		s.serializeNode(n.Operand)

	case *HPostfix:
		s.writeByte(TagPostfix)
		s.writeString(n.Op)
		s.serializeNode(n.Operand)

	case *HSequence:
		s.writeByte(TagSequence)
		s.serializeNode(n.Left)
		s.serializeNode(n.Right)

	case *HAssignment:
		s.writeByte(TagAssignment)
		s.serializeNode(n.Target)
		s.serializeNode(n.Value)

	case *HMember:
		s.writeByte(TagMember)
		s.serializeNode(n.Object)
		s.writeString(n.Property)

	case *HComputedMember:
		s.writeByte(TagComputedMember)
		s.serializeNode(n.Object)
		s.serializeNode(n.Property)

	case *HConditional:
		s.writeByte(TagConditional)
		s.serializeNode(n.Test)
		s.serializeNode(n.Consequent)
		s.serializeNode(n.Alternate)

	case *HCall:
		s.writeByte(TagCall)
		s.serializeNode(n.Callee)
		s.writeNodes(n.Arguments)

	case *HFunctionCall:
		s.writeByte(TagFunctionCall)
		s.writeUint32(n.FunctionID)

	case *HFunction:
		s.writeByte(TagFunction)
		s.writeInt(n.Arity)
		s.writeBool(n.Named)
		s.writeNodes(n.Statements)

	case *HExprStmt:
		s.writeByte(TagExprStmt)
		s.serializeNode(n.Expr)

	case *HBlock:
		s.writeByte(TagBlock)
		s.writeNodes(n.Statements)

	case *HEmpty:
		s.writeByte(TagEmpty)

	case *HProgram:
		s.writeByte(TagProgram)
		s.writeNodes(n.Statements)

	default:
		s.writeByte(TagNull)
	}
}

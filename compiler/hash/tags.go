package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the hashing AST serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// all previously computed content hashes and every persisted unit cache
// keyed by them.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// AST node type tags. Each tag uniquely identifies a node kind in the
// serialized byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Literal values
	TagNumber byte = 0x01
	TagString byte = 0x02
	TagBool   byte = 0x03
	TagNull   byte = 0x04
	TagThis   byte = 0x05

	// Reserved 0x06-0x0A

	// Name references
	TagLocalRef byte = 0x0B // de Bruijn indexed
	TagFreeRef  byte = 0x0D // unbound name, kept verbatim

	// Expressions
	TagBinary         byte = 0x10
	TagUnary          byte = 0x11
	TagPostfix        byte = 0x12
	TagSequence       byte = 0x13
	TagAssignment     byte = 0x14
	TagMember         byte = 0x15
	TagComputedMember byte = 0x16
	TagConditional    byte = 0x17
	TagCall           byte = 0x18
	TagFunctionCall   byte = 0x19
	TagFunction       byte = 0x1A

	// Statements / structure
	TagExprStmt byte = 0x1C
	TagBlock    byte = 0x1D
	TagEmpty    byte = 0x1E
	TagProgram  byte = 0x1F

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagNumber, TagString, TagBool, TagNull, TagThis,
	TagLocalRef, TagFreeRef,
	TagBinary, TagUnary, TagPostfix, TagSequence, TagAssignment,
	TagMember, TagComputedMember, TagConditional, TagCall, TagFunctionCall,
	TagFunction,
	TagExprStmt, TagBlock, TagEmpty, TagProgram,
}

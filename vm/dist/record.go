// Package dist stores compiled units outside the process. Units are encoded
// as canonical CBOR records keyed by the content hash of the source they
// were compiled from, and may be kept in a SQLite database between runs.
package dist

// FormatVersion is bumped whenever the bytecode or constant pool encoding
// changes. Records written under another version are treated as misses.
const FormatVersion byte = 1

// Record is the persisted form of one compiled unit.
type Record struct {
	SourceHash         [32]byte `cbor:"1,keyasint"` // hash of the compiled source
	UnitHash           [32]byte `cbor:"2,keyasint"` // hash of the unit's binary layout
	Version            byte     `cbor:"3,keyasint"`
	ConstantPoolOffset uint64   `cbor:"4,keyasint"`
	ScopeOffset        uint64   `cbor:"5,keyasint"`
	MapOffset          uint64   `cbor:"6,keyasint"`
	Data               []byte   `cbor:"7,keyasint"`
}

// Bundle groups records for bulk export and import of a cache.
type Bundle struct {
	Version byte     `cbor:"1,keyasint"`
	Records []Record `cbor:"2,keyasint"`
}

package dist

import (
	"fmt"

	"github.com/chazu/waterscript/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// RecordFromUnit builds the record for a unit compiled from the source
// identified by sourceHash.
func RecordFromUnit(sourceHash [32]byte, u *vm.Unit) (*Record, error) {
	uh, err := vm.HashUnit(u)
	if err != nil {
		return nil, fmt.Errorf("dist: hash unit: %w", err)
	}
	return &Record{
		SourceHash:         sourceHash,
		UnitHash:           uh,
		Version:            FormatVersion,
		ConstantPoolOffset: u.ConstantPoolOffset,
		ScopeOffset:        u.ScopeOffset,
		MapOffset:          u.MapOffset,
		Data:               u.Data,
	}, nil
}

// Unit rebuilds the unit carried by r and checks it against the recorded
// unit hash.
func (r *Record) Unit() (*vm.Unit, error) {
	if r.Version != FormatVersion {
		return nil, fmt.Errorf("dist: record version %d, want %d", r.Version, FormatVersion)
	}
	u := &vm.Unit{
		ConstantPoolOffset: r.ConstantPoolOffset,
		ScopeOffset:        r.ScopeOffset,
		MapOffset:          r.MapOffset,
		Data:               r.Data,
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("dist: %w", err)
	}
	computed, err := vm.HashUnit(u)
	if err != nil {
		return nil, fmt.Errorf("dist: hash unit: %w", err)
	}
	if computed != r.UnitHash {
		return nil, fmt.Errorf("dist: hash mismatch: declared %x, computed %x", r.UnitHash, computed)
	}
	return u, nil
}

// MarshalRecord serializes a Record to CBOR bytes.
func MarshalRecord(r *Record) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalRecord deserializes a Record from CBOR bytes.
func UnmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal record: %w", err)
	}
	return &r, nil
}

// MarshalUnit encodes u, compiled from sourceHash, as a CBOR record.
func MarshalUnit(sourceHash [32]byte, u *vm.Unit) ([]byte, error) {
	r, err := RecordFromUnit(sourceHash, u)
	if err != nil {
		return nil, err
	}
	return MarshalRecord(r)
}

// UnmarshalUnit decodes and verifies a CBOR record, returning the source
// hash it was stored under and the unit.
func UnmarshalUnit(data []byte) ([32]byte, *vm.Unit, error) {
	r, err := UnmarshalRecord(data)
	if err != nil {
		return [32]byte{}, nil, err
	}
	u, err := r.Unit()
	if err != nil {
		return [32]byte{}, nil, err
	}
	return r.SourceHash, u, nil
}

// MarshalBundle serializes a Bundle to CBOR bytes.
func MarshalBundle(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// UnmarshalBundle deserializes a Bundle from CBOR bytes.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("dist: unmarshal bundle: %w", err)
	}
	return &b, nil
}

// ExportStore bundles every unit in store.
func ExportStore(store *vm.ContentStore) (*Bundle, error) {
	b := &Bundle{Version: FormatVersion}
	for _, h := range store.Hashes() {
		u, ok := store.LookupUnit(h)
		if !ok {
			continue
		}
		r, err := RecordFromUnit(h, u)
		if err != nil {
			return nil, err
		}
		b.Records = append(b.Records, *r)
	}
	return b, nil
}

// ImportBundle verifies each record and indexes it in store. It returns the
// number of units accepted; records that fail verification are skipped and
// reported in the error.
func ImportBundle(b *Bundle, store *vm.ContentStore) (int, error) {
	accepted := 0
	var firstErr error
	for i := range b.Records {
		u, err := b.Records[i].Unit()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		store.IndexUnit(b.Records[i].SourceHash, u)
		accepted++
	}
	return accepted, firstErr
}

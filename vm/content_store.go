package vm

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// ContentStore: content-addressed index for compiled units
// ---------------------------------------------------------------------------

// ContentStore indexes compiled units by a content hash of the source they
// were compiled from. It is the in-process compile cache; persistent stores
// in vm/dist sit behind it.
type ContentStore struct {
	mu    sync.RWMutex
	units map[[32]byte]*Unit
}

// NewContentStore creates an empty content store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		units: make(map[[32]byte]*Unit),
	}
}

// IndexUnit adds a unit under h. A zero hash or nil unit is silently ignored.
func (cs *ContentStore) IndexUnit(h [32]byte, u *Unit) {
	if h == ([32]byte{}) || u == nil {
		return
	}
	cs.mu.Lock()
	cs.units[h] = u
	cs.mu.Unlock()
}

// LookupUnit returns the unit indexed under h.
func (cs *ContentStore) LookupUnit(h [32]byte) (*Unit, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	u, ok := cs.units[h]
	return u, ok
}

// HasHash returns true if the store holds a unit for h.
func (cs *ContentStore) HasHash(h [32]byte) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.units[h]
	return ok
}

// Evict drops the unit indexed under h.
func (cs *ContentStore) Evict(h [32]byte) {
	cs.mu.Lock()
	delete(cs.units, h)
	cs.mu.Unlock()
}

// Hashes returns every indexed hash in ascending byte order.
func (cs *ContentStore) Hashes() [][32]byte {
	cs.mu.RLock()
	hashes := make([][32]byte, 0, len(cs.units))
	for h := range cs.units {
		hashes = append(hashes, h)
	}
	cs.mu.RUnlock()
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})
	return hashes
}

// UnitCount returns the number of indexed units.
func (cs *ContentStore) UnitCount() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.units)
}

// HashUnit computes the SHA-256 of a unit's binary layout. It identifies the
// compiled artifact itself, as opposed to the source it came from.
func HashUnit(u *Unit) ([32]byte, error) {
	data, err := u.MarshalBinary()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

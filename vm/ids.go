package vm

import "sync/atomic"

// Process-wide id counters. Ids are unique across every context tree, so the
// counters live outside any single Context. Counting starts at 1 so that a
// zero id always means "unset".
var (
	contextIDs atomic.Uint64
	tableIDs   atomic.Uint32
	symbolIDs  atomic.Uint32
)

func nextContextID() uint64 { return contextIDs.Add(1) }
func nextTableID() uint32   { return tableIDs.Add(1) }
func nextSymbolID() uint32  { return symbolIDs.Add(1) }

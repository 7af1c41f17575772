package hash

import (
	"crypto/sha256"

	"github.com/chazu/waterscript/compiler"
)

// HashNode computes the SHA-256 content hash of a program, function
// expression or any other compiler node.
//
// The hash is computed over a deterministic serialization of the node's
// normalized AST. Two nodes that differ only in source layout, grouping
// parentheses or parameter names produce the same hash, so the hash is a
// sound key for caching the compiled unit.
func HashNode(node compiler.Node) [32]byte {
	return sha256.Sum256(Serialize(Normalize(node)))
}

// Package vm implements the WaterScript runtime core.
//
// This package contains:
//   - Reference-counted tagged values
//   - The context tree, with fork, and its scope chain and data stack
//   - The two-level property table store
//   - The opcode table, compiled unit layout and disassembler
//   - The stack-machine executor (Thread)
//   - Lazily compiled functions
package vm

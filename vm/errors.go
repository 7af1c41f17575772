package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error classes
// ---------------------------------------------------------------------------

// Sentinel errors for script-level failures. These stop a Thread cleanly but
// are not contract violations of the embedding code.
var (
	ErrInvalidOperand = errors.New("invalid operand")
	ErrTypeError      = errors.New("type error")
	ErrNotCallable    = errors.New("value is not callable")
	ErrCorruptUnit    = errors.New("corrupt compiled unit")
	ErrStackOverflow  = errors.New("call stack overflow")
	ErrThreadFinished = errors.New("thread already finished")
)

// FatalError is the panic payload for violations of the runtime's contract:
// over-releasing, destroying a live context, mutating a forked context,
// popping an empty data stack and the like. It is raised with panic and is
// never returned as an ordinary error.
type FatalError struct {
	Op  string // operation that detected the violation, e.g. "context.pop"
	Msg string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %s", e.Op, e.Msg)
}

// fatalf aborts the current operation with a *FatalError.
func fatalf(op, format string, args ...any) {
	panic(&FatalError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// AsFatal reports whether a recovered panic value is a *FatalError.
func AsFatal(recovered any) (*FatalError, bool) {
	switch r := recovered.(type) {
	case *FatalError:
		return r, true
	case error:
		var fe *FatalError
		if errors.As(r, &fe) {
			return fe, true
		}
	}
	return nil, false
}

// TrapError reports an opcode the executor has no implementation for,
// including the deliberate Abort emitted by the compiler for unsupported
// syntax. Execution stops at the trapping instruction.
type TrapError struct {
	Opcode Opcode
	Offset int
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("unimplemented opcode `%s` at %04d", e.Opcode.Name(), e.Offset)
}

// Suspension is returned by Thread.Run when the thread reached a call to a
// function that has not been compiled yet. It is a yield, not a failure: the
// thread keeps its cursor on the call and may be run again once the function
// is installed.
type Suspension struct {
	Function *Function
	Offset   int
}

func (s *Suspension) Error() string {
	return fmt.Sprintf("suspended at %04d: function %d is not compiled", s.Offset, s.Function.ID())
}

// IsSuspension reports whether err is a *Suspension and returns it.
func IsSuspension(err error) (*Suspension, bool) {
	var s *Suspension
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Function: a lazily compiled body
// ---------------------------------------------------------------------------

// Function is a callable body bound to the scope it was defined in. It starts
// uncompiled, holding whatever source the compiler needs (usually an AST
// node), and is compiled at most once.
//
// Compile requests coalesce: the first caller to RequestCompile wins and is
// expected to schedule the compile; later callers park a resume callback
// with Await and are woken by Install or Fail.
type Function struct {
	refs atomic.Int32
	id   uint32

	scope *Scope

	mu       sync.Mutex
	compiled bool
	enqueued bool
	source   any
	unit     *Unit
	err      error
	waiters  []func()
}

// NewFunction creates an uncompiled function closing over scope.
func NewFunction(scope *Scope, source any) *Function {
	scope.retain()
	return &Function{scope: scope, source: source}
}

// NewCompiledFunction creates a function whose unit is already available.
func NewCompiledFunction(scope *Scope, unit *Unit) *Function {
	fn := NewFunction(scope, nil)
	fn.compiled = true
	fn.unit = unit
	return fn
}

// ID returns the function-table id assigned by Context.AddFunction.
func (fn *Function) ID() uint32 { return fn.id }

// Scope returns the scope the function closes over.
func (fn *Function) Scope() *Scope { return fn.scope }

// Source returns the source the function is compiled from.
func (fn *Function) Source() any {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.source
}

// Retain increments the ownership count.
func (fn *Function) Retain() { fn.refs.Add(1) }

// Release decrements the ownership count, dropping the closed-over scope at
// zero. Releasing at or below zero is fatal.
func (fn *Function) Release() {
	n := fn.refs.Add(-1)
	if n < 0 {
		fatalf("function.release", "release of unowned function %d", fn.id)
	}
	if n == 0 {
		fn.scope.release()
		fn.scope = nil
	}
}

// Compiled reports whether a unit has been installed.
func (fn *Function) Compiled() bool {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.compiled
}

// Unit returns the installed unit, or nil.
func (fn *Function) Unit() *Unit {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.unit
}

// Err returns the error from a failed compile, or nil.
func (fn *Function) Err() error {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.err
}

// RequestCompile marks the function as enqueued for compilation. It returns
// true only for the first caller; that caller must submit the compile.
func (fn *Function) RequestCompile() bool {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	if fn.compiled || fn.enqueued || fn.err != nil {
		return false
	}
	fn.enqueued = true
	return true
}

// Await parks resume until the function is compiled. It returns false, and
// parks nothing, when the function is already compiled or has failed.
func (fn *Function) Await(resume func()) bool {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	if fn.compiled || fn.err != nil {
		return false
	}
	fn.waiters = append(fn.waiters, resume)
	return true
}

// Install stores the compiled unit and returns the parked waiters for the
// caller to resume. Installing twice is fatal.
func (fn *Function) Install(unit *Unit) []func() {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	if fn.compiled {
		fatalf("function.install", "function %d is already compiled", fn.id)
	}
	fn.compiled = true
	fn.unit = unit
	fn.source = nil
	waiters := fn.waiters
	fn.waiters = nil
	return waiters
}

// Fail records a compile failure and returns the parked waiters. Resumed
// callers observe the failure through Err.
func (fn *Function) Fail(err error) []func() {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	fn.err = err
	fn.enqueued = false
	waiters := fn.waiters
	fn.waiters = nil
	return waiters
}

package vm

import "sync/atomic"

// ---------------------------------------------------------------------------
// Scope chain
// ---------------------------------------------------------------------------

// Scope is one lexical frame of variable bindings. Bindings live in a
// property table so a forked context can shadow them without touching the
// parent's view. Scopes are shared between a context and its forks and are
// reference counted.
type Scope struct {
	refs         atomic.Int32
	functionBody bool
	table        Table
	parent       *Scope // owned reference
}

func (s *Scope) retain() {
	if s != nil {
		s.refs.Add(1)
	}
}

func (s *Scope) release() {
	if s == nil {
		return
	}
	n := s.refs.Add(-1)
	if n < 0 {
		fatalf("scope.release", "release of an unowned scope")
	}
	if n == 0 {
		s.table.DestroyAll()
		s.parent.release()
		s.parent = nil
	}
}

// IsFunctionBody reports whether the scope is a function-body boundary
// rather than a block scope.
func (s *Scope) IsFunctionBody() bool { return s.functionBody }

// Parent returns the enclosing scope, or nil.
func (s *Scope) Parent() *Scope { return s.parent }

// Table returns the scope's binding table.
func (s *Scope) Table() Table { return s.table }

// Scope returns the context's current innermost scope.
func (ctx *Context) Scope() *Scope { return ctx.scope }

// NewScope pushes a fresh scope whose parent is the current scope. The
// context's reference to the old head moves into the new scope.
func (ctx *Context) NewScope(functionBody bool) *Scope {
	if ctx.forked {
		fatalf("scope.new", "cannot push a scope on forked context %d", ctx.id)
	}
	s := &Scope{
		functionBody: functionBody,
		table:        NewTable(ctx),
		parent:       ctx.scope,
	}
	s.retain()
	ctx.scope = s
	return s
}

// PopScope makes the current scope's parent current again. Popping with no
// scope in place, or on a forked context, is fatal.
func (ctx *Context) PopScope() {
	if ctx.forked {
		fatalf("scope.pop", "cannot pop a scope on forked context %d", ctx.id)
	}
	s := ctx.scope
	if s == nil {
		fatalf("scope.pop", "no scope to pop on context %d", ctx.id)
	}
	s.parent.retain()
	ctx.scope = s.parent
	s.release()
}

// setScope replaces the current scope, adjusting ownership on both sides.
func (ctx *Context) setScope(s *Scope) {
	s.retain()
	old := ctx.scope
	ctx.scope = s
	old.release()
}

// Define binds name to value in the innermost scope. Unless stickToBlock is
// set, block scopes are skipped so the binding lands in the nearest
// function-body scope, or the outermost scope when there is none.
func (ctx *Context) Define(name, value *Value, stickToBlock bool) {
	s := ctx.scope
	if s == nil {
		fatalf("scope.define", "no scope to define into on context %d", ctx.id)
	}
	if !stickToBlock {
		for !s.functionBody && s.parent != nil {
			s = s.parent
		}
	}
	ctx.TableSet(s.table, name, value)
}

// Resolve walks the scope chain outward and returns the first binding of
// name. The result is borrowed.
func (ctx *Context) Resolve(name *Value) (*Value, bool) {
	for s := ctx.scope; s != nil; s = s.parent {
		v, ok := ctx.TableGet(s.table, name)
		if !ok {
			continue
		}
		val, ok := v.(*Value)
		if !ok {
			return Undefined, true
		}
		return val, true
	}
	return nil, false
}

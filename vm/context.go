package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Context tree
// ---------------------------------------------------------------------------

// Context is an execution environment: a scope chain, a data stack, a
// per-context function table and the property tables written through it.
//
// Contexts form a tree. Fork freezes a context and hands out children that
// share its scope chain and data stack; a forked context never changes
// again. An unforked context has a single writer at a time.
type Context struct {
	id     uint64
	forked bool

	refs      atomic.Int32
	destroyed atomic.Bool

	parent   *Context // counted in the parent's refs, never owned
	mu       sync.Mutex
	children []*Context

	scope *Scope
	stack *stackCell
	depth int

	tablesMu sync.RWMutex
	tables   tableDirectory

	functions functionTable
}

// functionTable holds the function values defined in a context. Ids handed
// out by a fork child start after the parent's extent so every id is
// addressable by walking ancestors.
type functionTable struct {
	from    uint32
	entries []*Value
}

// NewContext creates a standalone context with no parent. Its ownership
// count starts at zero.
func NewContext() *Context {
	return &Context{id: nextContextID()}
}

// ID returns the context's process-wide id.
func (ctx *Context) ID() uint64 { return ctx.id }

// Forked reports whether the context has been forked and is therefore
// frozen.
func (ctx *Context) Forked() bool { return ctx.forked }

// Parent returns the context this one was forked from, or nil.
func (ctx *Context) Parent() *Context { return ctx.parent }

// Children returns a snapshot of the context's live children.
func (ctx *Context) Children() []*Context {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := make([]*Context, len(ctx.children))
	copy(out, ctx.children)
	return out
}

// RefCount returns the current ownership count.
func (ctx *Context) RefCount() int32 { return ctx.refs.Load() }

// Destroyed reports whether the context has been torn down.
func (ctx *Context) Destroyed() bool { return ctx.destroyed.Load() }

// Retain increments the ownership count.
func (ctx *Context) Retain() {
	if ctx.destroyed.Load() {
		fatalf("context.retain", "retain of destroyed context %d", ctx.id)
	}
	ctx.refs.Add(1)
}

// Release decrements the ownership count and destroys the context when it
// reaches zero. Releasing at or below zero is fatal.
func (ctx *Context) Release() {
	for {
		n := ctx.refs.Load()
		if n <= 0 {
			fatalf("context.release", "release of unowned context %d (count %d)", ctx.id, n)
		}
		if ctx.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				ctx.Destroy()
			}
			return
		}
	}
}

// Destroy tears the context down. It is fatal to destroy a context that is
// still owned or still has children.
func (ctx *Context) Destroy() {
	if n := ctx.refs.Load(); n > 0 {
		fatalf("context.destroy", "context %d is still owned (count %d)", ctx.id, n)
	}
	ctx.mu.Lock()
	live := len(ctx.children)
	ctx.mu.Unlock()
	if live > 0 {
		fatalf("context.destroy", "context %d still has %d children", ctx.id, live)
	}
	if !ctx.destroyed.CompareAndSwap(false, true) {
		fatalf("context.destroy", "context %d destroyed twice", ctx.id)
	}

	scope := ctx.scope
	ctx.scope = nil
	scope.release()

	stack := ctx.stack
	ctx.stack = nil
	ctx.depth = 0
	stack.release()

	for _, fn := range ctx.functions.entries {
		fn.Release()
	}
	ctx.functions.entries = nil

	ctx.tablesMu.Lock()
	var owned []*bucketTable
	ctx.tables.each(func(b *bucketTable) { owned = append(owned, b) })
	ctx.tables.reset()
	ctx.tablesMu.Unlock()
	for _, b := range owned {
		b.clear()
	}

	if p := ctx.parent; p != nil {
		p.unlink(ctx)
		ctx.parent = nil
		p.Release()
	}
}

func (ctx *Context) unlink(child *Context) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for i, c := range ctx.children {
		if c == child {
			ctx.children = append(ctx.children[:i], ctx.children[i+1:]...)
			return
		}
	}
}

// Fork freezes ctx and returns n children that share its current scope
// chain and data stack. Each child holds one reference to the shared heads
// and counts toward ctx's ownership. Forking with n <= 1 or forking an
// already forked context is fatal.
func (ctx *Context) Fork(n int) []*Context {
	if n <= 1 {
		fatalf("context.fork", "fork of context %d needs at least 2 children, got %d", ctx.id, n)
	}
	if ctx.forked {
		fatalf("context.fork", "context %d is already forked", ctx.id)
	}
	from := ctx.functions.from + uint32(len(ctx.functions.entries))
	children := make([]*Context, n)
	for i := range children {
		child := NewContext()
		child.parent = ctx
		child.scope = ctx.scope
		child.stack = ctx.stack
		child.depth = ctx.depth
		child.functions.from = from
		ctx.scope.retain()
		ctx.stack.retain()
		children[i] = child
	}
	ctx.refs.Add(int32(n))
	ctx.mu.Lock()
	ctx.children = append(ctx.children, children...)
	ctx.mu.Unlock()
	ctx.forked = true
	return children
}

// IsDeepParent reports whether candidate is a proper ancestor of ctx.
func (ctx *Context) IsDeepParent(candidate *Context) bool {
	for p := ctx.parent; p != nil; p = p.parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// walk visits ctx and every descendant, depth first.
func (ctx *Context) walk(fn func(*Context)) {
	fn(ctx)
	for _, c := range ctx.Children() {
		c.walk(fn)
	}
}

// ---------------------------------------------------------------------------
// Function table
// ---------------------------------------------------------------------------

// AddFunction registers a function value in ctx and returns its id. The
// value is retained for the life of the context.
func (ctx *Context) AddFunction(fn *Value) uint32 {
	if ctx.forked {
		fatalf("context.function", "cannot add a function to forked context %d", ctx.id)
	}
	if fn == nil || fn.kind != KindObject || fn.object.call == nil {
		fatalf("context.function", "value is not a function")
	}
	id := ctx.functions.from + uint32(len(ctx.functions.entries))
	fn.Retain()
	ctx.functions.entries = append(ctx.functions.entries, fn)
	fn.object.call.id = id
	return id
}

// FetchFunction returns the function value registered under id in ctx or
// one of its ancestors. The result is borrowed. An unknown id is fatal.
func (ctx *Context) FetchFunction(id uint32) *Value {
	for c := ctx; c != nil; c = c.parent {
		if id < c.functions.from {
			continue
		}
		idx := id - c.functions.from
		if int(idx) >= len(c.functions.entries) {
			break
		}
		return c.functions.entries[idx]
	}
	fatalf("context.function", "no function %d visible from context %d", id, ctx.id)
	return nil
}

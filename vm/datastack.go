package vm

import "sync/atomic"

// ---------------------------------------------------------------------------
// Data stack
// ---------------------------------------------------------------------------

// stackCell is one node of a context's operand stack. Cells are shared by a
// forked context's children, so each carries its own ownership count. A cell
// owns its value and its next cell.
type stackCell struct {
	refs  atomic.Int32
	value *Value
	next  *stackCell
}

func (c *stackCell) retain() {
	if c != nil {
		c.refs.Add(1)
	}
}

func (c *stackCell) release() {
	for c != nil {
		n := c.refs.Add(-1)
		if n < 0 {
			fatalf("stack.release", "release of an unowned stack cell")
		}
		if n > 0 {
			return
		}
		c.value.Release()
		c.value = nil
		next := c.next
		c.next = nil
		c = next
	}
}

// Push places v on top of the context's data stack, retaining it.
func (ctx *Context) Push(v *Value) {
	if ctx.forked {
		fatalf("stack.push", "cannot push on forked context %d", ctx.id)
	}
	v.Retain()
	c := &stackCell{value: v, next: ctx.stack}
	c.retain()
	ctx.stack = c
	ctx.depth++
}

// Peek returns the top of the stack without popping it, or nil when the
// stack is empty. The returned value is retained; the caller releases it.
func (ctx *Context) Peek() *Value {
	if ctx.stack == nil {
		return nil
	}
	v := ctx.stack.value
	v.Retain()
	return v
}

// Pop removes the top of the stack and hands its value to the caller, who
// becomes responsible for releasing it. Popping an empty stack is fatal.
func (ctx *Context) Pop() *Value {
	if ctx.forked {
		fatalf("stack.pop", "cannot pop on forked context %d", ctx.id)
	}
	head := ctx.stack
	if head == nil {
		fatalf("stack.pop", "pop from empty data stack on context %d", ctx.id)
	}
	v := head.value
	v.Retain()
	head.next.retain()
	ctx.stack = head.next
	ctx.depth--
	head.release()
	return v
}

// StackDepth returns the number of values on the data stack.
func (ctx *Context) StackDepth() int { return ctx.depth }

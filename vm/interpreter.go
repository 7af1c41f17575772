package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Frame: execution state of one unit activation
// ---------------------------------------------------------------------------

type frame struct {
	unit   *Unit
	cursor int
	fn     *Function // nil for the entry frame
	saved  *Scope    // caller's scope, owned; restored on return
	base   int       // data stack depth on entry
}

// DefaultMaxFrames bounds call nesting for a Thread.
const DefaultMaxFrames = 1024

// ---------------------------------------------------------------------------
// Thread: resumable executor over a context
// ---------------------------------------------------------------------------

// Thread executes a unit against a context's data stack and scope chain. A
// thread that reaches a call to an uncompiled function returns a
// *Suspension and may be run again later; it resumes at the same call.
type Thread struct {
	ctx       *Context
	frames    []*frame
	maxFrames int
	done      bool
}

// NewThread prepares unit for execution on ctx. args are pushed above the
// entry frame's base, in order, for the unit to consume.
func NewThread(ctx *Context, unit *Unit, args ...*Value) *Thread {
	t := &Thread{
		ctx:       ctx,
		frames:    []*frame{{unit: unit, base: ctx.StackDepth()}},
		maxFrames: DefaultMaxFrames,
	}
	for _, a := range args {
		ctx.Push(a)
	}
	return t
}

// Exec runs unit on ctx to completion or to its first suspension.
func Exec(ctx *Context, unit *Unit, args ...*Value) (*Value, error) {
	return NewThread(ctx, unit, args...).Run()
}

// Context returns the context the thread runs on.
func (t *Thread) Context() *Context { return t.ctx }

// SetMaxFrames changes the call nesting limit.
func (t *Thread) SetMaxFrames(n int) {
	if n > 0 {
		t.maxFrames = n
	}
}

// Done reports whether the thread has returned or failed.
func (t *Thread) Done() bool { return t.done }

// Depth returns the number of active frames.
func (t *Thread) Depth() int { return len(t.frames) }

// RuntimeError locates a script-level failure in the unit that raised it.
type RuntimeError struct {
	Offset int
	Line   uint32
	Column uint32
	Err    error
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("at %04d: %v", e.Offset, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Run executes until the entry frame returns, the thread suspends, or an
// error stops it. On return the result is owned by the caller, who must
// release it.
func (t *Thread) Run() (*Value, error) {
	if t.done {
		return nil, ErrThreadFinished
	}
	ctx := t.ctx
	for {
		fr := t.frames[len(t.frames)-1]
		limit := int(fr.unit.ConstantPoolOffset)
		code := fr.unit.Data

		if fr.cursor >= limit || Opcode(code[fr.cursor]) == OpEnd {
			if v, finished := t.ret(fr); finished {
				return v, nil
			}
			continue
		}

		op := Opcode(code[fr.cursor])
		next := fr.cursor + op.Width()
		if next > limit {
			return nil, t.fail(fr, fmt.Errorf("%s operand crosses the constant pool: %w", op.Name(), ErrCorruptUnit))
		}

		switch op {
		// --- Stack operations ---
		case OpDrop:
			ctx.Pop().Release()

		case OpDup:
			v := ctx.Peek()
			if v == nil {
				fatalf("exec.dup", "dup on empty data stack")
			}
			ctx.Push(v)
			v.Release()

		case OpSwap:
			b := ctx.Pop()
			a := ctx.Pop()
			ctx.Push(b)
			ctx.Push(a)
			a.Release()
			b.Release()

		// --- Binary operators ---
		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
			OpBitOr, OpBitXor, OpBitAnd, OpShiftLeft, OpShiftRight, OpShiftRightUnsigned,
			OpLT, OpLTE, OpGT, OpGTE, OpEq, OpNotEq, OpStrictEq, OpStrictNotEq,
			OpLogicalOr, OpLogicalAnd:
			b := ctx.Pop()
			a := ctx.Pop()
			r, err := binaryOp(op, a, b)
			if err == nil {
				ctx.Push(r)
			}
			a.Release()
			b.Release()
			if err != nil {
				return nil, t.fail(fr, err)
			}

		// --- Unary operators ---
		case OpNot, OpPositive, OpNeg, OpBitNot:
			a := ctx.Pop()
			r, err := unaryOp(op, a)
			if err == nil {
				ctx.Push(r)
			}
			a.Release()
			if err != nil {
				return nil, t.fail(fr, err)
			}

		// --- Loads ---
		case OpLdUndefined:
			ctx.Push(Undefined)
		case OpLdNull:
			ctx.Push(Null)
		case OpLdTrue:
			ctx.Push(True)
		case OpLdFalse:
			ctx.Push(False)
		case OpLdZero:
			ctx.Push(Zero)
		case OpLdOne:
			ctx.Push(One)
		case OpLdTwo:
			ctx.Push(Two)
		case OpLdNaN:
			ctx.Push(NewNumber(math.NaN()))
		case OpLdInfinity:
			ctx.Push(NewNumber(math.Inf(1)))

		case OpLdValue:
			v, err := fr.unit.Constant(operand(code, fr.cursor))
			if err != nil {
				return nil, t.fail(fr, err)
			}
			ctx.Push(v)

		case OpGetProperty:
			key, err := fr.unit.Constant(operand(code, fr.cursor))
			if err != nil {
				return nil, t.fail(fr, err)
			}
			obj := ctx.Pop()
			v, err := getProperty(ctx, obj, key)
			if err == nil {
				ctx.Push(v)
			}
			obj.Release()
			if err != nil {
				return nil, t.fail(fr, err)
			}

		case OpCall:
			fnVal := ctx.FetchFunction(uint32(operand(code, fr.cursor)))
			fn := fnVal.object.call
			if err := fn.Err(); err != nil {
				return nil, t.fail(fr, fmt.Errorf("function %d failed to compile: %w", fn.ID(), err))
			}
			if !fn.Compiled() {
				return nil, &Suspension{Function: fn, Offset: fr.cursor}
			}
			if len(t.frames) >= t.maxFrames {
				return nil, t.fail(fr, ErrStackOverflow)
			}
			fr.cursor = next
			t.enter(fn)
			continue

		case OpRet:
			if v, finished := t.ret(fr); finished {
				return v, nil
			}
			continue

		default:
			// OpAbort, OpLdThis and anything unknown.
			t.unwind()
			return nil, &TrapError{Opcode: op, Offset: fr.cursor}
		}

		fr.cursor = next
	}
}

func operand(code []byte, cursor int) uint64 {
	return binary.LittleEndian.Uint64(code[cursor+1:])
}

// enter pushes a frame for fn. The callee runs in a fresh function-body
// scope on top of the scope it closes over.
func (t *Thread) enter(fn *Function) {
	ctx := t.ctx
	saved := ctx.scope
	saved.retain()
	ctx.setScope(fn.scope)
	ctx.NewScope(true)
	t.frames = append(t.frames, &frame{
		unit:  fn.Unit(),
		fn:    fn,
		saved: saved,
		base:  ctx.StackDepth(),
	})
}

// leave pops the innermost frame and restores the caller's scope.
func (t *Thread) leave() {
	fr := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	t.ctx.setScope(fr.saved)
	fr.saved.release()
}

// ret returns from fr. A nested frame leaves its result on the stack for the
// caller. The entry frame pops the result and finishes the thread.
func (t *Thread) ret(fr *frame) (*Value, bool) {
	ctx := t.ctx
	if ctx.StackDepth() <= fr.base {
		ctx.Push(Undefined)
	}
	if len(t.frames) > 1 {
		t.leave()
		return nil, false
	}
	t.done = true
	return ctx.Pop(), true
}

// unwind drops every nested frame, restoring the entry scope and the data
// stack depth the thread started with.
func (t *Thread) unwind() {
	for len(t.frames) > 1 {
		t.leave()
	}
	for t.ctx.StackDepth() > t.frames[0].base {
		t.ctx.Pop().Release()
	}
	t.done = true
}

func (t *Thread) fail(fr *frame, err error) error {
	re := &RuntimeError{Offset: fr.cursor, Err: err}
	if line, col, ok := fr.unit.SourcePosition(fr.cursor); ok {
		re.Line, re.Column = line, col
	}
	t.unwind()
	return re
}

// getProperty reads key from obj. Primitives other than null and undefined
// have no own properties here and yield undefined.
func getProperty(ctx *Context, obj, key *Value) (*Value, error) {
	if key.kind != KindString && key.kind != KindSymbol {
		s, err := ToString(key)
		if err != nil {
			return nil, err
		}
		key = StringFromGo(s)
	}
	switch obj.kind {
	case KindObject:
		return obj.object.Get(ctx, key), nil
	case KindNull, KindUndefined:
		return nil, fmt.Errorf("cannot read property %s of %s: %w", key, obj, ErrTypeError)
	default:
		return Undefined, nil
	}
}

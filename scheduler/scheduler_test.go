package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chazu/waterscript/vm"
)

func build(emit func(b *vm.UnitBuilder)) *vm.Unit {
	b := vm.NewUnitBuilder()
	emit(b)
	b.EmitEnd()
	return b.Build()
}

// answer is the body every lazily compiled test function gets.
var answer = build(func(b *vm.UnitBuilder) {
	b.EmitOperand(vm.OpLdValue, b.AddNumber(40))
	b.Emit(vm.OpRet)
})

func callerOf(id uint32) *vm.Unit {
	return build(func(b *vm.UnitBuilder) {
		b.Emit(vm.OpLdTwo)
		b.EmitOperand(vm.OpCall, uint64(id))
		b.Emit(vm.OpAdd)
		b.Emit(vm.OpRet)
	})
}

type countingCompiler struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (c *countingCompiler) CompileFunction(fn *vm.Function) (*vm.Unit, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return nil, c.err
	}
	return answer, nil
}

func start(t *testing.T, c Compiler, opts ...Option) *Scheduler {
	t.Helper()
	s := New(c, opts...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func wait(t *testing.T, task *Task) (*vm.Value, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := task.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("task %s did not finish", task.ID)
	}
	return v, err
}

// lazyFunction registers an uncompiled function on a fresh retained
// context and returns both.
func lazyFunction() (*vm.Context, uint32) {
	ctx := vm.NewContext()
	ctx.Retain()
	ctx.NewScope(true)
	fn := vm.NewFunction(ctx.Scope(), "lazy")
	return ctx, ctx.AddFunction(vm.NewFunctionValue(ctx, fn))
}

func TestScheduler_RunsUnit(t *testing.T) {
	s := start(t, &countingCompiler{}, WithWorkers(2))
	u := build(func(b *vm.UnitBuilder) {
		b.Emit(vm.OpLdTwo)
		b.EmitOperand(vm.OpLdValue, b.AddNumber(3))
		b.EmitOperand(vm.OpLdValue, b.AddNumber(45))
		b.Emit(vm.OpMul)
		b.Emit(vm.OpAdd)
		b.Emit(vm.OpRet)
	})
	ctx := vm.NewContext()
	ctx.Retain()
	task, err := s.Submit(ctx, u)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	v, err := wait(t, task)
	if err != nil || v.Number() != 137 {
		t.Errorf("got %v, %v; want 137", v, err)
	}
	if ctx.RefCount() != 1 {
		t.Errorf("task should release its hold on the context, refs %d", ctx.RefCount())
	}
}

func TestScheduler_SubmitGuards(t *testing.T) {
	s := New(&countingCompiler{})
	if _, err := s.Submit(vm.NewContext(), answer); !errors.Is(err, ErrNotStarted) {
		t.Errorf("before Start: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	parent := vm.NewContext()
	parent.Retain()
	parent.NewScope(true)
	parent.Fork(2)
	if _, err := s.Submit(parent, answer); !errors.Is(err, ErrForked) {
		t.Errorf("forked context: %v", err)
	}
	if _, err := s.Fork(parent, 2, answer); !errors.Is(err, ErrForked) {
		t.Errorf("fork of forked context: %v", err)
	}
	if _, err := s.Fork(vm.NewContext(), 1, answer); err == nil {
		t.Error("fork into one child should be refused")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	ctx := vm.NewContext()
	ctx.Retain()
	if _, err := s.Submit(ctx, answer); !errors.Is(err, ErrStopped) {
		t.Errorf("after Stop: %v", err)
	}
	if ctx.RefCount() != 1 {
		t.Errorf("refused submit leaked a context reference: %d", ctx.RefCount())
	}
}

func TestScheduler_LazyCompile(t *testing.T) {
	c := &countingCompiler{}
	s := start(t, c)
	ctx, id := lazyFunction()

	task, err := s.Submit(ctx, callerOf(id))
	if err != nil {
		t.Fatal(err)
	}
	v, err := wait(t, task)
	if err != nil || v.Number() != 42 {
		t.Fatalf("got %v, %v; want 42", v, err)
	}
	if task.Suspensions() != 1 {
		t.Errorf("suspensions: got %d, want 1", task.Suspensions())
	}
	if c.calls.Load() != 1 {
		t.Errorf("compiles: got %d, want 1", c.calls.Load())
	}

	// Compiled now; a second run does not suspend.
	again, _ := s.Submit(ctx, callerOf(id))
	if v, err := wait(t, again); err != nil || v.Number() != 42 {
		t.Errorf("second run: %v, %v", v, err)
	}
	if again.Suspensions() != 0 {
		t.Errorf("second run suspended %d times", again.Suspensions())
	}
}

func TestScheduler_ForkCoalescesCompiles(t *testing.T) {
	c := &countingCompiler{gate: make(chan struct{})}
	s := start(t, c, WithWorkers(4))
	ctx, id := lazyFunction()

	tasks, err := s.Fork(ctx, 8, callerOf(id))
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if len(tasks) != 8 {
		t.Fatalf("tasks: got %d, want 8", len(tasks))
	}
	// The compile is gated, so every child is still alive here.
	if got := len(ctx.Children()); got != 8 {
		t.Errorf("children: got %d, want 8", got)
	}
	for _, task := range tasks {
		if !task.Context().IsDeepParent(ctx) {
			t.Error("task context should be a child of the forked context")
		}
	}
	close(c.gate)
	for _, task := range tasks {
		v, err := wait(t, task)
		if err != nil || v.Number() != 42 {
			t.Errorf("task %s: %v, %v", task.ID, v, err)
		}
	}
	if got := len(ctx.Children()); got != 0 {
		t.Errorf("children after the tasks finished: %d", got)
	}
	if got := c.calls.Load(); got != 1 {
		t.Errorf("compiles: got %d, want 1", got)
	}
	if ctx.RefCount() != 1 {
		t.Errorf("children should be gone, parent refs %d", ctx.RefCount())
	}
}

func TestScheduler_ForkRefusedLeavesContextUnfrozen(t *testing.T) {
	ctx, _ := lazyFunction()
	s := New(&countingCompiler{})
	if _, err := s.Fork(ctx, 3, answer); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("before Start: %v", err)
	}
	if ctx.Forked() || len(ctx.Children()) != 0 || ctx.RefCount() != 1 {
		t.Errorf("refused fork changed the context: forked=%v children=%d refs=%d",
			ctx.Forked(), len(ctx.Children()), ctx.RefCount())
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fork(ctx, 3, answer); !errors.Is(err, ErrStopped) {
		t.Fatalf("after Stop: %v", err)
	}
	if ctx.Forked() || ctx.RefCount() != 1 {
		t.Errorf("fork after Stop changed the context: forked=%v refs=%d", ctx.Forked(), ctx.RefCount())
	}
}

func TestScheduler_BusyContext(t *testing.T) {
	c := &countingCompiler{gate: make(chan struct{})}
	s := start(t, c, WithWorkers(2))
	ctx, id := lazyFunction()

	task, err := s.Submit(ctx, callerOf(id))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit(ctx, answer); !errors.Is(err, ErrBusy) {
		t.Errorf("second submit on a busy context: %v", err)
	}
	close(c.gate)
	if _, err := wait(t, task); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit(ctx, answer); err != nil {
		t.Errorf("submit after finish: %v", err)
	}
}

func TestScheduler_CompileFailure(t *testing.T) {
	boom := errors.New("syntax error")
	s := start(t, &countingCompiler{err: boom})
	ctx, id := lazyFunction()

	task, _ := s.Submit(ctx, callerOf(id))
	_, err := wait(t, task)
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want the compile error", err)
	}
}

func TestScheduler_CompilerPanic(t *testing.T) {
	s := start(t, CompilerFunc(func(*vm.Function) (*vm.Unit, error) {
		panic("compiler bug")
	}))
	ctx, id := lazyFunction()

	task, _ := s.Submit(ctx, callerOf(id))
	if _, err := wait(t, task); err == nil {
		t.Error("a panicking compile should fail the waiting task")
	}
}

func TestScheduler_Trap(t *testing.T) {
	s := start(t, &countingCompiler{})
	ctx := vm.NewContext()
	ctx.Retain()
	task, _ := s.Submit(ctx, build(func(b *vm.UnitBuilder) { b.Emit(vm.OpAbort) }))
	_, err := wait(t, task)
	var trap *vm.TrapError
	if !errors.As(err, &trap) {
		t.Errorf("got %v, want a trap", err)
	}
}

func TestScheduler_FatalFailsTask(t *testing.T) {
	s := start(t, &countingCompiler{})
	ctx := vm.NewContext()
	ctx.Retain()
	// DROP on an empty stack violates the data stack contract.
	task, _ := s.Submit(ctx, build(func(b *vm.UnitBuilder) { b.Emit(vm.OpDrop) }))
	_, err := wait(t, task)
	var fe *vm.FatalError
	if !errors.As(err, &fe) {
		t.Errorf("got %v, want *vm.FatalError", err)
	}
}

func TestScheduler_StopFailsParkedTasks(t *testing.T) {
	c := &countingCompiler{gate: make(chan struct{})}
	s := New(c)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, id := lazyFunction()
	task, _ := s.Submit(ctx, callerOf(id))

	for c.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	stopped := make(chan error)
	go func() { stopped <- s.Stop() }()
	time.Sleep(10 * time.Millisecond)
	close(c.gate)
	if err := <-stopped; err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := wait(t, task); !errors.Is(err, ErrStopped) {
		t.Errorf("parked task after stop: %v", err)
	}
}

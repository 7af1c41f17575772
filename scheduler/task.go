package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/chazu/waterscript/vm"
)

// Task is one submitted unit running on one context. It moves between the
// queue and the workers until the unit returns or fails.
type Task struct {
	ID uuid.UUID

	ctx    *vm.Context
	thread *vm.Thread

	once   sync.Once
	done   chan struct{}
	result *vm.Value
	err    error

	mu          sync.Mutex
	suspensions int
}

func newTask(ctx *vm.Context, thread *vm.Thread) *Task {
	return &Task{
		ID:     uuid.New(),
		ctx:    ctx,
		thread: thread,
		done:   make(chan struct{}),
	}
}

// Context returns the context the task runs on. Once Done is closed the
// task has released it, and a fork child may already be destroyed.
func (t *Task) Context() *vm.Context { return t.ctx }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Suspensions returns how many times the task yielded waiting for a compile.
func (t *Task) Suspensions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspensions
}

// Wait blocks until the task finishes or ctx is cancelled. The result is
// owned by the caller.
func (t *Task) Wait(ctx context.Context) (*vm.Value, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) suspended() {
	t.mu.Lock()
	t.suspensions++
	t.mu.Unlock()
}

// finish records the outcome once and lets go of the context.
func (t *Task) finish(result *vm.Value, err error, release func(*Task)) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		release(t)
		close(t.done)
	})
}

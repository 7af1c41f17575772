package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/waterscript/vm"
)

var log = commonlog.GetLogger("waterscript.scheduler")

var (
	ErrStopped    = errors.New("scheduler: stopped")
	ErrNotStarted = errors.New("scheduler: not started")
	ErrForked     = errors.New("scheduler: context is forked")
	ErrBusy       = errors.New("scheduler: context already has a running task")
)

// Compiler turns an uncompiled function into a unit. It is called from
// worker goroutines and must be safe for concurrent use.
type Compiler interface {
	CompileFunction(fn *vm.Function) (*vm.Unit, error)
}

// CompilerFunc adapts a plain function to the Compiler interface.
type CompilerFunc func(fn *vm.Function) (*vm.Unit, error)

func (f CompilerFunc) CompileFunction(fn *vm.Function) (*vm.Unit, error) { return f(fn) }

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

type jobKind uint8

const (
	jobRun jobKind = iota
	jobCompile
)

// job is one queue entry: run a task to completion or to its next
// suspension, or compile one function.
type job struct {
	kind jobKind
	task *Task
	fn   *vm.Function
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the size of the worker pool.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxFrames bounds call nesting for every task's thread.
func WithMaxFrames(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxFrames = n
		}
	}
}

// Scheduler drains a FIFO of run and compile jobs with a pool of workers.
//
// A task whose thread calls an uncompiled function does not hold its
// worker: it parks a resume callback on the function and leaves the
// worker free. The first task to need a given function enqueues its
// compile; every later caller coalesces onto that compile and is requeued
// when it installs.
type Scheduler struct {
	compiler  Compiler
	workers   int
	maxFrames int

	queue *Queue[*job]

	mu      sync.Mutex
	group   *errgroup.Group
	cancel  context.CancelFunc
	started bool
	active  map[*vm.Context]*Task
}

// New creates a scheduler. Call Start before submitting work.
func New(compiler Compiler, opts ...Option) *Scheduler {
	s := &Scheduler{
		compiler:  compiler,
		workers:   1,
		maxFrames: vm.DefaultMaxFrames,
		queue:     NewQueue[*job](),
		active:    make(map[*vm.Context]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Workers returns the size of the worker pool.
func (s *Scheduler) Workers() int { return s.workers }

// Pending returns the number of queued jobs.
func (s *Scheduler) Pending() int { return s.queue.Len() }

// Start launches the worker pool. Cancelling ctx stops the scheduler the
// same way Stop does.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler: already started")
	}
	if s.queue.Closed() {
		return ErrStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		id := i
		g.Go(func() error { return s.work(id) })
	}
	g.Go(func() error {
		<-gctx.Done()
		s.queue.Close()
		return nil
	})
	s.group = g
	s.cancel = cancel
	s.started = true
	log.Debugf("started %d workers", s.workers)
	return nil
}

// Stop closes the queue, lets the workers drain what is already queued and
// waits for them to exit. Tasks that would have been requeued after the
// close finish with ErrStopped.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	g, cancel := s.group, s.cancel
	s.mu.Unlock()

	s.queue.Close()
	if g == nil {
		return nil
	}
	cancel()
	err := g.Wait()
	log.Debug("stopped")
	return err
}

// Submit queues unit for execution on ctx. The task holds a reference to
// ctx until it finishes. Forked contexts are read-only and are rejected,
// as is a context that already has a task in flight.
func (s *Scheduler) Submit(ctx *vm.Context, unit *vm.Unit, args ...*vm.Value) (*Task, error) {
	if ctx.Forked() {
		return nil, ErrForked
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	if _, busy := s.active[ctx]; busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	ctx.Retain()
	thread := vm.NewThread(ctx, unit, args...)
	thread.SetMaxFrames(s.maxFrames)
	task := newTask(ctx, thread)
	s.active[ctx] = task
	s.mu.Unlock()

	log.Debugf("task %s: submitted on context %d", task.ID, ctx.ID())
	if !s.queue.Push(&job{kind: jobRun, task: task}) {
		task.finish(nil, ErrStopped, s.release)
		return nil, ErrStopped
	}
	return task, nil
}

// Fork freezes ctx into n children and submits unit on each. The children
// see the scope chain and data stack as they were at the fork and run
// concurrently from there.
func (s *Scheduler) Fork(ctx *vm.Context, n int, unit *vm.Unit) ([]*Task, error) {
	if n < 2 {
		return nil, fmt.Errorf("scheduler: fork needs at least 2 children, got %d", n)
	}
	if ctx.Forked() {
		return nil, ErrForked
	}
	// Forking freezes ctx for good, so refuse before that point.
	s.mu.Lock()
	started := s.started
	_, busy := s.active[ctx]
	s.mu.Unlock()
	switch {
	case !started:
		return nil, ErrNotStarted
	case s.queue.Closed():
		return nil, ErrStopped
	case busy:
		return nil, ErrBusy
	}

	children := ctx.Fork(n)
	tasks := make([]*Task, 0, n)
	for i, child := range children {
		task, err := s.Submit(child, unit)
		if err != nil {
			// A stopped Submit already released its child; any other
			// failure left it unowned.
			rest := children[i:]
			if errors.Is(err, ErrStopped) {
				rest = children[i+1:]
			}
			for _, c := range rest {
				c.Retain()
				c.Release()
			}
			return tasks, err
		}
		tasks = append(tasks, task)
	}
	log.Debugf("context %d forked into %d tasks", ctx.ID(), n)
	return tasks, nil
}

// release drops a finished task's hold on its context.
func (s *Scheduler) release(t *Task) {
	s.mu.Lock()
	if s.active[t.ctx] == t {
		delete(s.active, t.ctx)
	}
	s.mu.Unlock()
	t.ctx.Release()
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

func (s *Scheduler) work(id int) error {
	for {
		j, ok := s.queue.Pop()
		if !ok {
			log.Debugf("worker %d: queue closed", id)
			return nil
		}
		s.execute(j)
	}
}

// execute runs one job, turning a panic into a failure of the owning task.
func (s *Scheduler) execute(j *job) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var err error
		if fe, ok := vm.AsFatal(r); ok {
			err = fe
		} else {
			err = fmt.Errorf("scheduler: panic: %v", r)
		}
		switch j.kind {
		case jobRun:
			log.Criticalf("task %s: %v", j.task.ID, err)
			j.task.finish(nil, err, s.release)
		case jobCompile:
			log.Criticalf("compile of function %d: %v", j.fn.ID(), err)
			s.resume(j.fn.Fail(err))
		}
	}()

	switch j.kind {
	case jobRun:
		s.run(j)
	case jobCompile:
		s.compile(j.fn)
	}
}

func (s *Scheduler) run(j *job) {
	t := j.task
	v, err := t.thread.Run()
	susp, ok := vm.IsSuspension(err)
	if !ok {
		if err != nil {
			var trap *vm.TrapError
			if errors.As(err, &trap) {
				log.Errorf("task %s: %v", t.ID, err)
			} else {
				log.Debugf("task %s: %v", t.ID, err)
			}
		} else {
			log.Debugf("task %s: finished", t.ID)
		}
		t.finish(v, err, s.release)
		return
	}

	t.suspended()
	fn := susp.Function
	log.Debugf("task %s: suspended at %04d on function %d", t.ID, susp.Offset, fn.ID())
	if !fn.Await(func() { s.requeue(j) }) {
		// Installed or failed since the thread looked; go again.
		s.requeue(j)
		return
	}
	if fn.RequestCompile() {
		if !s.queue.Push(&job{kind: jobCompile, fn: fn}) {
			s.resume(fn.Fail(ErrStopped))
		}
	}
}

func (s *Scheduler) compile(fn *vm.Function) {
	unit, err := s.compiler.CompileFunction(fn)
	if err != nil {
		log.Errorf("compile of function %d failed: %v", fn.ID(), err)
		s.resume(fn.Fail(err))
		return
	}
	log.Debugf("function %d compiled", fn.ID())
	s.resume(fn.Install(unit))
}

func (s *Scheduler) resume(waiters []func()) {
	for _, w := range waiters {
		w()
	}
}

func (s *Scheduler) requeue(j *job) {
	if !s.queue.Push(j) {
		j.task.finish(nil, ErrStopped, s.release)
	}
}

// Package engine wires the runtime together: manifest configuration, the
// compiled-unit caches, the compiler and the scheduler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/waterscript/compiler"
	"github.com/chazu/waterscript/compiler/hash"
	"github.com/chazu/waterscript/manifest"
	"github.com/chazu/waterscript/scheduler"
	"github.com/chazu/waterscript/vm"
	"github.com/chazu/waterscript/vm/dist"
)

var log = commonlog.GetLogger("waterscript.engine")

// ErrNoSource is returned when a function has nothing the compiler accepts.
var ErrNoSource = errors.New("engine: function has no compilable source")

// Engine is an embedded runtime instance. It is safe for concurrent use;
// each vm.Context still runs at most one task at a time.
type Engine struct {
	manifest *manifest.Manifest
	units    *vm.ContentStore // nil when the memory cache is disabled
	store    *dist.SQLStore   // nil without a cache path
	sched    *scheduler.Scheduler

	stats struct {
		hits     atomic.Int64
		misses   atomic.Int64
		compiles atomic.Int64
	}
}

// Stats counts compile cache activity.
type Stats struct {
	Hits     int64
	Misses   int64
	Compiles int64
}

// Open starts an engine configured by m. A nil manifest means
// manifest.Default().
func Open(m *manifest.Manifest) (*Engine, error) {
	if m == nil {
		m = manifest.Default()
	}
	e := &Engine{manifest: m}
	if m.Cache.Memory {
		e.units = vm.NewContentStore()
	}
	if p := m.CachePath(); p != "" {
		store, err := dist.OpenSQLStore(p)
		if err != nil {
			return nil, err
		}
		e.store = store
		if e.units != nil {
			n, err := store.Preload(context.Background(), e.units)
			if err != nil {
				store.Close()
				return nil, err
			}
			log.Debugf("preloaded %d units from %s", n, p)
		}
	}

	e.sched = scheduler.New(scheduler.CompilerFunc(e.compileFunction),
		scheduler.WithWorkers(m.Runtime.Workers),
		scheduler.WithMaxFrames(m.Runtime.MaxFrames))
	if err := e.sched.Start(context.Background()); err != nil {
		if e.store != nil {
			e.store.Close()
		}
		return nil, err
	}
	log.Debugf("opened %q with %d workers", m.Project.Name, e.sched.Workers())
	return e, nil
}

// Manifest returns the configuration the engine was opened with.
func (e *Engine) Manifest() *manifest.Manifest { return e.manifest }

// Units returns the in-memory unit cache, or nil when it is disabled.
func (e *Engine) Units() *vm.ContentStore { return e.units }

// Stats returns a snapshot of the cache counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Hits:     e.stats.hits.Load(),
		Misses:   e.stats.misses.Load(),
		Compiles: e.stats.compiles.Load(),
	}
}

// Close stops the scheduler and closes the persistent cache.
func (e *Engine) Close() error {
	err := e.sched.Stop()
	if e.store != nil {
		err = errors.Join(err, e.store.Close())
	}
	return err
}

// NewContext returns a root context with a global function-body scope. The
// caller owns one reference and releases it when done.
func (e *Engine) NewContext() *vm.Context {
	ctx := vm.NewContext()
	ctx.Retain()
	ctx.NewScope(true)
	return ctx
}

// DefineFunction registers an uncompiled function closing over vmctx's
// current scope and returns its id for FunctionCall nodes. The body is
// compiled the first time it is called.
func (e *Engine) DefineFunction(vmctx *vm.Context, body *compiler.FunctionExpression) uint32 {
	fn := vm.NewFunction(vmctx.Scope(), body)
	return vmctx.AddFunction(vm.NewFunctionValue(vmctx, fn))
}

// Eval compiles node and runs it on vmctx, waiting for the result. The
// result is owned by the caller.
func (e *Engine) Eval(ctx context.Context, vmctx *vm.Context, node compiler.Node) (*vm.Value, error) {
	unit, err := e.Compile(ctx, node)
	if err != nil {
		return nil, err
	}
	task, err := e.sched.Submit(vmctx, unit)
	if err != nil {
		return nil, err
	}
	return task.Wait(ctx)
}

// Fork freezes vmctx, splits it into n children and runs node on each of
// them concurrently.
func (e *Engine) Fork(ctx context.Context, vmctx *vm.Context, n int, node compiler.Node) ([]*scheduler.Task, error) {
	unit, err := e.Compile(ctx, node)
	if err != nil {
		return nil, err
	}
	return e.sched.Fork(vmctx, n, unit)
}

// Compile returns the unit for node, consulting the memory cache and then
// the persistent cache before compiling. Nodes are keyed by content hash,
// so a cached unit carries the source positions of the first node that
// produced it.
func (e *Engine) Compile(ctx context.Context, node compiler.Node) (*vm.Unit, error) {
	if node == nil {
		return nil, compiler.ErrNilNode
	}
	h := hash.HashNode(node)

	if e.units != nil {
		if u, ok := e.units.LookupUnit(h); ok {
			e.stats.hits.Add(1)
			log.Debugf("cache hit %x", h[:8])
			return u, nil
		}
	}
	if e.store != nil {
		u, ok, err := e.store.Get(ctx, h)
		if err != nil {
			log.Errorf("persistent cache read: %s", err)
		} else if ok {
			e.stats.hits.Add(1)
			log.Debugf("persistent cache hit %x", h[:8])
			if e.units != nil {
				e.units.IndexUnit(h, u)
			}
			return u, nil
		}
	}
	e.stats.misses.Add(1)
	log.Debugf("cache miss %x", h[:8])

	u, err := compiler.NewCompiler().CompileNode(node)
	if err != nil {
		return nil, err
	}
	e.stats.compiles.Add(1)

	if e.units != nil {
		e.units.IndexUnit(h, u)
	}
	if e.store != nil {
		if err := e.store.Put(ctx, h, u); err != nil {
			log.Errorf("persistent cache write: %s", err)
		}
	}
	return u, nil
}

func (e *Engine) compileFunction(fn *vm.Function) (*vm.Unit, error) {
	node, ok := fn.Source().(compiler.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("function %d: %w", fn.ID(), ErrNoSource)
	}
	return e.Compile(context.Background(), node)
}

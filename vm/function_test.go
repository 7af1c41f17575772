package vm

import (
	"errors"
	"sync"
	"testing"
)

func TestFunction_RequestCompileCoalesces(t *testing.T) {
	fn := NewFunction(nil, "src")
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if fn.RequestCompile() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("winners: got %d, want 1", winners)
	}
}

func TestFunction_InstallWakesWaiters(t *testing.T) {
	fn := NewFunction(nil, "src")
	fn.RequestCompile()
	woken := 0
	for i := 0; i < 3; i++ {
		if !fn.Await(func() { woken++ }) {
			t.Fatal("Await on an uncompiled function should park")
		}
	}
	waiters := fn.Install(&Unit{})
	if len(waiters) != 3 {
		t.Fatalf("waiters: got %d, want 3", len(waiters))
	}
	for _, w := range waiters {
		w()
	}
	if woken != 3 {
		t.Errorf("woken: %d", woken)
	}
	if !fn.Compiled() || fn.Source() != nil || fn.Unit() == nil {
		t.Error("install should store the unit and drop the source")
	}
	if fn.Await(func() {}) {
		t.Error("Await after install should not park")
	}
	if fn.RequestCompile() {
		t.Error("a compiled function needs no compile")
	}
	mustPanic(t, "install twice", func() { fn.Install(&Unit{}) })
}

func TestFunction_Fail(t *testing.T) {
	fn := NewFunction(nil, "src")
	fn.RequestCompile()
	fn.Await(func() {})
	boom := errors.New("boom")
	if got := fn.Fail(boom); len(got) != 1 {
		t.Errorf("Fail returned %d waiters", len(got))
	}
	if !errors.Is(fn.Err(), boom) {
		t.Errorf("Err: %v", fn.Err())
	}
	if fn.RequestCompile() || fn.Await(func() {}) {
		t.Error("a failed function is not retried")
	}
}

func TestFunction_ReleaseDropsScope(t *testing.T) {
	ctx := NewContext()
	ctx.NewScope(true)
	captured := NewNumber(1)
	ctx.Define(key("c"), captured, false)
	fn := NewFunction(ctx.Scope(), nil)
	fn.Retain()

	ctx.PopScope()
	if captured.Destroyed() {
		t.Fatal("closure should keep its scope alive")
	}
	fn.Release()
	if !captured.Destroyed() {
		t.Error("releasing the last function reference should drop its scope")
	}
	mustPanic(t, "over-release", func() { fn.Release() })
}

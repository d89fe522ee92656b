package plugin

import (
	"context"
	"errors"
	"testing"
)

func TestRuntimeRegisterAndGet(t *testing.T) {
	rt := NewRuntime(nil)
	src := newFakeSource("cal-1", CategoryCalendar)
	if err := rt.Register(src); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := rt.Get("cal-1"); got != src {
		t.Fatal("Get should return the registered instance")
	}
	if rt.Len() != 1 {
		t.Fatalf("Len = %d, want 1", rt.Len())
	}
}

func TestRuntimeRegisterDuplicate(t *testing.T) {
	rt := NewRuntime(nil)
	if err := rt.Register(newFakeSource("cal-1", CategoryCalendar)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// ids are unique across categories, not per category
	err := rt.Register(newFakeSource("cal-1", CategoryImage))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second Register = %v, want ErrDuplicate", err)
	}
}

func TestRuntimeUnregister(t *testing.T) {
	rt := NewRuntime(nil)
	if err := rt.Register(newFakeSource("cal-1", CategoryCalendar)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !rt.Unregister("cal-1") {
		t.Fatal("Unregister should report the instance existed")
	}
	if rt.Get("cal-1") != nil {
		t.Fatal("instance still reachable after Unregister")
	}
	if got := rt.List(CategoryCalendar, false); len(got) != 0 {
		t.Fatalf("category listing = %d entries, want 0", len(got))
	}
	if rt.Unregister("cal-1") {
		t.Fatal("second Unregister should report false")
	}
}

func TestRuntimeListByCategory(t *testing.T) {
	rt := NewRuntime(nil)
	cal := newFakeSource("cal-1", CategoryCalendar)
	img := newFakeSource("img-1", CategoryImage)
	imgOff := newFakeSource("img-2", CategoryImage)
	imgOff.Disable()
	for _, p := range []Plugin{cal, img, imgOff} {
		if err := rt.Register(p); err != nil {
			t.Fatalf("Register %s: %v", p.InstanceID(), err)
		}
	}

	if got := rt.List(CategoryImage, false); len(got) != 2 {
		t.Fatalf("image listing = %d entries, want 2", len(got))
	}
	enabled := rt.List(CategoryImage, true)
	if len(enabled) != 1 || enabled[0].InstanceID() != "img-1" {
		t.Fatalf("enabled image listing = %v, want only img-1", enabled)
	}
	if got := rt.List("", false); len(got) != 3 {
		t.Fatalf("full listing = %d entries, want 3", len(got))
	}
}

func TestRuntimeInitAllSkipsDisabled(t *testing.T) {
	rt := NewRuntime(nil)
	running := newFakeSource("a", CategoryCalendar)
	disabled := newFakeSource("b", CategoryCalendar)
	disabled.Disable()
	for _, p := range []Plugin{running, disabled} {
		if err := rt.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	rt.InitAll(context.Background())
	if running.inits != 1 {
		t.Fatalf("enabled instance inits = %d, want 1", running.inits)
	}
	if disabled.inits != 0 {
		t.Fatalf("disabled instance inits = %d, want 0", disabled.inits)
	}
}

func TestRuntimeInitAllIsolatesPanics(t *testing.T) {
	rt := NewRuntime(nil)
	broken := newFakeSource("a", CategoryCalendar)
	broken.panicOn = true
	healthy := newFakeSource("b", CategoryCalendar)
	for _, p := range []Plugin{broken, healthy} {
		if err := rt.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	rt.InitAll(context.Background())
	if healthy.inits != 1 {
		t.Fatalf("healthy instance inits = %d, want 1 despite the panic", healthy.inits)
	}
}

func TestRuntimeCleanupAllIncludesDisabled(t *testing.T) {
	rt := NewRuntime(nil)
	running := newFakeSource("a", CategoryCalendar)
	disabled := newFakeSource("b", CategoryCalendar)
	disabled.Disable()
	for _, p := range []Plugin{running, disabled} {
		if err := rt.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	rt.CleanupAll(context.Background())
	if running.cleanups != 1 || disabled.cleanups != 1 {
		t.Fatalf("cleanups = %d/%d, want 1/1", running.cleanups, disabled.cleanups)
	}
}

package overlay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureResolvesOnce(t *testing.T) {
	f := newFuture[int]()
	if !f.resolve(1) {
		t.Fatal("expected first resolve to succeed")
	}
	if f.resolve(2) || f.abandon() {
		t.Fatal("a settled future must not change")
	}
	v, err := f.Wait(context.Background())
	if err != nil || v != 1 {
		t.Errorf("expected 1, got %d (%v)", v, err)
	}
	if isClosed(f.Abandoned()) {
		t.Error("resolved future reports abandoned")
	}
}

func TestFutureWaitHonorsContext(t *testing.T) {
	f := newFuture[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestThen(t *testing.T) {
	f := newFuture[int]()
	doubled := Then(f, func(v int) int { return v * 2 })
	f.resolve(21)

	if v, ok := doubled.Result(); !ok || v != 42 {
		t.Errorf("expected 42, got %d (%v)", v, ok)
	}

	late := Then(f, func(v int) string { return "late" })
	if v, ok := late.Result(); !ok || v != "late" {
		t.Error("expected chaining on a resolved future to resolve immediately")
	}
}

func TestThenPropagatesAbandon(t *testing.T) {
	f := newFuture[int]()
	called := false
	next := Then(f, func(v int) int { called = true; return v })
	f.abandon()

	if !isClosed(next.Abandoned()) {
		t.Error("expected chained future abandoned")
	}
	if called {
		t.Error("continuation ran for an abandoned future")
	}
	if !isClosed(Then(f, func(v int) int { return v }).Abandoned()) {
		t.Error("expected chaining on an abandoned future to abandon")
	}
}

func TestHighlightOpacitiesAllocatesExactly(t *testing.T) {
	snap := []Opacity{{"a", 1, 1}, {"b", 0.5, 0.5}}
	fill, stroke := HighlightOpacities(Target{AnnotationID: "x", ElementID: "b"}, "x", snap)
	if cap(fill) != 2 || cap(stroke) != 2 {
		t.Errorf("expected exact capacity, got %d/%d", cap(fill), cap(stroke))
	}
	if fill[0] != 0.25 || fill[1] != 0.5 {
		t.Errorf("unexpected fill %v", fill)
	}
}

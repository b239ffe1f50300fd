package overlay

import (
	"context"
	"errors"
	"sync"
)

// ErrAbandoned is returned by Future.Wait when the draw session that owned
// the future was superseded or torn down before completing.
var ErrAbandoned = errors.New("draw session abandoned")

// Future is a single-resolution result. It settles at most once: either it
// resolves with a value or it is abandoned, in which case no value is ever
// delivered.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	abandoned chan struct{}
	settled   bool
	resolved  bool
	value     T

	onResolve []func(T)
	onAbandon []func()
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		done:      make(chan struct{}),
		abandoned: make(chan struct{}),
	}
}

// AbandonedFuture returns a future that will never resolve.
func AbandonedFuture[T any]() *Future[T] {
	f := newFuture[T]()
	f.abandon()
	return f
}

// Done is closed when the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Abandoned is closed when the future is dropped without a value.
func (f *Future[T]) Abandoned() <-chan struct{} {
	return f.abandoned
}

// Result returns the value and whether the future has resolved.
func (f *Future[T]) Result() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.resolved
}

// Wait blocks until the future resolves, is abandoned or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-f.done:
		v, _ := f.Result()
		return v, nil
	case <-f.abandoned:
		return zero, ErrAbandoned
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (f *Future[T]) resolve(v T) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.resolved = true
	f.value = v
	hooks := f.onResolve
	f.onResolve, f.onAbandon = nil, nil
	close(f.done)
	f.mu.Unlock()

	for _, h := range hooks {
		h(v)
	}
	return true
}

func (f *Future[T]) abandon() bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	hooks := f.onAbandon
	f.onResolve, f.onAbandon = nil, nil
	close(f.abandoned)
	f.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	return true
}

// Then returns a future resolved with fn applied to f's value. Abandoning
// f abandons the returned future. fn runs synchronously in the resolving
// call.
func Then[T, U any](f *Future[T], fn func(T) U) *Future[U] {
	next := newFuture[U]()

	f.mu.Lock()
	switch {
	case f.resolved:
		v := f.value
		f.mu.Unlock()
		next.resolve(fn(v))
	case f.settled:
		f.mu.Unlock()
		next.abandon()
	default:
		f.onResolve = append(f.onResolve, func(v T) { next.resolve(fn(v)) })
		f.onAbandon = append(f.onAbandon, func() { next.abandon() })
		f.mu.Unlock()
	}
	return next
}

package loom

import (
	"sync"

	"github.com/AnatoleLucet/loom/internal"
)

// Waitable is anything a component can suspend on.
type Waitable = internal.Waitable

// Suspend returns the error a render function returns to wait for w. The
// nearest Suspense boundary shows its fallback until w settles.
func Suspend(w Waitable) error {
	return &internal.SuspendError{Waitable: w}
}

// IsSuspended reports whether err is a suspension.
func IsSuspended(err error) bool {
	var se *internal.SuspendError
	return asError(err, &se)
}

type resourceState int

const (
	resourcePending resourceState = iota
	resourceResolved
	resourceRejected
)

// Resource is a value that becomes available later. Reading it before it
// settles suspends the reading component. Resolve and Reject may be called
// from any goroutine.
type Resource[T any] struct {
	mu      sync.Mutex
	state   resourceState
	value   T
	err     error
	waiters []func()
}

func NewResource[T any]() *Resource[T] {
	return &Resource[T]{}
}

// Read returns the value, the rejection error, or a suspension while the
// resource is pending.
func (r *Resource[T]) Read() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case resourceResolved:
		return r.value, nil
	case resourceRejected:
		var zero T
		return zero, r.err
	default:
		var zero T
		return zero, Suspend(r)
	}
}

func (r *Resource[T]) Resolve(v T) {
	r.settle(func() {
		r.state = resourceResolved
		r.value = v
	})
}

func (r *Resource[T]) Reject(err error) {
	r.settle(func() {
		r.state = resourceRejected
		r.err = err
	})
}

func (r *Resource[T]) settle(apply func()) {
	r.mu.Lock()
	if r.state != resourcePending {
		r.mu.Unlock()
		return
	}
	apply()
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// OnSettle calls fn once the resource is resolved or rejected, right away if
// it already is.
func (r *Resource[T]) OnSettle(fn func()) {
	r.mu.Lock()
	if r.state == resourcePending {
		r.waiters = append(r.waiters, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn()
}

package scheduler

import "sync"

// ingressQueue receives work posted from goroutines other than the one
// driving the scheduler. It is the only part of the scheduler that is safe
// for concurrent use.
type ingressQueue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{} // buffered, size 1, coalesces wakeups
}

func newIngressQueue() *ingressQueue {
	return &ingressQueue{
		items:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

func (q *ingressQueue) Enqueue(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Drain takes every queued item, leaving the queue empty.
func (q *ingressQueue) Drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	items := q.items
	q.items = make([]func(), 0, cap(items))
	return items
}

func (q *ingressQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *ingressQueue) Wait() <-chan struct{} {
	return q.signal
}

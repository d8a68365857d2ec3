package scheduler

import "container/heap"

// taskHeap is a min-heap of tasks. The ready queue orders by expiration
// time, the timer queue by start time, both falling back to insertion id so
// equal keys keep FIFO order.
type taskHeap struct {
	tasks  []*Task
	byTime func(*Task) int64
}

func newTaskHeap(key func(*Task) int64) *taskHeap {
	return &taskHeap{byTime: key}
}

func (h *taskHeap) Len() int { return len(h.tasks) }

func (h *taskHeap) Less(i, j int) bool {
	a, b := h.tasks[i], h.tasks[j]
	ka, kb := h.byTime(a), h.byTime(b)
	if ka != kb {
		return ka < kb
	}
	return a.id < b.id
}

func (h *taskHeap) Swap(i, j int) {
	h.tasks[i], h.tasks[j] = h.tasks[j], h.tasks[i]
	h.tasks[i].index = i
	h.tasks[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(h.tasks)
	h.tasks = append(h.tasks, t)
}

func (h *taskHeap) Pop() any {
	old := h.tasks
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	h.tasks = old[:n-1]
	return t
}

func (h *taskHeap) push(t *Task) { heap.Push(h, t) }

func (h *taskHeap) peek() *Task {
	if len(h.tasks) == 0 {
		return nil
	}
	return h.tasks[0]
}

func (h *taskHeap) pop() *Task {
	if len(h.tasks) == 0 {
		return nil
	}
	return heap.Pop(h).(*Task)
}

// remove drops t from the heap in O(log n) if it is still queued here.
func (h *taskHeap) remove(t *Task) bool {
	if t.index < 0 || t.index >= len(h.tasks) || h.tasks[t.index] != t {
		return false
	}
	heap.Remove(h, t.index)
	return true
}

func startKey(t *Task) int64      { return t.startTime.UnixNano() }
func expirationKey(t *Task) int64 { return t.expirationTime.UnixNano() }

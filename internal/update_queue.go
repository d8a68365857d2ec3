package internal

type UpdateTag uint8

const (
	ReplaceState UpdateTag = iota
	MergeState
	ForceRerun
	CaptureError
)

// StateFunc computes the next state from the previous one and the node's
// current props.
type StateFunc func(prev any, props any) any

// Update is a pending state change. Payload is either a value or a
// StateFunc.
type Update struct {
	expiration ExpirationTime
	tag        UpdateTag
	payload    any
	callback   func() error

	next *Update
}

type sharedQueue struct {
	pending *Update // ring, points at the last update
}

// UpdateQueue is the state machine of a root or stateful unit. The pending
// ring is shared by both buffers so an update enqueued on either is seen by
// the next render of the node.
type UpdateQueue struct {
	baseState any
	baseQueue *Update // ring of updates skipped by earlier renders
	shared    *sharedQueue

	// updates processed by this render that carry a commit callback
	callbacks []*Update
}

func newUpdateQueue(state any) *UpdateQueue {
	return &UpdateQueue{
		baseState: state,
		shared:    &sharedQueue{},
	}
}

// cloneUpdateQueue gives wip a queue of its own so processing does not
// mutate the committed buffer's base state.
func cloneUpdateQueue(current, wip *Node) {
	q := wip.updateQueue
	if current == nil || q == nil || q != current.updateQueue {
		return
	}
	wip.updateQueue = &UpdateQueue{
		baseState: q.baseState,
		baseQueue: q.baseQueue,
		shared:    q.shared,
	}
}

// appendRing splices ring b after ring a and returns the merged ring's last
// entry.
func appendRing(a, b *Update) *Update {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	aFirst := a.next
	a.next = b.next
	b.next = aFirst
	return b
}

func enqueueUpdate(n *Node, u *Update) bool {
	q := n.updateQueue
	if q == nil {
		return false
	}

	u.next = u
	q.shared.pending = appendRing(q.shared.pending, u)
	return true
}

// enqueueCapturedUpdate adds u to the work-in-progress base queue only, so
// it is dropped if the render is discarded.
func enqueueCapturedUpdate(wip *Node, u *Update) {
	cloneUpdateQueue(wip.alternate(), wip)

	q := wip.updateQueue
	u.next = u
	q.baseQueue = appendRing(q.baseQueue, u)
}

// processUpdateQueue applies every update at or above renderExp in
// insertion order. Updates below renderExp stay in the base queue together
// with every update after the first skipped one, so a later render replays
// them on top of the same base state.
func (r *Root) processUpdateQueue(wip *Node, props any, renderExp ExpirationTime) {
	q := wip.updateQueue
	r.hasForceUpdate = false

	if pending := q.shared.pending; pending != nil {
		q.shared.pending = nil
		q.baseQueue = appendRing(q.baseQueue, pending)

		if current := wip.alternate(); current != nil && current.updateQueue != nil && current.updateQueue != q {
			current.updateQueue.baseQueue = q.baseQueue
		}
	}

	q.callbacks = nil
	if q.baseQueue == nil {
		wip.committedState = q.baseState
		return
	}

	var (
		first     = q.baseQueue.next
		state     = q.baseState
		baseState any
		baseLast  *Update
		remaining = NoWork
	)

	for u := first; ; {
		if u.expiration < renderExp {
			clone := *u
			if baseLast == nil {
				baseState = state
			}
			baseLast = appendRing(baseLast, ring(&clone))
			if u.expiration > remaining {
				remaining = u.expiration
			}
		} else {
			if baseLast != nil {
				// already applied once, it must never be skipped on replay
				clone := *u
				clone.expiration = Sync
				baseLast = appendRing(baseLast, ring(&clone))
			}

			state = r.stateFromUpdate(wip, u, state, props)
			if u.callback != nil {
				wip.flags.set(Callback)
				q.callbacks = append(q.callbacks, u)
			}
		}

		u = u.next
		if u == first {
			break
		}
	}

	if baseLast == nil {
		baseState = state
	}

	q.baseState = baseState
	q.baseQueue = baseLast
	wip.expiration = remaining
	wip.committedState = state
}

func ring(u *Update) *Update {
	u.next = u
	return u
}

func (r *Root) stateFromUpdate(wip *Node, u *Update, prev any, props any) any {
	switch u.tag {
	case CaptureError:
		wip.flags.replace(ShouldCapture, DidCapture)
		return applyPayload(u.payload, prev, props)
	case ReplaceState:
		return applyPayload(u.payload, prev, props)
	case MergeState:
		partial := applyPayload(u.payload, prev, props)
		if partial == nil {
			return prev
		}
		return mergeState(prev, partial)
	case ForceRerun:
		r.hasForceUpdate = true
	}
	return prev
}

func applyPayload(payload, prev, props any) any {
	if fn, ok := payload.(StateFunc); ok {
		return fn(prev, props)
	}
	return payload
}

// mergeState shallow-merges partial into a copy of prev. Non-map states are
// replaced.
func mergeState(prev, partial any) any {
	p, ok := partial.(State)
	if !ok {
		return partial
	}
	old, _ := prev.(State)

	next := make(State, len(old)+len(p))
	for k, v := range old {
		next[k] = v
	}
	for k, v := range p {
		next[k] = v
	}
	return next
}

// commitUpdateQueue runs the callbacks collected while processing the
// queue. Every callback runs; the first error is returned.
func commitUpdateQueue(q *UpdateQueue) error {
	if q == nil {
		return nil
	}
	callbacks := q.callbacks
	q.callbacks = nil

	var first error
	for _, u := range callbacks {
		cb := u.callback
		u.callback = nil
		if cb == nil {
			continue
		}
		if err := callSafely(cb); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func callSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorFromPanic(r)
		}
	}()
	return fn()
}

package internal

import (
	"github.com/sirupsen/logrus"
)

// Scope is handed to a component while it renders. Hooks called through a
// scope whose render has finished fail with HOOK_OUTSIDE_RENDER.
type Scope struct {
	tracker *Tracker
	node    *Node
}

func (s *Scope) active() *Tracker {
	if s == nil || s.tracker == nil || s.tracker.node != s.node {
		panic(&ContractError{Code: ErrCodeHookOutsideRender, Message: "hook called outside of its component's render"})
	}
	return s.tracker
}

type Reducer func(state, action any) any

type hookUpdate struct {
	expiration ExpirationTime
	action     any

	hasEager   bool
	eagerState any

	next *hookUpdate
}

// hookQueue is shared by both buffers of the owning node.
type hookQueue struct {
	root    *Root
	node    *Node
	pending *hookUpdate // ring, points at the last update

	lastReducer       Reducer
	lastRenderedState any
	basic             bool

	dispatch func(action any)
}

func appendHookRing(a, b *hookUpdate) *hookUpdate {
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

func basicStateReducer(state, action any) any {
	if fn, ok := action.(func(any) any); ok {
		return fn(state)
	}
	return action
}

// renderWithHooks runs a function component, replaying it while it keeps
// dispatching to itself during render.
func (r *Root) renderWithHooks(current, wip *Node, typ *ComponentType, props any, renderExp ExpirationTime) (el *Element, err error) {
	t := r.tracker

	wip.hookEffects = nil
	wip.committedState = nil

	t.RunWithNode(current, wip, renderExp, func() {
		el, err = typ.Render(t.scope, props)

		for t.didScheduleRenderPhaseUpdate {
			t.didScheduleRenderPhaseUpdate = false
			t.numberRerender++
			if t.numberRerender > maxRenderPhaseUpdates {
				panic(contractError(ErrCodeTooManyRerenders, wip, "too many re-renders, the component keeps updating itself while rendering"))
			}

			t.rerendering = true
			t.resetCursors(current)
			wip.hookEffects = nil

			el, err = typ.Render(t.scope, props)
		}
		if err != nil {
			return
		}

		t.checkExhausted()

		wip.committedState = t.firstWorkCell
		wip.expiration = t.remaining
		wip.flags.set(t.effectFlags)
	})

	return el, err
}

// bailoutHooks undoes the effects of a render whose output is reused.
func bailoutHooks(current, wip *Node, renderExp ExpirationTime) {
	wip.hookEffects = current.hookEffects
	wip.committedState = current.committedState
	wip.flags.clear(Passive | UpdateEffect)
	if current.expiration <= renderExp {
		current.expiration = NoWork
	}
}

func (s *Scope) UseReducer(reducer Reducer, initial any) (any, func(action any)) {
	t := s.active()
	return t.root().useReducer(t, reducer, initial, false)
}

func (s *Scope) UseState(initial any) (any, func(action any)) {
	t := s.active()
	return t.root().useReducer(t, basicStateReducer, initial, true)
}

func (t *Tracker) root() *Root {
	return t.owner
}

func (r *Root) useReducer(t *Tracker, reducer Reducer, initial any, basic bool) (any, func(action any)) {
	c := t.nextCell(cellReducer)

	if c.queue == nil {
		if fn, ok := initial.(func() any); ok {
			initial = fn()
		}
		c.memoizedState = initial
		c.baseState = initial

		q := &hookQueue{
			root:              r,
			node:              t.node,
			lastReducer:       reducer,
			lastRenderedState: initial,
			basic:             basic,
		}
		q.dispatch = func(action any) { r.dispatchAction(q, action) }
		c.queue = q
		return initial, q.dispatch
	}

	q := c.queue
	q.lastReducer = reducer

	if t.rerendering {
		if first, ok := t.renderPhaseUpdates[q]; ok {
			delete(t.renderPhaseUpdates, q)

			state := c.memoizedState
			for u := first; u != nil; u = u.next {
				state = reducer(state, u.action)
			}
			if !isEqual(state, c.memoizedState) {
				r.didReceiveUpdate = true
			}
			c.memoizedState = state
			if c.baseQueue == nil {
				c.baseState = state
			}
			q.lastRenderedState = state
		}
		return c.memoizedState, q.dispatch
	}

	if pending := q.pending; pending != nil {
		q.pending = nil
		c.baseQueue = appendHookRing(c.baseQueue, pending)
		if t.lastCurrent != nil {
			t.lastCurrent.baseQueue = c.baseQueue
		}
	}

	if c.baseQueue == nil {
		return c.memoizedState, q.dispatch
	}

	var (
		first     = c.baseQueue.next
		state     = c.baseState
		baseState any
		baseLast  *hookUpdate
	)

	for u := first; ; {
		if u.expiration < t.renderExp {
			clone := &hookUpdate{expiration: u.expiration, action: u.action, hasEager: u.hasEager, eagerState: u.eagerState}
			clone.next = clone
			if baseLast == nil {
				baseState = state
			}
			baseLast = appendHookRing(baseLast, clone)
			if u.expiration > t.remaining {
				t.remaining = u.expiration
			}
		} else {
			if baseLast != nil {
				clone := &hookUpdate{expiration: Sync, action: u.action}
				clone.next = clone
				baseLast = appendHookRing(baseLast, clone)
			}

			// eager states are only valid for the fixed state reducer
			if u.hasEager && basic {
				state = u.eagerState
			} else {
				state = reducer(state, u.action)
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
	if !isEqual(state, c.memoizedState) {
		r.didReceiveUpdate = true
	}

	c.memoizedState = state
	c.baseState = baseState
	c.baseQueue = baseLast
	q.lastRenderedState = state

	return state, q.dispatch
}

// dispatchAction enqueues action on q. Calls from other goroutines are
// handed to the loop; calls made while the owning node renders are replayed
// before the render returns.
func (r *Root) dispatchAction(q *hookQueue, action any) {
	if !r.sched.OnLoop() {
		r.sched.Post(func() { r.dispatchAction(q, action) })
		return
	}

	node := q.node
	if !node.live() {
		r.log.WithFields(logrus.Fields{
			"code":      ErrCodeUpdateOnUnmounted,
			"component": node.componentName(),
		}).Warn("state update on an unmounted component is ignored")
		return
	}

	t := r.tracker
	alt := node.alternate()
	if t.node != nil && (t.node == node || t.node == alt) {
		t.didScheduleRenderPhaseUpdate = true
		u := &hookUpdate{expiration: t.renderExp, action: action}
		if t.renderPhaseUpdates == nil {
			t.renderPhaseUpdates = make(map[*hookQueue]*hookUpdate)
		}
		if first, ok := t.renderPhaseUpdates[q]; ok {
			last := first
			for last.next != nil {
				last = last.next
			}
			last.next = u
		} else {
			t.renderPhaseUpdates[q] = u
		}
		return
	}

	exp := r.computeExpirationForNode(r.requestCurrentTime())
	u := &hookUpdate{expiration: exp, action: action}
	u.next = u

	if node.expiration == NoWork && (alt == nil || alt.expiration == NoWork) && q.lastReducer != nil {
		// nothing pending on the node: the next state can be computed now
		if eager, ok := eagerReduce(q.lastReducer, q.lastRenderedState, action); ok {
			u.hasEager = true
			u.eagerState = eager
			if isEqual(eager, q.lastRenderedState) {
				q.pending = appendHookRing(q.pending, u)
				return
			}
		}
	}

	q.pending = appendHookRing(q.pending, u)
	r.scheduleWorkLogged(node, exp)
}

// eagerReduce runs the reducer ahead of render. A panicking reducer is
// retried during render where the error can be routed.
func eagerReduce(reducer Reducer, state, action any) (next any, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return reducer(state, action), true
}

type hookEffectTag uint8

const (
	effectHasEffect hookEffectTag = 1 << iota
	effectLayout
	effectPassive
)

type hookEffect struct {
	tag     hookEffectTag
	create  func() func()
	destroy func()
	deps    []any

	next *hookEffect
}

func (t *Tracker) pushEffect(tag hookEffectTag, create func() func(), destroy func(), deps []any) *hookEffect {
	e := &hookEffect{tag: tag, create: create, destroy: destroy, deps: deps}
	n := t.node
	if n.hookEffects == nil {
		e.next = e
	} else {
		e.next = n.hookEffects.next
		n.hookEffects.next = e
	}
	n.hookEffects = e
	return e
}

func (s *Scope) UseEffect(create func() func(), deps []any) {
	s.active().useEffect(UpdateEffect|Passive, effectPassive, create, deps)
}

func (s *Scope) UseLayoutEffect(create func() func(), deps []any) {
	s.active().useEffect(UpdateEffect, effectLayout, create, deps)
}

func (t *Tracker) useEffect(flags EffectFlags, tag hookEffectTag, create func() func(), deps []any) {
	c := t.nextCell(cellEffect)

	var destroy func()
	if t.lastCurrent != nil {
		prev := t.lastCurrent.memoizedState.(*hookEffect)
		destroy = prev.destroy
		if deps != nil && depsEqual(deps, prev.deps) {
			c.memoizedState = t.pushEffect(tag, create, destroy, deps)
			return
		}
	}

	t.effectFlags.set(flags)
	c.memoizedState = t.pushEffect(effectHasEffect|tag, create, destroy, deps)
}

type memoState struct {
	value any
	deps  []any
}

func (s *Scope) UseMemo(compute func() any, deps []any) any {
	t := s.active()
	c := t.nextCell(cellMemo)

	if prev, ok := c.memoizedState.(memoState); ok && deps != nil && depsEqual(deps, prev.deps) {
		return prev.value
	}

	v := compute()
	c.memoizedState = memoState{value: v, deps: deps}
	return v
}

func (s *Scope) UseRef(initial any) *Ref {
	t := s.active()
	c := t.nextCell(cellRef)

	if ref, ok := c.memoizedState.(*Ref); ok {
		return ref
	}
	ref := &Ref{Current: initial}
	c.memoizedState = ref
	return ref
}

func (s *Scope) UseContext(ctx *ContextType) any {
	t := s.active()
	return t.root().readContext(ctx)
}

// Root returns the root rendering the scope's component.
func (s *Scope) Root() *Root {
	return s.active().root()
}

// commitHookEffects runs, for every effect of n matching tag, the destroy
// function and then, for mount, the create function. Errors are collected
// per effect so one failing effect does not stop the others.
func (r *Root) commitHookEffects(n *Node, tag hookEffectTag, mount bool) {
	last := n.hookEffects
	if last == nil {
		return
	}

	e := last.next
	for {
		if e.tag&tag == tag {
			if mount {
				create := e.create
				if err := callSafely(func() error {
					e.destroy = create()
					return nil
				}); err != nil {
					r.captureCommitPhaseError(n, err)
				}
			} else if destroy := e.destroy; destroy != nil {
				e.destroy = nil
				if err := callSafely(func() error {
					destroy()
					return nil
				}); err != nil {
					r.captureCommitPhaseError(n, err)
				}
			}
		}

		e = e.next
		if e == last.next {
			return
		}
	}
}

package internal

// beginWork renders wip and returns its first child to walk next, or nil
// when the subtree below wip needs no work.
func (r *Root) beginWork(current, wip *Node, renderExp ExpirationTime) (*Node, error) {
	if current != nil {
		if current.committedProps != wip.pendingProps {
			r.didReceiveUpdate = true
		} else if wip.expiration < renderExp {
			r.didReceiveUpdate = false
			// providers still need to be on the stack for the children we
			// may descend into
			if wip.Kind == ContextProvider {
				r.contexts.Push(wip.Type.(*ContextType), providerValue(wip.committedProps))
			}
			return r.bailout(current, wip, renderExp), nil
		} else {
			r.didReceiveUpdate = false
		}
	} else {
		r.didReceiveUpdate = false
	}

	wip.expiration = NoWork

	switch wip.Kind {
	case HostRoot:
		return r.updateHostRoot(current, wip, renderExp), nil
	case HostComponent:
		markRef(current, wip)
		r.reconcileChildren(current, wip, wip.pendingProps.Children, renderExp)
		return wip.child, nil
	case HostText:
		return nil, nil
	case Fragment, HostPortal:
		r.reconcileChildren(current, wip, wip.pendingProps.Children, renderExp)
		return wip.child, nil
	case FunctionComponent:
		return r.updateFunctionComponent(current, wip, renderExp)
	case StatefulComponent:
		return r.updateStatefulComponent(current, wip, renderExp)
	case ErrorBoundary:
		return r.updateErrorBoundary(current, wip, renderExp), nil
	case SuspenseBoundary:
		return r.updateSuspenseBoundary(current, wip, renderExp), nil
	case ContextProvider:
		return r.updateContextProvider(current, wip, renderExp), nil
	case ContextConsumer:
		return r.updateContextConsumer(current, wip, renderExp), nil
	}

	return nil, nil
}

// bailout reuses current's output for wip. Children are cloned only when
// one of them has pending work.
func (r *Root) bailout(current, wip *Node, renderExp ExpirationTime) *Node {
	if current != nil {
		wip.contextDeps = current.contextDeps
	}
	if wip.childExpiration < renderExp {
		return nil
	}
	cloneChildNodes(wip)
	return wip.child
}

func markRef(current, wip *Node) {
	if (current == nil && wip.ref != nil) || (current != nil && current.ref != wip.ref) {
		wip.flags.set(RefEffect)
	}
}

type rootState struct {
	element *Element
}

func (r *Root) updateHostRoot(current, wip *Node, renderExp ExpirationTime) *Node {
	prev, _ := wip.committedState.(*rootState)

	cloneUpdateQueue(current, wip)
	r.processUpdateQueue(wip, nil, renderExp)

	next, _ := wip.committedState.(*rootState)
	if next == nil {
		next = &rootState{}
	}

	if prev != nil && prev.element == next.element && !wip.flags.Has(DidCapture) {
		return r.bailout(current, wip, renderExp)
	}

	r.reconcileChildren(current, wip, childrenOf(next.element), renderExp)
	return wip.child
}

func (r *Root) updateFunctionComponent(current, wip *Node, renderExp ExpirationTime) (*Node, error) {
	typ := wip.Type.(*ComponentType)

	r.prepareToReadContext(wip, renderExp)
	el, err := r.renderWithHooks(current, wip, typ, wip.pendingProps.Props, renderExp)
	r.tracker.readingNode = nil
	if err != nil {
		return nil, err
	}

	if current != nil && !r.didReceiveUpdate {
		bailoutHooks(current, wip, renderExp)
		return r.bailout(current, wip, renderExp), nil
	}

	wip.flags.set(PerformedWork)
	r.reconcileChildren(current, wip, childrenOf(el), renderExp)
	return wip.child, nil
}

type errorBoundaryState struct {
	err error
}

func (r *Root) updateErrorBoundary(current, wip *Node, renderExp ExpirationTime) *Node {
	props := wip.pendingProps.Props.(ErrorBoundaryProps)

	if wip.updateQueue == nil {
		wip.updateQueue = newUpdateQueue(nil)
	}
	cloneUpdateQueue(current, wip)
	r.processUpdateQueue(wip, props, renderExp)

	captured := wip.flags.Has(DidCapture)

	var children []*Element
	if state, ok := wip.committedState.(*errorBoundaryState); ok && state.err != nil {
		if props.Fallback != nil {
			reset := r.boundaryReset(wip)
			children = childrenOf(props.Fallback(state.err, reset))
		}
	} else {
		children = wip.pendingProps.Children
	}

	wip.flags.set(PerformedWork)
	if captured {
		r.forceUnmountCurrentAndReconcile(current, wip, children, renderExp)
	} else {
		r.reconcileChildren(current, wip, children, renderExp)
	}
	return wip.child
}

// boundaryReset returns a function that clears the captured error of the
// boundary owning n.
func (r *Root) boundaryReset(n *Node) func() {
	return func() {
		if !r.sched.OnLoop() {
			r.sched.Post(r.boundaryReset(n))
			return
		}
		if !n.live() {
			return
		}
		exp := r.computeExpirationForNode(r.requestCurrentTime())
		enqueueUpdate(n, &Update{expiration: exp, tag: ReplaceState, payload: &errorBoundaryState{}})
		r.scheduleWorkLogged(n, exp)
	}
}

type suspenseState struct {
	timedOut bool
}

const (
	primaryKey  = "\x00primary"
	fallbackKey = "\x00fallback"
)

// updateSuspenseBoundary renders either the primary children or the
// fallback, each wrapped in a keyed fragment so switching between them
// remounts the other side.
func (r *Root) updateSuspenseBoundary(current, wip *Node, renderExp ExpirationTime) *Node {
	props := wip.pendingProps.Props.(SuspenseProps)

	var child *Element
	if wip.flags.Has(DidCapture) {
		wip.committedState = &suspenseState{timedOut: true}
		wip.flags.clear(DidCapture)
		child = &Element{Kind: Fragment, Key: fallbackKey, Children: childrenOf(props.Fallback)}
	} else {
		wip.committedState = nil
		child = &Element{Kind: Fragment, Key: primaryKey, Children: wip.pendingProps.Children}
	}

	r.reconcileChildren(current, wip, []*Element{child}, renderExp)
	return wip.child
}

func providerValue(el *Element) any {
	if el == nil {
		return nil
	}
	return el.Props.(ProviderProps).Value
}

func (r *Root) updateContextProvider(current, wip *Node, renderExp ExpirationTime) *Node {
	ctx := wip.Type.(*ContextType)
	value := providerValue(wip.pendingProps)
	r.contexts.Push(ctx, value)

	if current != nil && !isEqual(providerValue(current.committedProps), value) {
		r.propagateContextChange(wip, ctx, renderExp)
	}

	r.reconcileChildren(current, wip, wip.pendingProps.Children, renderExp)
	return wip.child
}

func (r *Root) updateContextConsumer(current, wip *Node, renderExp ExpirationTime) *Node {
	ctx := wip.Type.(*ContextType)
	props := wip.pendingProps.Props.(ConsumerProps)

	r.prepareToReadContext(wip, renderExp)
	value := r.readContext(ctx)
	r.tracker.readingNode = nil

	wip.flags.set(PerformedWork)
	r.reconcileChildren(current, wip, childrenOf(props.Render(value)), renderExp)
	return wip.child
}

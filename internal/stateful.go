package internal

// State is the state of a stateful unit. SetState merges into it.
type State map[string]any

// Stateful is a render unit that keeps its state on an Instance and can hook
// into the commit phase by implementing the optional interfaces below.
type Stateful interface {
	Render(inst *Instance) (*Element, error)
}

type Mounter interface {
	DidMount(inst *Instance) error
}

type Updater interface {
	DidUpdate(inst *Instance, prevProps any, prevState State, snapshot any) error
}

type Unmounter interface {
	WillUnmount(inst *Instance) error
}

// Snapshotter reads from the host tree right before it is mutated. The
// returned value is handed to DidUpdate.
type Snapshotter interface {
	SnapshotBeforeUpdate(inst *Instance, prevProps any, prevState State) (any, error)
}

// UpdateGate lets a unit skip re-rendering when props or state changed in a
// way it does not care about.
type UpdateGate interface {
	ShouldUpdate(inst *Instance, nextProps any, nextState State) bool
}

// ErrorCatcher turns a stateful unit into an error boundary.
type ErrorCatcher interface {
	DerivedStateFromError(err error) State
	DidCatch(inst *Instance, err error)
}

type StatefulType struct {
	Name         string
	New          func(props any) Stateful
	InitialState func(props any) State
}

// Instance is the long lived handle of a stateful unit. Both buffers of the
// node share it.
type Instance struct {
	Props any
	State State

	unit     Stateful
	root     *Root
	node     *Node
	snapshot any
}

func (i *Instance) Unit() Stateful {
	return i.unit
}

// SetState merges partial into the state.
func (i *Instance) SetState(partial State, callback func() error) {
	i.enqueue(MergeState, partial, callback)
}

// SetStateFunc merges the result of fn, computed against the latest state.
func (i *Instance) SetStateFunc(fn func(prev State, props any) State, callback func() error) {
	i.enqueue(MergeState, StateFunc(func(prev, props any) any {
		s, _ := prev.(State)
		return fn(s, props)
	}), callback)
}

func (i *Instance) ReplaceState(state State, callback func() error) {
	i.enqueue(ReplaceState, state, callback)
}

func (i *Instance) ForceUpdate(callback func() error) {
	i.enqueue(ForceRerun, nil, callback)
}

func (i *Instance) enqueue(tag UpdateTag, payload any, callback func() error) {
	r := i.root
	if !r.sched.OnLoop() {
		r.sched.Post(func() { i.enqueue(tag, payload, callback) })
		return
	}

	n := i.node
	if n == nil || !n.live() {
		r.log.WithField("code", ErrCodeUpdateOnUnmounted).Warn("state update on an unmounted component is ignored")
		return
	}

	exp := r.computeExpirationForNode(r.requestCurrentTime())
	enqueueUpdate(n, &Update{expiration: exp, tag: tag, payload: payload, callback: callback})
	r.scheduleWorkLogged(n, exp)
}

func (r *Root) updateStatefulComponent(current, wip *Node, renderExp ExpirationTime) (*Node, error) {
	typ := wip.Type.(*StatefulType)
	props := wip.pendingProps.Props

	var shouldUpdate bool
	inst, _ := wip.stateNode.(*Instance)

	if inst == nil {
		var state State
		if typ.InitialState != nil {
			state = typ.InitialState(props)
		}
		inst = &Instance{
			Props: props,
			State: state,
			unit:  typ.New(props),
			root:  r,
			node:  wip,
		}
		wip.stateNode = inst
		wip.updateQueue = newUpdateQueue(state)

		r.processUpdateQueue(wip, props, renderExp)
		inst.State, _ = wip.committedState.(State)

		if _, ok := inst.unit.(Mounter); ok {
			wip.flags.set(UpdateEffect)
		}
		shouldUpdate = true
	} else {
		// current is nil when a unit that failed its first render is
		// rendered again to recover
		oldState := inst.State
		sameProps := false
		if current != nil {
			oldState, _ = current.committedState.(State)
			sameProps = current.committedProps == wip.pendingProps
		}

		cloneUpdateQueue(current, wip)
		r.processUpdateQueue(wip, props, renderExp)
		newState, _ := wip.committedState.(State)

		switch {
		case sameProps && isEqual(oldState, newState) && !r.hasForceUpdate && !wip.flags.Has(DidCapture):
			shouldUpdate = false
		case r.hasForceUpdate:
			shouldUpdate = true
		default:
			shouldUpdate = true
			if gate, ok := inst.unit.(UpdateGate); ok {
				shouldUpdate = gate.ShouldUpdate(inst, props, newState)
			}
		}

		if shouldUpdate {
			if _, ok := inst.unit.(Updater); ok {
				wip.flags.set(UpdateEffect)
			}
			if _, ok := inst.unit.(Snapshotter); ok {
				wip.flags.set(Snapshot)
			}
		}

		inst.Props = props
		inst.State = newState
	}
	inst.node = wip

	markRef(current, wip)

	captured := wip.flags.Has(DidCapture)
	if !shouldUpdate && !captured {
		return r.bailout(current, wip, renderExp), nil
	}

	el, err := inst.unit.Render(inst)
	if err != nil {
		return nil, err
	}

	wip.flags.set(PerformedWork)
	if captured {
		r.forceUnmountCurrentAndReconcile(current, wip, childrenOf(el), renderExp)
	} else {
		r.reconcileChildren(current, wip, childrenOf(el), renderExp)
	}
	wip.committedState = inst.State
	return wip.child, nil
}

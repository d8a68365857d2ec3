package internal

import (
	"github.com/sirupsen/logrus"
)

// throwException routes a value thrown while rendering source. Suspensions
// go to the nearest boundary showing its primary children; errors go to the
// nearest error boundary that has not already captured during this pass,
// falling back to the root.
func (r *Root) throwException(returnNode, source *Node, value error, renderExp ExpirationTime) {
	source.flags.set(Incomplete)
	source.firstEffect = nil
	source.lastEffect = nil

	if se, ok := asSuspend(value); ok {
		if r.cfg.EnableSuspense {
			for n := returnNode; n != nil; n = n.parent {
				if n.Kind != SuspenseBoundary {
					continue
				}
				if st, _ := n.committedState.(*suspenseState); st != nil && st.timedOut {
					// already showing its fallback in this pass
					continue
				}

				r.attachRetry(se.Waitable, n, renderExp)
				n.flags.set(ShouldCapture)
				n.expiration = renderExp
				return
			}

			if r.cfg.ConcurrentMode {
				r.attachPing(se.Waitable, renderExp)
				r.didSuspend = true
				return
			}
		}

		value = contractError(ErrCodeSuspendedWithoutBoundary, source, "component suspended but no suspense boundary can show a fallback")
	}

	r.log.WithFields(logrus.Fields{
		"component": source.componentName(),
	}).WithError(value).Debug("render error, unwinding")
	r.profile.recovered()

	for n := returnNode; n != nil; n = n.parent {
		switch n.Kind {
		case HostRoot:
			n.flags.set(ShouldCapture)
			n.expiration = renderExp
			enqueueCapturedUpdate(n, r.rootErrorUpdate(value, renderExp))
			return

		case ErrorBoundary:
			if n.flags.Has(DidCapture) {
				continue
			}
			n.flags.set(ShouldCapture)
			n.expiration = renderExp
			enqueueCapturedUpdate(n, boundaryErrorUpdate(n, value, renderExp))
			return

		case StatefulComponent:
			inst, _ := n.stateNode.(*Instance)
			if inst == nil || n.flags.Has(DidCapture) {
				continue
			}
			if catcher, ok := inst.unit.(ErrorCatcher); ok {
				n.flags.set(ShouldCapture)
				n.expiration = renderExp
				enqueueCapturedUpdate(n, catcherUpdate(inst, catcher, value, renderExp))
				return
			}
		}
	}
}

func (r *Root) rootErrorUpdate(err error, exp ExpirationTime) *Update {
	return &Update{
		expiration: exp,
		tag:        CaptureError,
		payload: StateFunc(func(prev, props any) any {
			return &rootState{}
		}),
		callback: func() error {
			r.reportUncaught(err)
			return nil
		},
	}
}

func boundaryErrorUpdate(n *Node, err error, exp ExpirationTime) *Update {
	props, _ := n.pendingProps.Props.(ErrorBoundaryProps)
	u := &Update{
		expiration: exp,
		tag:        CaptureError,
		payload: StateFunc(func(prev, props any) any {
			return &errorBoundaryState{err: err}
		}),
	}
	if props.OnError != nil {
		u.callback = func() error {
			props.OnError(err)
			return nil
		}
	}
	return u
}

func catcherUpdate(inst *Instance, catcher ErrorCatcher, err error, exp ExpirationTime) *Update {
	return &Update{
		expiration: exp,
		tag:        CaptureError,
		payload: StateFunc(func(prev, props any) any {
			return mergeState(prev, catcher.DerivedStateFromError(err))
		}),
		callback: func() error {
			catcher.DidCatch(inst, err)
			return nil
		},
	}
}

// attachRetry re-renders boundary once w settles.
func (r *Root) attachRetry(w Waitable, boundary *Node, exp ExpirationTime) {
	if !r.cfg.ConcurrentMode {
		exp = Sync
	}
	w.OnSettle(func() {
		r.sched.Post(func() {
			if !boundary.live() {
				return
			}
			r.scheduleWorkLogged(boundary, exp)
		})
	})
}

// attachPing marks a parked level as ready to retry once w settles.
func (r *Root) attachPing(w Waitable, exp ExpirationTime) {
	w.OnSettle(func() {
		r.sched.Post(func() {
			r.markPinged(exp)
			r.ensureRootScheduledLogged()
		})
	})
}

// unwindWork is completeWork for nodes that did not finish. It returns the
// node to render again when wip captured the thrown value.
func (r *Root) unwindWork(wip *Node) *Node {
	switch wip.Kind {
	case HostRoot, ErrorBoundary, StatefulComponent, SuspenseBoundary:
		if wip.flags.Has(ShouldCapture) {
			wip.flags.replace(ShouldCapture, DidCapture)
			return wip
		}
	case ContextProvider:
		r.contexts.Pop(wip.Type.(*ContextType))
	}
	return nil
}

// unwindInterruptedWork pops what the nodes between the interrupted unit and
// the root pushed on begin.
func (r *Root) unwindInterruptedWork(n *Node) {
	if n.Kind == ContextProvider {
		r.contexts.Pop(n.Type.(*ContextType))
	}
}

package internal

import (
	"github.com/AnatoleLucet/loom/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// commitRoot applies finished to the host in passes: snapshots, mutations,
// the tree flip, layout callbacks, and finally passive effects on a
// scheduled task.
func (r *Root) commitRoot(finished *Node) error {
	start := r.sched.Now()
	committedExp := r.commitExp

	r.isWorking = true
	r.isCommitting = true
	defer func() {
		r.isWorking = false
		r.isCommitting = false
	}()

	if err := r.host.PrepareForCommit(r.container); err != nil {
		// nothing reached the host: drop the pass and keep its levels pending
		r.commitExp = NoWork
		r.resetStack()
		return hostError(err, "prepare commit", finished)
	}

	r.finishedWork = nil
	r.commitExp = NoWork
	r.nextUnitOfWork = nil
	r.renderExp = NoWork
	r.releaseCreated(finished)

	remaining := finished.expiration
	if finished.childExpiration > remaining {
		remaining = finished.childExpiration
	}
	r.markCommitted(remaining)

	first := finished.firstEffect
	if finished.flags.hasSideEffects() {
		if finished.lastEffect != nil {
			finished.lastEffect.nextEffect = finished
		} else {
			first = finished
		}
	}

	r.commitBeforeMutationEffects(first)

	err := r.commitMutationEffects(first)
	r.host.ResetAfterCommit(r.container)

	// the finished tree is current from here on, even if a host call failed
	r.current = finished
	if err != nil {
		r.detachEffectList(first)
		return err
	}

	r.commitLayoutEffects(first)

	if r.hasPassiveEffects(first) {
		r.pendingPassive = first
		if r.passiveTask == nil {
			r.passiveTask = r.sched.Schedule(scheduler.NormalPriority, func(bool) (scheduler.Callback, error) {
				r.passiveTask = nil
				r.flushPassiveEffects()
				return nil, r.ensureRootScheduled()
			}, scheduler.Options{})
		}
	} else {
		r.detachEffectList(first)
	}

	r.profile.commit(start)
	r.log.WithFields(logrus.Fields{
		"expiration": committedExp,
		"remaining":  r.expiration,
	}).Debug("committed")

	return r.markNestedUpdate(r.expiration)
}

func (r *Root) hasPassiveEffects(first *Node) bool {
	if len(r.pendingPassiveUnmounts) > 0 {
		return true
	}
	for e := first; e != nil; e = e.nextEffect {
		if e.flags.Has(Passive) {
			return true
		}
	}
	return false
}

func (r *Root) detachEffectList(first *Node) {
	for e := first; e != nil; {
		next := e.nextEffect
		e.nextEffect = nil
		e = next
	}
}

func (r *Root) commitBeforeMutationEffects(first *Node) {
	for e := first; e != nil; e = e.nextEffect {
		if !e.flags.Has(Snapshot) || e.Kind != StatefulComponent {
			continue
		}
		current := e.alternate()
		inst := e.stateNode.(*Instance)
		snap, ok := inst.unit.(Snapshotter)
		if current == nil || !ok {
			continue
		}

		prevState, _ := current.committedState.(State)
		err := callSafely(func() (err error) {
			inst.snapshot, err = snap.SnapshotBeforeUpdate(inst, current.committedProps.Props, prevState)
			return err
		})
		if err != nil {
			r.captureCommitPhaseError(e, err)
		}
	}
}

// commitMutationEffects applies every host mutation. A host failure stops
// the pass and is returned; callback failures are routed to boundaries.
func (r *Root) commitMutationEffects(first *Node) error {
	for e := first; e != nil; e = e.nextEffect {
		if e.flags.Has(RefEffect) {
			if current := e.alternate(); current != nil && current.ref != nil {
				current.ref.Current = nil
			}
		}

		var err error
		switch e.flags & (Placement | UpdateEffect | Deletion) {
		case Placement:
			err = r.commitPlacement(e)
			e.flags.clear(Placement)
		case Placement | UpdateEffect:
			err = r.commitPlacement(e)
			e.flags.clear(Placement)
			if err == nil {
				err = r.commitWork(e.alternate(), e)
			}
		case UpdateEffect:
			err = r.commitWork(e.alternate(), e)
		case Deletion:
			err = r.commitDeletion(e)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Root) hostParent(n *Node) (HostInstance, *Node) {
	for p := n.parent; p != nil; p = p.parent {
		switch p.Kind {
		case HostComponent:
			return p.stateNode, p
		case HostRoot:
			return r.container, p
		case HostPortal:
			return p.stateNode, p
		}
	}
	return r.container, nil
}

// hostSibling finds the host instance n must be inserted before: the next
// host node in document order that is not itself being placed.
func hostSibling(n *Node) HostInstance {
	node := n
siblings:
	for {
		for node.sibling == nil {
			if node.parent == nil || isHostParent(node.parent) {
				return nil
			}
			node = node.parent
		}
		node.sibling.parent = node.parent
		node = node.sibling

		for node.Kind != HostComponent && node.Kind != HostText {
			if node.flags.Has(Placement) {
				continue siblings
			}
			if node.child == nil || node.Kind == HostPortal {
				continue siblings
			}
			node.child.parent = node
			node = node.child
		}

		if !node.flags.Has(Placement) {
			return node.stateNode
		}
	}
}

func (r *Root) commitPlacement(finished *Node) error {
	parent, _ := r.hostParent(finished)
	before := hostSibling(finished)

	node := finished
	for {
		if node.Kind == HostComponent || node.Kind == HostText {
			var err error
			if before != nil {
				err = r.host.InsertBefore(parent, node.stateNode, before)
			} else {
				err = r.host.AppendChild(parent, node.stateNode)
			}
			if err != nil {
				return hostError(err, "insert", node)
			}
		} else if node.Kind != HostPortal && node.child != nil {
			node.child.parent = node
			node = node.child
			continue
		}

		if node == finished {
			return nil
		}
		for node.sibling == nil {
			if node.parent == nil || node.parent == finished {
				return nil
			}
			node = node.parent
		}
		node.sibling.parent = node.parent
		node = node.sibling
	}
}

func (r *Root) commitWork(current, finished *Node) error {
	switch finished.Kind {
	case HostComponent:
		patch := finished.patch
		finished.patch = nil
		if len(patch) == 0 || current == nil {
			return nil
		}
		err := r.host.CommitUpdate(finished.stateNode, patch, hostProps(current.committedProps), hostProps(finished.committedProps))
		return hostError(err, "update", finished)

	case HostText:
		if current == nil {
			return nil
		}
		err := r.host.CommitTextUpdate(finished.stateNode, hostText(current.committedProps), hostText(finished.committedProps))
		return hostError(err, "update text", finished)

	case FunctionComponent:
		r.commitHookEffects(finished, effectLayout|effectHasEffect, false)
	}
	return nil
}

// commitDeletion removes the host nodes of the subtree rooted at n, runs
// unmount callbacks for every node in it, and frees its slots.
func (r *Root) commitDeletion(n *Node) error {
	parent, _ := r.hostParent(n)
	err := r.unmountHostComponents(parent, n)

	var nodes []*Node
	n.walk(func(c *Node) { nodes = append(nodes, c) })
	for _, c := range nodes {
		c.parent = nil
		c.child = nil
		c.sibling = nil
		if alt := c.alternate(); alt != nil {
			alt.parent = nil
			alt.child = nil
			alt.sibling = nil
		}
		r.arena.release(c)
	}
	return err
}

func (r *Root) unmountHostComponents(parent HostInstance, root *Node) error {
	node := root
	for {
		switch node.Kind {
		case HostComponent, HostText:
			r.commitNestedUnmounts(node)
			if err := r.host.RemoveChild(parent, node.stateNode); err != nil {
				return hostError(err, "remove", node)
			}
		case HostPortal:
			if err := r.unmountPortal(node); err != nil {
				return err
			}
		default:
			r.commitUnmount(node)
			if node.child != nil {
				node.child.parent = node
				node = node.child
				continue
			}
		}

		if node == root {
			return nil
		}
		for node.sibling == nil {
			if node.parent == nil || node.parent == root {
				return nil
			}
			node = node.parent
		}
		node.sibling.parent = node.parent
		node = node.sibling
	}
}

func (r *Root) unmountPortal(portal *Node) error {
	for c := portal.child; c != nil; c = c.sibling {
		c.parent = portal
		if err := r.unmountHostComponents(portal.stateNode, c); err != nil {
			return err
		}
	}
	return nil
}

// commitNestedUnmounts runs unmount callbacks for a subtree whose host root
// is removed as a whole. Portals inside it still remove their own children.
func (r *Root) commitNestedUnmounts(root *Node) {
	node := root
	for {
		r.commitUnmount(node)

		if node.Kind == HostPortal {
			if err := r.unmountPortal(node); err != nil {
				r.log.WithError(err).Error("failed to remove portal children")
			}
		} else if node.child != nil {
			node.child.parent = node
			node = node.child
			continue
		}

		if node == root {
			return
		}
		for node.sibling == nil {
			if node.parent == nil || node.parent == root {
				return
			}
			node = node.parent
		}
		node.sibling.parent = node.parent
		node = node.sibling
	}
}

func (r *Root) commitUnmount(n *Node) {
	switch n.Kind {
	case FunctionComponent:
		last := n.hookEffects
		if last == nil {
			return
		}
		e := last.next
		for {
			if destroy := e.destroy; destroy != nil {
				e.destroy = nil
				if e.tag&effectPassive != 0 {
					r.pendingPassiveUnmounts = append(r.pendingPassiveUnmounts, destroy)
				} else if err := callSafely(func() error { destroy(); return nil }); err != nil {
					r.captureCommitPhaseError(n, err)
				}
			}
			e = e.next
			if e == last.next {
				return
			}
		}

	case StatefulComponent:
		if n.ref != nil {
			n.ref.Current = nil
		}
		inst, _ := n.stateNode.(*Instance)
		if inst == nil {
			return
		}
		if u, ok := inst.unit.(Unmounter); ok {
			if err := callSafely(func() error { return u.WillUnmount(inst) }); err != nil {
				r.captureCommitPhaseError(n, err)
			}
		}
		inst.node = nil

	case HostComponent:
		if n.ref != nil {
			n.ref.Current = nil
		}
	}
}

func (r *Root) commitLayoutEffects(first *Node) {
	for e := first; e != nil; e = e.nextEffect {
		if e.flags.Has(UpdateEffect | Callback) {
			r.commitLifeCycles(e.alternate(), e)
		}
		if e.flags.Has(RefEffect) && e.ref != nil {
			switch e.Kind {
			case HostComponent, StatefulComponent:
				e.ref.Current = e.stateNode
			}
		}
	}
}

func (r *Root) commitLifeCycles(current, finished *Node) {
	switch finished.Kind {
	case FunctionComponent:
		r.commitHookEffects(finished, effectLayout|effectHasEffect, true)

	case StatefulComponent:
		inst := finished.stateNode.(*Instance)
		if finished.flags.Has(UpdateEffect) {
			var err error
			if current == nil {
				if m, ok := inst.unit.(Mounter); ok {
					err = callSafely(func() error { return m.DidMount(inst) })
				}
			} else if u, ok := inst.unit.(Updater); ok {
				prevState, _ := current.committedState.(State)
				snapshot := inst.snapshot
				inst.snapshot = nil
				err = callSafely(func() error {
					return u.DidUpdate(inst, current.committedProps.Props, prevState, snapshot)
				})
			}
			if err != nil {
				r.captureCommitPhaseError(finished, err)
			}
		}
		if finished.flags.Has(Callback) {
			if err := commitUpdateQueue(finished.updateQueue); err != nil {
				r.captureCommitPhaseError(finished, err)
			}
		}

	case HostRoot, ErrorBoundary:
		if finished.flags.Has(Callback) {
			if err := commitUpdateQueue(finished.updateQueue); err != nil {
				r.captureCommitPhaseError(finished, err)
			}
		}
	}
}

// flushPassiveEffects runs the passive effects of the last commit: every
// destroy first, across the whole tree, then every create.
func (r *Root) flushPassiveEffects() {
	first := r.pendingPassive
	unmounts := r.pendingPassiveUnmounts
	if first == nil && len(unmounts) == 0 {
		return
	}

	r.pendingPassive = nil
	r.pendingPassiveUnmounts = nil
	if r.passiveTask != nil {
		r.sched.Cancel(r.passiveTask)
		r.passiveTask = nil
	}

	var nodes []*Node
	for e := first; e != nil; e = e.nextEffect {
		if e.Kind == FunctionComponent && e.flags.Has(Passive) {
			nodes = append(nodes, e)
		}
	}
	r.detachEffectList(first)

	// updates scheduled from effects, error captures included, are only
	// queued here and rendered once every effect ran
	prev := r.isCommitting
	r.isCommitting = true
	defer func() { r.isCommitting = prev }()

	for _, destroy := range unmounts {
		if err := callSafely(func() error { destroy(); return nil }); err != nil {
			r.reportUncaught(err)
		}
	}
	for _, n := range nodes {
		r.commitHookEffects(n, effectPassive|effectHasEffect, false)
	}
	for _, n := range nodes {
		r.commitHookEffects(n, effectPassive|effectHasEffect, true)
	}
}

// captureCommitPhaseError routes an error raised by a commit callback of
// source to the nearest boundary as a new synchronous render.
func (r *Root) captureCommitPhaseError(source *Node, err error) {
	r.log.WithFields(logrus.Fields{
		"component": source.componentName(),
	}).WithError(err).Error("commit callback failed")
	r.profile.recovered()

	for n := source.parent; n != nil; n = n.parent {
		var u *Update
		switch n.Kind {
		case HostRoot:
			u = r.rootErrorUpdate(err, Sync)
		case ErrorBoundary:
			u = boundaryErrorUpdate(n, err, Sync)
		case StatefulComponent:
			inst, _ := n.stateNode.(*Instance)
			if inst == nil {
				continue
			}
			catcher, ok := inst.unit.(ErrorCatcher)
			if !ok {
				continue
			}
			u = catcherUpdate(inst, catcher, err, Sync)
		default:
			continue
		}

		enqueueUpdate(n, u)
		r.scheduleWorkLogged(n, Sync)
		return
	}

	// detached, nothing left to render an error into
	r.reportUncaught(err)
}

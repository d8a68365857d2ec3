package internal

// completeWork creates or diffs the host side of wip once all of its
// children are complete.
func (r *Root) completeWork(current, wip *Node) error {
	el := wip.pendingProps

	switch wip.Kind {
	case HostComponent:
		if current != nil && wip.stateNode != nil {
			if current.committedProps != el {
				if patch := diffProps(hostProps(current.committedProps), hostProps(el)); len(patch) > 0 {
					wip.patch = patch
					wip.flags.set(UpdateEffect)
				}
			}
			if current.ref != wip.ref {
				wip.flags.set(RefEffect)
			}
			return nil
		}

		tag, _ := wip.Type.(string)
		inst, err := r.host.CreateInstance(tag, hostProps(el))
		if err != nil {
			return hostError(err, "create", wip)
		}
		if err := r.appendAllChildren(inst, wip); err != nil {
			return err
		}
		wip.stateNode = inst
		if wip.ref != nil {
			wip.flags.set(RefEffect)
		}

	case HostText:
		text := hostText(el)
		if current != nil && wip.stateNode != nil {
			if hostText(current.committedProps) != text {
				wip.flags.set(UpdateEffect)
			}
			return nil
		}

		inst, err := r.host.CreateTextInstance(text)
		if err != nil {
			return hostError(err, "create text", wip)
		}
		wip.stateNode = inst

	case ContextProvider:
		r.contexts.Pop(wip.Type.(*ContextType))

	case SuspenseBoundary:
		next, _ := wip.committedState.(*suspenseState)
		var prev *suspenseState
		if current != nil {
			prev, _ = current.committedState.(*suspenseState)
		}
		if (next != nil) != (prev != nil) {
			wip.flags.set(UpdateEffect)
		}
	}

	return nil
}

// appendAllChildren attaches the top level host nodes below wip to parent.
// Portals keep their children in their own container.
func (r *Root) appendAllChildren(parent HostInstance, wip *Node) error {
	node := wip.child
	for node != nil {
		if node.Kind == HostComponent || node.Kind == HostText {
			if err := r.host.AppendInitialChild(parent, node.stateNode); err != nil {
				return hostError(err, "append", node)
			}
		} else if node.Kind != HostPortal && node.child != nil {
			node.child.parent = node
			node = node.child
			continue
		}

		if node == wip {
			return nil
		}
		for node.sibling == nil {
			if node.parent == nil || node.parent == wip {
				return nil
			}
			node = node.parent
		}
		node.sibling.parent = node.parent
		node = node.sibling
	}
	return nil
}

// resetChildExpiration recomputes the most urgent pending work below wip.
func resetChildExpiration(wip *Node) {
	exp := NoWork
	for c := wip.child; c != nil; c = c.sibling {
		if c.expiration > exp {
			exp = c.expiration
		}
		if c.childExpiration > exp {
			exp = c.childExpiration
		}
	}
	wip.childExpiration = exp
}

// appendEffects moves wip's effect list, and wip itself when it has effects,
// onto the end of its parent's list.
func appendEffects(parent, wip *Node) {
	if parent.firstEffect == nil {
		parent.firstEffect = wip.firstEffect
	}
	if wip.lastEffect != nil {
		if parent.lastEffect != nil {
			parent.lastEffect.nextEffect = wip.firstEffect
		}
		parent.lastEffect = wip.lastEffect
	}

	if wip.flags.hasSideEffects() {
		if parent.lastEffect != nil {
			parent.lastEffect.nextEffect = wip
		} else {
			parent.firstEffect = wip
		}
		parent.lastEffect = wip
	}
}

package internal

// childKey identifies a child among its siblings: by key when it has one,
// otherwise by its position in the children slice.
type childKey struct {
	key   string
	index int
	keyed bool
}

func keyOfNode(n *Node) childKey {
	if n.Key != "" {
		return childKey{key: n.Key, keyed: true}
	}
	return childKey{index: n.index}
}

func keyOfElement(el *Element, index int) childKey {
	if el.Key != "" {
		return childKey{key: el.Key, keyed: true}
	}
	return childKey{index: index}
}

func sameType(n *Node, el *Element) bool {
	if n.Kind != el.Kind || n.Type != el.Type {
		return false
	}
	if n.Kind == HostPortal {
		return n.stateNode == el.Props.(PortalProps).Container
	}
	return true
}

// childrenOf flattens the top level of a render result. An unkeyed fragment
// returned directly by a component is transparent.
func childrenOf(el *Element) []*Element {
	if el == nil {
		return nil
	}
	if el.Kind == Fragment && el.Key == "" {
		return el.Children
	}
	return []*Element{el}
}

// reconcileChildren builds the work-in-progress child list of wip. Children
// of a node that is itself new are not tracked: the whole subtree is
// inserted when the node is placed.
func (r *Root) reconcileChildren(current, wip *Node, children []*Element, renderExp ExpirationTime) {
	if current == nil && wip.Kind != HostPortal {
		wip.child = r.reconcileChildList(wip, nil, children, renderExp, false)
		return
	}

	var first *Node
	if current != nil {
		first = current.child
	}
	wip.child = r.reconcileChildList(wip, first, children, renderExp, true)
}

// forceUnmountCurrentAndReconcile deletes every current child and mounts
// children from scratch. Used when a boundary switches to its fallback so
// no state survives from the failed tree.
func (r *Root) forceUnmountCurrentAndReconcile(current, wip *Node, children []*Element, renderExp ExpirationTime) {
	if current != nil {
		r.reconcileChildList(wip, current.child, nil, renderExp, true)
	}
	wip.child = r.reconcileChildList(wip, nil, children, renderExp, true)
}

func (r *Root) reconcileChildList(parent, currentFirst *Node, children []*Element, renderExp ExpirationTime, track bool) *Node {
	existing := make(map[childKey]*Node)
	for c := currentFirst; c != nil; c = c.sibling {
		if k := keyOfNode(c); existing[k] == nil {
			existing[k] = c
		}
	}

	var (
		first, prev *Node

		// old positions of reused children, in new order, for move detection
		reused   []*Node
		oldIndex []int
		matched  = make(map[*Node]bool)
	)

	for i, el := range children {
		if el == nil {
			continue
		}

		var n *Node
		k := keyOfElement(el, i)
		if old, ok := existing[k]; ok && sameType(old, el) {
			delete(existing, k)
			n = r.useNode(old, el)
			reused = append(reused, n)
			oldIndex = append(oldIndex, old.index)
			matched[old] = true
		} else {
			n = r.createChild(el, renderExp)
			if track {
				n.flags.set(Placement)
			}
		}

		n.index = i
		n.parent = parent
		if prev == nil {
			first = n
		} else {
			prev.sibling = n
		}
		prev = n
	}

	if !track {
		return first
	}

	for c := currentFirst; c != nil; c = c.sibling {
		if !matched[c] {
			r.deleteChild(parent, c)
		}
	}

	// reused children outside the longest run that kept its relative
	// order are the ones that moved
	keep := longestIncreasing(oldIndex)
	for i, n := range reused {
		if !keep[i] {
			n.flags.set(Placement)
		}
	}

	return first
}

func (r *Root) useNode(old *Node, el *Element) *Node {
	n := createWorkInProgress(old, el)
	n.ref = el.Ref
	n.index = 0
	n.sibling = nil
	return n
}

func (r *Root) createChild(el *Element, renderExp ExpirationTime) *Node {
	n := r.arena.nodeFromElement(el, renderExp)
	r.created = append(r.created, n)
	return n
}

// deleteChild queues child for removal on parent's effect list. The
// deletion is ordered before the parent's own children effects.
func (r *Root) deleteChild(parent, child *Node) {
	if last := parent.lastEffect; last != nil {
		last.nextEffect = child
		parent.lastEffect = child
	} else {
		parent.firstEffect = child
		parent.lastEffect = child
	}
	child.nextEffect = nil
	child.flags = Deletion
}

// longestIncreasing marks the entries of seq that belong to one longest
// strictly increasing subsequence.
func longestIncreasing(seq []int) []bool {
	keep := make([]bool, len(seq))
	if len(seq) == 0 {
		return keep
	}

	// tails[k] is the index in seq of the smallest tail of an increasing
	// run of length k+1
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))

	for i, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}

		if lo > 0 {
			prev[i] = tails[lo-1]
		} else {
			prev[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		keep[i] = true
	}
	return keep
}

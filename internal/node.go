package internal

import "fmt"

// Node is one buffer of a unit of work. The committed tree and the
// work-in-progress tree are made of the two buffers of the same slots.
type Node struct {
	id    NodeID
	gen   uint32
	buf   uint8
	arena *arena

	Kind Kind
	Key  string
	Type any

	// host instance, *Instance for stateful units, *Root for the host root,
	// the container for portals
	stateNode any

	parent  *Node
	child   *Node
	sibling *Node
	index   int

	ref *Ref

	pendingProps   *Element
	committedProps *Element
	committedState any

	updateQueue *UpdateQueue
	hookEffects *hookEffect // ring, points at the last effect
	contextDeps *contextDeps
	patch       Patch

	expiration      ExpirationTime
	childExpiration ExpirationTime

	flags       EffectFlags
	nextEffect  *Node
	firstEffect *Node
	lastEffect  *Node
}

func (n *Node) alternate() *Node {
	return n.arena.alternate(n)
}

func (n *Node) live() bool {
	return n.arena.owns(n)
}

func (n *Node) Flags() EffectFlags {
	return n.flags
}

func (n *Node) String() string {
	name := typeName(n.Kind, n.Type)
	if n.Key != "" {
		return fmt.Sprintf("%s[%s]#%d", name, n.Key, n.id)
	}
	return fmt.Sprintf("%s#%d", name, n.id)
}

// componentName is the name logged and attached to errors for n.
func (n *Node) componentName() string {
	if n == nil {
		return ""
	}
	return typeName(n.Kind, n.Type)
}

func (a *arena) nodeFromElement(el *Element, expiration ExpirationTime) *Node {
	n := a.newNode(el.Kind, el.Key, el)
	n.Type = el.Type
	n.ref = el.Ref
	n.expiration = expiration

	if el.Kind == HostPortal {
		n.stateNode = el.Props.(PortalProps).Container
	}
	return n
}

// createWorkInProgress returns the other buffer of current, reusing it when
// it exists, reset to start a new pass with the given props.
func createWorkInProgress(current *Node, props *Element) *Node {
	a := current.arena
	wip := a.alternate(current)

	if wip == nil {
		wip = &Node{
			Kind:      current.Kind,
			Key:       current.Key,
			Type:      current.Type,
			stateNode: current.stateNode,
		}
		a.setAlternate(current, wip)
	} else {
		wip.flags = NoEffect
		wip.nextEffect = nil
		wip.firstEffect = nil
		wip.lastEffect = nil
	}

	wip.pendingProps = props
	wip.expiration = current.expiration
	wip.childExpiration = current.childExpiration

	wip.child = current.child
	wip.committedProps = current.committedProps
	wip.committedState = current.committedState
	wip.updateQueue = current.updateQueue
	wip.hookEffects = current.hookEffects
	wip.contextDeps = current.contextDeps
	wip.patch = nil

	wip.sibling = current.sibling
	wip.index = current.index
	wip.ref = current.ref

	return wip
}

// cloneChildNodes gives wip its own buffers of the current children so the
// walker can descend into them without touching the committed tree.
func cloneChildNodes(wip *Node) {
	child := wip.child
	if child == nil {
		return
	}

	next := createWorkInProgress(child, child.pendingProps)
	wip.child = next
	next.parent = wip

	for child.sibling != nil {
		child = child.sibling
		sib := createWorkInProgress(child, child.pendingProps)
		next.sibling = sib
		sib.parent = wip
		next = sib
	}
	next.sibling = nil
}

func isHostParent(n *Node) bool {
	return n.Kind == HostComponent || n.Kind == HostRoot || n.Kind == HostPortal
}

// walk calls fn on every node of the subtree rooted at n, parents first.
// Parent pointers are repaired on the way down so climbing back up stays on
// the buffers that were visited.
func (n *Node) walk(fn func(*Node)) {
	node := n
	for {
		fn(node)
		if node.child != nil {
			node.child.parent = node
			node = node.child
			continue
		}
		if node == n {
			return
		}
		for node.sibling == nil {
			if node.parent == nil || node.parent == n {
				return
			}
			node = node.parent
		}
		node.sibling.parent = node.parent
		node = node.sibling
	}
}

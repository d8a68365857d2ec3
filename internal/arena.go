package internal

// NodeID indexes a slot in the arena. Both buffers of a node share the slot;
// the alternate of a node is the other buffer of the same slot.
type NodeID uint32

type slot struct {
	// bumped every time the slot is released so stale handles can be detected
	gen   uint32
	nodes [2]*Node
}

type arena struct {
	slots []slot
	free  []NodeID
	live  int
}

func newArena() *arena {
	return &arena{
		slots: make([]slot, 0, 64),
	}
}

func (a *arena) alloc() NodeID {
	a.live++

	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id
	}

	a.slots = append(a.slots, slot{})
	return NodeID(len(a.slots) - 1)
}

func (a *arena) newNode(kind Kind, key string, props *Element) *Node {
	id := a.alloc()
	n := &Node{
		id:           id,
		gen:          a.slots[id].gen,
		arena:        a,
		Kind:         kind,
		Key:          key,
		pendingProps: props,
	}
	a.slots[id].nodes[0] = n
	return n
}

// alternate returns the other buffer of n, or nil when it was never created
// or the slot has been released.
func (a *arena) alternate(n *Node) *Node {
	if !a.owns(n) {
		return nil
	}
	return a.slots[n.id].nodes[n.buf^1]
}

func (a *arena) setAlternate(n, alt *Node) {
	alt.id = n.id
	alt.gen = n.gen
	alt.buf = n.buf ^ 1
	alt.arena = a
	a.slots[n.id].nodes[alt.buf] = alt
}

func (a *arena) owns(n *Node) bool {
	if n == nil || n.arena != a || int(n.id) >= len(a.slots) {
		return false
	}
	s := &a.slots[n.id]
	return s.gen == n.gen && s.nodes[n.buf] == n
}

// release frees the slot of n and both of its buffers. Handles held on
// either buffer stop resolving.
func (a *arena) release(n *Node) {
	if !a.owns(n) {
		return
	}
	s := &a.slots[n.id]
	s.nodes = [2]*Node{}
	s.gen++
	a.free = append(a.free, n.id)
	a.live--
}

func (a *arena) Live() int {
	return a.live
}

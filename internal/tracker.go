package internal

// maxRenderPhaseUpdates bounds how many times a component may re-render
// itself because it dispatched while rendering.
const maxRenderPhaseUpdates = 25

type cellKind uint8

const (
	cellReducer cellKind = iota
	cellEffect
	cellMemo
	cellRef
)

var cellKindNames = [...]string{
	cellReducer: "state",
	cellEffect:  "effect",
	cellMemo:    "memo",
	cellRef:     "ref",
}

func (k cellKind) String() string {
	return cellKindNames[k]
}

// cell is one entry of a function component's state chain.
type cell struct {
	kind cellKind

	memoizedState any
	baseState     any
	baseQueue     *hookUpdate
	queue         *hookQueue

	next *cell
}

// Tracker holds what is being rendered right now: the node, the cursors into
// its current and work-in-progress state chains, and the node reading
// context.
type Tracker struct {
	owner *Root

	node     *Node
	scope    *Scope
	mounting bool

	currentCell    *cell // next committed cell to clone
	lastCurrent    *cell // committed cell cloned by the latest hook call
	firstWorkCell  *cell
	workCell       *cell
	remaining      ExpirationTime
	renderExp      ExpirationTime
	effectFlags    EffectFlags
	cellIndex      int
	rerendering    bool
	numberRerender int

	didScheduleRenderPhaseUpdate bool
	renderPhaseUpdates           map[*hookQueue]*hookUpdate

	readingNode *Node
}

func NewTracker(owner *Root) *Tracker {
	return &Tracker{owner: owner}
}

func (t *Tracker) IsRendering() bool {
	return t.node != nil
}

// RunWithNode prepares the tracker to render wip and restores it afterwards,
// including when render panics.
func (t *Tracker) RunWithNode(current, wip *Node, renderExp ExpirationTime, fn func()) {
	t.node = wip
	t.scope = &Scope{tracker: t, node: wip}
	t.renderExp = renderExp
	t.mounting = current == nil
	t.rerendering = false
	t.numberRerender = 0
	t.remaining = NoWork
	t.effectFlags = NoEffect
	t.renderPhaseUpdates = nil
	t.didScheduleRenderPhaseUpdate = false

	if current != nil {
		t.currentCell, _ = current.committedState.(*cell)
	}

	defer t.reset()
	fn()
}

// resetCursors rewinds the cursors before another pass over the same node.
func (t *Tracker) resetCursors(current *Node) {
	t.currentCell = nil
	if current != nil {
		t.currentCell, _ = current.committedState.(*cell)
	}
	t.lastCurrent = nil
	t.workCell = nil
	t.cellIndex = 0
}

func (t *Tracker) reset() {
	if t.scope != nil {
		t.scope.tracker = nil
	}
	t.node = nil
	t.scope = nil
	t.currentCell = nil
	t.lastCurrent = nil
	t.firstWorkCell = nil
	t.workCell = nil
	t.cellIndex = 0
	t.rerendering = false
	t.numberRerender = 0
	t.renderPhaseUpdates = nil
	t.didScheduleRenderPhaseUpdate = false
}

// nextCell returns the cell for the next hook call, creating it on mount,
// cloning the committed one on update, and reusing the work-in-progress one
// when re-rendering after a render-phase update.
func (t *Tracker) nextCell(kind cellKind) *cell {
	if t.node == nil {
		panic(&ContractError{Code: ErrCodeHookOutsideRender, Message: "hooks can only be called while rendering"})
	}
	t.cellIndex++
	t.lastCurrent = nil

	if t.rerendering {
		c := t.firstWorkCell
		if t.workCell != nil {
			c = t.workCell.next
		}
		if c == nil {
			panic(contractError(ErrCodeHookOrder, t.node, "rendered more state cells than during the previous render"))
		}
		t.checkKind(c, kind)
		t.workCell = c

		if cur := t.currentCell; cur != nil {
			t.lastCurrent = cur
			t.currentCell = cur.next
		}
		return c
	}

	if t.mounting {
		c := &cell{kind: kind}
		t.appendCell(c)
		return c
	}

	cur := t.currentCell
	if cur == nil {
		panic(contractError(ErrCodeHookOrder, t.node, "rendered more state cells than during the previous render"))
	}
	t.checkKind(cur, kind)
	t.currentCell = cur.next
	t.lastCurrent = cur

	c := &cell{
		kind:          cur.kind,
		memoizedState: cur.memoizedState,
		baseState:     cur.baseState,
		baseQueue:     cur.baseQueue,
		queue:         cur.queue,
	}
	t.appendCell(c)
	return c
}

func (t *Tracker) appendCell(c *cell) {
	if t.workCell == nil {
		t.firstWorkCell = c
	} else {
		t.workCell.next = c
	}
	t.workCell = c
}

func (t *Tracker) checkKind(c *cell, kind cellKind) {
	if c.kind != kind {
		panic(contractError(ErrCodeHookKind, t.node, "state cell %d was a %s cell and is now read as %s", t.cellIndex, c.kind, kind))
	}
}

// checkExhausted verifies the render consumed exactly as many cells as the
// previous one.
func (t *Tracker) checkExhausted() {
	if t.rerendering {
		if (t.workCell == nil && t.firstWorkCell != nil) || (t.workCell != nil && t.workCell.next != nil) {
			panic(contractError(ErrCodeHookOrder, t.node, "rendered fewer state cells than during the previous render"))
		}
		return
	}
	if !t.mounting && t.currentCell != nil {
		panic(contractError(ErrCodeHookOrder, t.node, "rendered fewer state cells than during the previous render"))
	}
}

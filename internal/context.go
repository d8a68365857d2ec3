package internal

// ContextType identifies a value passed implicitly down the tree.
type ContextType struct {
	Name    string
	Default any
}

type contextDep struct {
	ctx  *ContextType
	next *contextDep
}

// contextDeps lists the contexts a node read during its last render.
type contextDeps struct {
	expiration ExpirationTime
	first      *contextDep
}

type contextFrame struct {
	ctx  *ContextType
	prev any
	had  bool
}

// ExecutionContext is the provider stack of the pass being walked. Providers
// push on begin and pop on complete or unwind.
type ExecutionContext struct {
	values map[*ContextType]any
	stack  []contextFrame
}

func NewContext() *ExecutionContext {
	return &ExecutionContext{
		values: make(map[*ContextType]any),
	}
}

func (c *ExecutionContext) Push(ctx *ContextType, value any) {
	prev, had := c.values[ctx]
	c.stack = append(c.stack, contextFrame{ctx: ctx, prev: prev, had: had})
	c.values[ctx] = value
}

func (c *ExecutionContext) Pop(ctx *ContextType) {
	n := len(c.stack)
	if n == 0 {
		return
	}
	f := c.stack[n-1]
	c.stack = c.stack[:n-1]

	if f.had {
		c.values[f.ctx] = f.prev
	} else {
		delete(c.values, f.ctx)
	}
}

func (c *ExecutionContext) Read(ctx *ContextType) any {
	if v, ok := c.values[ctx]; ok {
		return v
	}
	return ctx.Default
}

func (c *ExecutionContext) Reset() {
	c.stack = c.stack[:0]
	clear(c.values)
}

func (r *Root) prepareToReadContext(wip *Node, renderExp ExpirationTime) {
	r.tracker.readingNode = wip

	if deps := wip.contextDeps; deps != nil && deps.expiration >= renderExp {
		r.didReceiveUpdate = true
	}
	wip.contextDeps = nil
}

func (r *Root) readContext(ctx *ContextType) any {
	v := r.contexts.Read(ctx)

	n := r.tracker.readingNode
	if n == nil {
		return v
	}
	if n.contextDeps == nil {
		n.contextDeps = &contextDeps{}
	}
	n.contextDeps.first = &contextDep{ctx: ctx, next: n.contextDeps.first}
	return v
}

func (d *contextDeps) reads(ctx *ContextType) bool {
	if d == nil {
		return false
	}
	for dep := d.first; dep != nil; dep = dep.next {
		if dep.ctx == ctx {
			return true
		}
	}
	return false
}

// propagateContextChange schedules every reader of ctx below provider at
// renderExp, so the walker reaches them even through bailed out subtrees.
func (r *Root) propagateContextChange(provider *Node, ctx *ContextType, renderExp ExpirationTime) {
	node := provider.child
	if node == nil {
		return
	}
	node.parent = provider

	for node != nil {
		var next *Node

		if node.contextDeps.reads(ctx) {
			if node.expiration < renderExp {
				node.expiration = renderExp
			}
			if alt := node.alternate(); alt != nil && alt.expiration < renderExp {
				alt.expiration = renderExp
			}
			scheduleWorkOnParentPath(node.parent, renderExp)
			node.contextDeps.expiration = renderExp
		}

		// a nested provider of the same context shadows it
		if node.Kind == ContextProvider && node.Type == ctx {
			next = nil
		} else {
			next = node.child
		}

		if next != nil {
			next.parent = node
		} else {
			next = node
			for next != nil {
				if next == provider {
					next = nil
					break
				}
				if next.sibling != nil {
					next.sibling.parent = next.parent
					next = next.sibling
					break
				}
				next = next.parent
			}
		}
		node = next
	}
}

// scheduleWorkOnParentPath raises the child expiration of every ancestor
// starting at parent, on both buffers.
func scheduleWorkOnParentPath(parent *Node, exp ExpirationTime) {
	for n := parent; n != nil; n = n.parent {
		alt := n.alternate()
		if n.childExpiration < exp {
			n.childExpiration = exp
			if alt != nil && alt.childExpiration < exp {
				alt.childExpiration = exp
			}
		} else if alt != nil && alt.childExpiration < exp {
			alt.childExpiration = exp
		} else {
			return
		}
	}
}

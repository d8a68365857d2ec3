// Package memhost is an in-memory host backend. It keeps a document-like
// tree, records every mutation it is asked to perform and can be told to
// fail specific operations.
package memhost

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/AnatoleLucet/loom/internal"
)

// OpKind names a host operation.
type OpKind string

const (
	OpCreate     OpKind = "create"
	OpCreateText OpKind = "create-text"
	OpAppend     OpKind = "append"
	OpInsert     OpKind = "insert"
	OpRemove     OpKind = "remove"
	OpUpdate     OpKind = "update"
	OpUpdateText OpKind = "update-text"
	OpPrepare    OpKind = "prepare"
	OpReset      OpKind = "reset"
)

// Op is one recorded host call. Initial appends done while building a
// detached subtree are not recorded since they are not visible.
type Op struct {
	Kind   OpKind
	Target string
	Parent string
	Before string
	Patch  internal.Patch
}

func (o Op) String() string {
	switch o.Kind {
	case OpAppend:
		return fmt.Sprintf("append %s to %s", o.Target, o.Parent)
	case OpInsert:
		return fmt.Sprintf("insert %s into %s before %s", o.Target, o.Parent, o.Before)
	case OpRemove:
		return fmt.Sprintf("remove %s from %s", o.Target, o.Parent)
	case OpUpdate:
		parts := make([]string, 0, len(o.Patch))
		for _, c := range o.Patch {
			if c.Removed {
				parts = append(parts, "-"+c.Key)
			} else {
				parts = append(parts, fmt.Sprintf("%s=%v", c.Key, c.Value))
			}
		}
		return fmt.Sprintf("update %s %s", o.Target, strings.Join(parts, " "))
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Target)
}

// Node is an element or text node of the in-memory tree.
type Node struct {
	ID       int
	Tag      string
	Text     string
	Props    internal.Props
	Children []*Node

	text   bool
	parent *Node
}

func (n *Node) IsText() bool {
	return n.text
}

func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) String() string {
	if n.text {
		return fmt.Sprintf("#text%d", n.ID)
	}
	return fmt.Sprintf("%s%d", n.Tag, n.ID)
}

func (n *Node) indexOf(child *Node) int {
	for i, c := range n.Children {
		if c == child {
			return i
		}
	}
	return -1
}

func (n *Node) detach(child *Node) {
	if i := n.indexOf(child); i >= 0 {
		n.Children = append(n.Children[:i], n.Children[i+1:]...)
	}
	child.parent = nil
}

// Host implements internal.Host on top of an in-memory tree. It is safe to
// inspect from tests while the engine is idle.
type Host struct {
	mu sync.Mutex

	nextID     int
	ops        []Op
	failures   map[OpKind]error
	commits    int
	committing bool
	onCommit   []func()
}

var _ internal.Host = (*Host)(nil)

func New() *Host {
	return &Host{
		failures: make(map[OpKind]error),
	}
}

// NewContainer creates a detached root node to render into.
func (h *Host) NewContainer(tag string) *Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.newNode(tag)
}

func (h *Host) newNode(tag string) *Node {
	h.nextID++
	return &Node{ID: h.nextID, Tag: tag}
}

// FailNext makes the next operation of kind fail with err.
func (h *Host) FailNext(kind OpKind, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[kind] = err
}

// OnCommit registers fn to run after every completed mutation pass.
func (h *Host) OnCommit(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommit = append(h.onCommit, fn)
}

// Ops returns the recorded operations, excluding commit markers.
func (h *Host) Ops() []Op {
	h.mu.Lock()
	defer h.mu.Unlock()

	ops := make([]Op, 0, len(h.ops))
	for _, op := range h.ops {
		if op.Kind != OpPrepare && op.Kind != OpReset {
			ops = append(ops, op)
		}
	}
	return ops
}

// Log returns the recorded operations as strings.
func (h *Host) Log() []string {
	ops := h.Ops()
	log := make([]string, len(ops))
	for i, op := range ops {
		log[i] = op.String()
	}
	return log
}

// Count returns how many operations of kind were recorded.
func (h *Host) Count(kind OpKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, op := range h.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

func (h *Host) ClearLog() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = nil
}

// Commits returns the number of completed mutation passes.
func (h *Host) Commits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commits
}

func (h *Host) record(op Op) error {
	if err, ok := h.failures[op.Kind]; ok {
		delete(h.failures, op.Kind)
		return errors.Wrapf(err, "memhost: %s %s", op.Kind, op.Target)
	}
	h.ops = append(h.ops, op)
	return nil
}

func asNode(inst internal.HostInstance) (*Node, error) {
	n, ok := inst.(*Node)
	if !ok || n == nil {
		return nil, errors.Errorf("memhost: unexpected instance %T", inst)
	}
	return n, nil
}

func (h *Host) CreateInstance(tag string, props internal.Props) (internal.HostInstance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.newNode(tag)
	n.Props = copyProps(props)
	if err := h.record(Op{Kind: OpCreate, Target: n.String()}); err != nil {
		return nil, err
	}
	return n, nil
}

func (h *Host) CreateTextInstance(text string) (internal.HostInstance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.newNode("")
	n.text = true
	n.Text = text
	if err := h.record(Op{Kind: OpCreateText, Target: n.String()}); err != nil {
		return nil, err
	}
	return n, nil
}

func (h *Host) AppendInitialChild(parent, child internal.HostInstance) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := asNode(parent)
	if err != nil {
		return err
	}
	c, err := asNode(child)
	if err != nil {
		return err
	}
	p.Children = append(p.Children, c)
	c.parent = p
	return nil
}

func (h *Host) AppendChild(parent, child internal.HostInstance) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := asNode(parent)
	if err != nil {
		return err
	}
	c, err := asNode(child)
	if err != nil {
		return err
	}
	if err := h.record(Op{Kind: OpAppend, Target: c.String(), Parent: p.String()}); err != nil {
		return err
	}

	if c.parent != nil {
		c.parent.detach(c)
	}
	p.Children = append(p.Children, c)
	c.parent = p
	return nil
}

func (h *Host) InsertBefore(parent, child, before internal.HostInstance) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := asNode(parent)
	if err != nil {
		return err
	}
	c, err := asNode(child)
	if err != nil {
		return err
	}
	b, err := asNode(before)
	if err != nil {
		return err
	}
	if err := h.record(Op{Kind: OpInsert, Target: c.String(), Parent: p.String(), Before: b.String()}); err != nil {
		return err
	}

	if c.parent != nil {
		c.parent.detach(c)
	}
	i := p.indexOf(b)
	if i < 0 {
		return errors.Errorf("memhost: %s is not a child of %s", b, p)
	}
	p.Children = append(p.Children, nil)
	copy(p.Children[i+1:], p.Children[i:])
	p.Children[i] = c
	c.parent = p
	return nil
}

func (h *Host) RemoveChild(parent, child internal.HostInstance) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := asNode(parent)
	if err != nil {
		return err
	}
	c, err := asNode(child)
	if err != nil {
		return err
	}
	if err := h.record(Op{Kind: OpRemove, Target: c.String(), Parent: p.String()}); err != nil {
		return err
	}
	if p.indexOf(c) < 0 {
		return errors.Errorf("memhost: %s is not a child of %s", c, p)
	}
	p.detach(c)
	return nil
}

func (h *Host) CommitUpdate(inst internal.HostInstance, patch internal.Patch, oldProps, newProps internal.Props) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := asNode(inst)
	if err != nil {
		return err
	}
	if err := h.record(Op{Kind: OpUpdate, Target: n.String(), Patch: patch}); err != nil {
		return err
	}

	if n.Props == nil {
		n.Props = make(internal.Props)
	}
	for _, c := range patch {
		if c.Removed {
			delete(n.Props, c.Key)
		} else {
			n.Props[c.Key] = c.Value
		}
	}
	return nil
}

func (h *Host) CommitTextUpdate(inst internal.HostInstance, oldText, newText string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := asNode(inst)
	if err != nil {
		return err
	}
	if err := h.record(Op{Kind: OpUpdateText, Target: n.String()}); err != nil {
		return err
	}
	n.Text = newText
	return nil
}

func (h *Host) PrepareForCommit(container internal.HostInstance) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := asNode(container)
	if err != nil {
		return err
	}
	if err := h.record(Op{Kind: OpPrepare, Target: c.String()}); err != nil {
		return err
	}
	h.committing = true
	return nil
}

func (h *Host) ResetAfterCommit(container internal.HostInstance) {
	h.mu.Lock()
	h.committing = false
	h.commits++
	target := ""
	if c, err := asNode(container); err == nil {
		target = c.String()
	}
	h.ops = append(h.ops, Op{Kind: OpReset, Target: target})
	hooks := append([]func(){}, h.onCommit...)
	h.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Committing reports whether a mutation pass is in progress.
func (h *Host) Committing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.committing
}

// Live counts the nodes attached below container, container excluded.
func (h *Host) Live(container *Node) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return countNodes(container) - 1
}

func countNodes(n *Node) int {
	total := 1
	for _, c := range n.Children {
		total += countNodes(c)
	}
	return total
}

// String renders the children of container as markup with sorted attributes.
func (h *Host) String(container *Node) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	for _, c := range container.Children {
		writeNode(&b, c)
	}
	return b.String()
}

func writeNode(b *strings.Builder, n *Node) {
	if n.text {
		b.WriteString(n.Text)
		return
	}

	b.WriteString("<" + n.Tag)
	keys := make([]string, 0, len(n.Props))
	for k := range n.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%q", k, fmt.Sprint(n.Props[k]))
	}
	b.WriteString(">")

	for _, c := range n.Children {
		writeNode(b, c)
	}
	b.WriteString("</" + n.Tag + ">")
}

// Snapshot is a plain copy of a subtree, handy for structural comparisons.
type Snapshot struct {
	Tag      string
	Text     string
	Props    map[string]any
	Children []Snapshot
}

// Snapshot copies the children of container.
func (h *Host) Snapshot(container *Node) []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshotChildren(container)
}

func snapshotChildren(n *Node) []Snapshot {
	if len(n.Children) == 0 {
		return nil
	}
	out := make([]Snapshot, len(n.Children))
	for i, c := range n.Children {
		if c.text {
			out[i] = Snapshot{Text: c.Text}
			continue
		}
		out[i] = Snapshot{
			Tag:      c.Tag,
			Props:    copyProps(c.Props),
			Children: snapshotChildren(c),
		}
	}
	return out
}

func copyProps(p internal.Props) internal.Props {
	if len(p) == 0 {
		return nil
	}
	out := make(internal.Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

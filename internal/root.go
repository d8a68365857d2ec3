package internal

import (
	"github.com/AnatoleLucet/loom/internal/scheduler"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// nestedUpdateLimit bounds synchronous re-renders scheduled from commit
// callbacks before the root gives up.
const nestedUpdateLimit = 50

type Config struct {
	EnableSuspense  bool             `yaml:"enable_suspense"`
	EnableProfiling bool             `yaml:"enable_profiling"`
	ConcurrentMode  bool             `yaml:"concurrent_mode"`
	Expiration      ExpirationConfig `yaml:"expiration"`
}

func DefaultConfig() Config {
	return Config{
		EnableSuspense: true,
		Expiration:     DefaultExpirationConfig(),
	}
}

type RootOptions struct {
	Logger *logrus.Entry

	// OnUncaughtError receives render errors no boundary captured. The
	// root's output is cleared when this happens.
	OnUncaughtError func(err error)
}

// Root is the engine context of one tree: everything a render or commit
// needs lives here rather than in globals.
type Root struct {
	id        string
	sched     *scheduler.Scheduler
	host      Host
	container HostInstance
	cfg       Config
	log       *logrus.Entry
	onError   func(err error)

	arena    *arena
	tracker  *Tracker
	contexts *ExecutionContext
	batcher  *Batcher
	current  *Node

	// pending levels, most urgent first
	earliestPending   ExpirationTime
	latestPending     ExpirationTime
	earliestSuspended ExpirationTime
	latestSuspended   ExpirationTime
	latestPinged      ExpirationTime

	nextExpirationToWorkOn ExpirationTime
	expiration             ExpirationTime
	onlyParked             bool

	// render pass
	nextUnitOfWork   *Node
	renderExp        ExpirationTime
	finishedWork     *Node
	commitExp        ExpirationTime
	didReceiveUpdate bool
	hasForceUpdate   bool
	didSuspend       bool
	created          []*Node

	isWorking    bool
	isCommitting bool
	isRendering  bool

	nestedUpdates int

	task       *scheduler.Task
	taskExp    ExpirationTime
	taskParked bool

	pendingPassive         *Node
	pendingPassiveUnmounts []func()
	passiveTask            *scheduler.Task

	profile profile
}

func NewRoot(sched *scheduler.Scheduler, host Host, container HostInstance, cfg Config, opts RootOptions) *Root {
	r := &Root{
		id:        uuid.NewString(),
		sched:     sched,
		host:      host,
		container: container,
		cfg:       cfg,
		onError:   opts.OnUncaughtError,
		arena:     newArena(),
		contexts:  NewContext(),
		batcher:   NewBatcher(),
	}
	r.tracker = NewTracker(r)
	r.profile.enabled = cfg.EnableProfiling

	if r.cfg.Expiration == (ExpirationConfig{}) {
		r.cfg.Expiration = DefaultExpirationConfig()
	}
	r.cfg.Expiration = r.cfg.Expiration.normalize()

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r.log = log.WithFields(logrus.Fields{
		"root":      r.id,
		"component": "reconciler",
	})

	r.current = r.arena.newNode(HostRoot, "", nil)
	r.current.stateNode = r
	r.current.committedState = &rootState{}
	r.current.updateQueue = newUpdateQueue(r.current.committedState)

	return r
}

func (r *Root) ID() string {
	return r.id
}

func (r *Root) Profile() Profile {
	return r.profile.snapshot()
}

// LiveNodes reports how many arena slots are in use.
func (r *Root) LiveNodes() int {
	return r.arena.Live()
}

// InProgress reports whether a render pass is paused between slices.
func (r *Root) InProgress() bool {
	return r.nextUnitOfWork != nil
}

// Render schedules el as the new content of the root.
func (r *Root) Render(el *Element) error {
	if !r.sched.OnLoop() {
		r.sched.Post(func() { r.logError(r.Render(el)) })
		return nil
	}

	exp := r.computeExpirationForNode(r.requestCurrentTime())
	enqueueUpdate(r.current, &Update{
		expiration: exp,
		tag:        ReplaceState,
		payload:    &rootState{element: el},
	})
	return r.scheduleWork(r.current, exp)
}

// Batch runs fn and renders the updates it scheduled once, when the
// outermost batch returns.
func (r *Root) Batch(fn func()) error {
	return r.batcher.Batch(fn, r.ensureRootScheduled)
}

// FlushSync runs fn at immediate priority and renders its updates before
// returning.
func (r *Root) FlushSync(fn func()) error {
	var err error
	r.sched.WithPriority(scheduler.ImmediatePriority, func() {
		err = r.Batch(fn)
	})
	return err
}

// FlushPassiveEffects runs pending passive effects now.
func (r *Root) FlushPassiveEffects() error {
	r.flushPassiveEffects()
	return r.ensureRootScheduled()
}

func (r *Root) requestCurrentTime() ExpirationTime {
	return msToExpiration(int64(r.sched.NowMs()))
}

func (r *Root) computeExpirationForNode(currentTime ExpirationTime) ExpirationTime {
	if !r.cfg.ConcurrentMode {
		return Sync
	}
	if r.isWorking {
		if r.isCommitting {
			return Sync
		}
		return r.renderExp
	}
	return r.cfg.Expiration.expirationForPriority(r.sched.CurrentPriority(), currentTime)
}

// propagateToRoot records exp on n and raises the child expiration of every
// ancestor. It reports whether the walk reached this root.
func (r *Root) propagateToRoot(n *Node, exp ExpirationTime) bool {
	if n.expiration < exp {
		n.expiration = exp
	}
	if alt := n.alternate(); alt != nil && alt.expiration < exp {
		alt.expiration = exp
	}

	node := n
	for p := n.parent; p != nil; p = p.parent {
		if p.childExpiration < exp {
			p.childExpiration = exp
		}
		if alt := p.alternate(); alt != nil && alt.childExpiration < exp {
			alt.childExpiration = exp
		}
		node = p
	}

	return node.Kind == HostRoot && node.stateNode == r
}

func (r *Root) scheduleWork(n *Node, exp ExpirationTime) error {
	if !r.propagateToRoot(n, exp) {
		r.log.WithFields(logrus.Fields{
			"code":      ErrCodeUpdateOnUnmounted,
			"component": n.componentName(),
		}).Warn("update scheduled on a node that is no longer mounted")
		return nil
	}

	if !r.isWorking && r.renderExp != NoWork && exp >= r.renderExp {
		// more or equally urgent work arrived while a pass was paused
		r.log.WithField("expiration", exp).Debug("interrupting render")
		r.profile.interrupt()
		r.resetStack()
	}

	r.markPending(exp)

	if r.isWorking && !r.isCommitting {
		// picked up when the current pass finishes
		return nil
	}
	return r.ensureRootScheduled()
}

func (r *Root) scheduleWorkLogged(n *Node, exp ExpirationTime) {
	r.logError(r.scheduleWork(n, exp))
}

func (r *Root) ensureRootScheduledLogged() {
	r.logError(r.ensureRootScheduled())
}

func (r *Root) logError(err error) {
	if err != nil {
		r.log.WithError(err).Error("render failed")
	}
}

// ensureRootScheduled makes sure the root's pending work will run: sync work
// runs now, anything else gets a scheduler task at the matching priority.
func (r *Root) ensureRootScheduled() error {
	if r.isRendering || r.isCommitting {
		return nil
	}
	if r.batcher.IsBatching() {
		r.batcher.Defer()
		return nil
	}

	switch exp := r.expiration; {
	case exp == NoWork:
		r.cancelTask()
		return nil
	case exp == Sync:
		return r.performSyncWork()
	default:
		r.scheduleCallback(exp)
		return nil
	}
}

func (r *Root) cancelTask() {
	if r.task != nil {
		r.sched.Cancel(r.task)
		r.task = nil
		r.taskExp = NoWork
	}
}

func (r *Root) scheduleCallback(exp ExpirationTime) {
	if r.task != nil && !r.task.Canceled() {
		if r.taskParked == r.onlyParked && r.taskExp >= exp {
			return
		}
		r.sched.Cancel(r.task)
	}

	now := r.requestCurrentTime()
	opts := scheduler.Options{}
	priority := r.cfg.Expiration.priorityForExpiration(now, exp)

	if r.onlyParked {
		priority = scheduler.IdlePriority
		opts.Delay = msDuration(r.cfg.Expiration.SuspendRetryMs)
	} else if timeout := expirationToMs(exp) - expirationToMs(now); timeout > 0 {
		opts.Timeout = msDuration(timeout)
	}

	r.taskExp = exp
	r.taskParked = r.onlyParked
	r.task = r.sched.Schedule(priority, r.performAsyncWork, opts)
}

func (r *Root) performAsyncWork(didTimeout bool) (scheduler.Callback, error) {
	if err := r.performWork(!didTimeout); err != nil {
		r.task = nil
		return nil, err
	}

	if r.nextUnitOfWork != nil || r.finishedWork != nil {
		return r.performAsyncWork, nil
	}

	r.task = nil
	r.taskExp = NoWork
	return nil, r.ensureRootScheduled()
}

func (r *Root) performSyncWork() error {
	for r.expiration == Sync {
		if err := r.performWorkOnRoot(false); err != nil {
			return err
		}
	}
	return r.ensureRootScheduled()
}

// performWork renders and commits levels until the root has no work left or,
// when yielding is allowed, the slice is used up.
func (r *Root) performWork(yieldy bool) error {
	for r.expiration != NoWork {
		allowYield := yieldy && r.expiration != Sync
		if err := r.performWorkOnRoot(allowYield); err != nil {
			return err
		}
		if r.nextUnitOfWork != nil || r.finishedWork != nil || r.onlyParked {
			return nil
		}
		if allowYield && r.sched.ShouldYield() {
			return nil
		}
	}
	return nil
}

func (r *Root) performWorkOnRoot(yieldy bool) error {
	r.isRendering = true
	defer func() { r.isRendering = false }()

	if r.finishedWork == nil {
		if err := r.renderRoot(yieldy); err != nil {
			return err
		}
		if r.finishedWork != nil && yieldy && r.sched.ShouldYield() {
			// commit in the next slice
			return nil
		}
	}

	if r.finishedWork != nil {
		return r.commitRoot(r.finishedWork)
	}
	return nil
}

// resetStack throws away the paused pass so the next render starts from the
// committed tree.
func (r *Root) resetStack() {
	if r.nextUnitOfWork != nil {
		for n := r.nextUnitOfWork.parent; n != nil; n = n.parent {
			r.unwindInterruptedWork(n)
		}
	}
	r.contexts.Reset()
	r.tracker.reset()
	r.tracker.readingNode = nil

	r.releaseCreated(nil)

	r.nextUnitOfWork = nil
	r.finishedWork = nil
	r.renderExp = NoWork
	r.didSuspend = false
}

// releaseCreated frees the slots of nodes created by the last pass that did
// not end up in finished.
func (r *Root) releaseCreated(finished *Node) {
	var tree *attachment
	if finished != nil {
		tree = newAttachment(finished)
	}
	for _, n := range r.created {
		if tree == nil || !tree.attached(n) {
			r.arena.release(n)
		}
	}
	r.created = r.created[:0]
}

// attachment answers whether nodes hang below root through child links.
// Each parent's child list is scanned once, however many of its children
// are asked about.
type attachment struct {
	root    *Node
	known   map[*Node]bool
	scanned map[*Node]bool
	linked  map[*Node]bool
}

func newAttachment(root *Node) *attachment {
	return &attachment{
		root:    root,
		known:   map[*Node]bool{root: true},
		scanned: map[*Node]bool{},
		linked:  map[*Node]bool{},
	}
}

func (a *attachment) attached(n *Node) bool {
	if ok, seen := a.known[n]; seen {
		return ok
	}

	ok := false
	if p := n.parent; p != nil && a.attached(p) {
		if !a.scanned[p] {
			for c := p.child; c != nil; c = c.sibling {
				a.linked[c] = true
			}
			a.scanned[p] = true
		}
		ok = a.linked[n]
	}
	a.known[n] = ok
	return ok
}

func (r *Root) reportUncaught(err error) {
	r.log.WithError(err).Error("uncaught render error, root output cleared")
	if r.onError != nil {
		r.onError(err)
	}
}

// markPending records a new pending level.
func (r *Root) markPending(exp ExpirationTime) {
	if r.earliestPending == NoWork {
		r.earliestPending = exp
		r.latestPending = exp
	} else if r.earliestPending < exp {
		r.earliestPending = exp
	} else if r.latestPending > exp {
		r.latestPending = exp
	}
	r.findNextExpiration()
}

// markCommitted drops every level more urgent than remaining.
func (r *Root) markCommitted(remaining ExpirationTime) {
	if remaining == NoWork {
		r.earliestPending, r.latestPending = NoWork, NoWork
		r.earliestSuspended, r.latestSuspended = NoWork, NoWork
		r.latestPinged = NoWork
		r.findNextExpiration()
		return
	}

	if r.latestPending != NoWork {
		if r.latestPending > remaining {
			r.earliestPending, r.latestPending = NoWork, NoWork
		} else if r.earliestPending > remaining {
			r.earliestPending = r.latestPending
		}
	}

	switch {
	case r.earliestSuspended == NoWork:
		r.markPending(remaining)
		return
	case remaining < r.latestSuspended:
		r.earliestSuspended, r.latestSuspended = NoWork, NoWork
		r.latestPinged = NoWork
		r.markPending(remaining)
		return
	case remaining > r.earliestSuspended:
		r.markPending(remaining)
		return
	}
	r.findNextExpiration()
}

// markSuspended parks exp until it is pinged or retried.
func (r *Root) markSuspended(exp ExpirationTime) {
	switch {
	case r.earliestPending == exp && r.latestPending == exp:
		r.earliestPending, r.latestPending = NoWork, NoWork
	case r.earliestPending == exp:
		r.earliestPending = r.latestPending
	case r.latestPending == exp:
		r.latestPending = r.earliestPending
	}

	if r.latestPinged == exp {
		r.latestPinged = NoWork
	}

	if r.earliestSuspended == NoWork {
		r.earliestSuspended = exp
		r.latestSuspended = exp
	} else if r.earliestSuspended < exp {
		r.earliestSuspended = exp
	} else if r.latestSuspended > exp {
		r.latestSuspended = exp
	}
	r.findNextExpiration()
}

func (r *Root) markPinged(exp ExpirationTime) {
	if r.latestPinged == NoWork || r.latestPinged > exp {
		r.latestPinged = exp
	}
	r.findNextExpiration()
}

// findNextExpiration picks the level the next pass renders: the most urgent
// pending one, else a pinged one, else a parked one retried at idle.
func (r *Root) findNextExpiration() {
	r.onlyParked = false

	next := r.earliestPending
	if next == NoWork {
		next = r.latestPinged
	}
	r.nextExpirationToWorkOn = next
	r.expiration = next

	if next == NoWork && r.earliestSuspended != NoWork {
		r.nextExpirationToWorkOn = r.earliestSuspended
		r.expiration = Never
		r.onlyParked = true
	}
}

func (r *Root) renderRoot(yieldy bool) error {
	r.flushPassiveEffects()

	r.isWorking = true
	defer func() { r.isWorking = false }()

	exp := r.nextExpirationToWorkOn
	if exp != r.renderExp || r.nextUnitOfWork == nil {
		r.resetStack()
		r.renderExp = exp
		r.nextUnitOfWork = createWorkInProgress(r.current, nil)
		r.nextUnitOfWork.parent = nil
		r.profile.render()
		r.log.WithField("expiration", exp).Debug("render started")
	}

	start := r.sched.Now()
	defer func() { r.profile.renderSlice(start) }()

	for {
		err := r.workLoop(yieldy)
		if err == nil {
			break
		}
		if isHostError(err) {
			r.resetStack()
			return err
		}

		source := r.nextUnitOfWork
		if source == nil || source.parent == nil {
			// the root itself failed to render
			r.resetStack()
			r.markCommitted(NoWork)
			r.reportUncaught(err)
			return nil
		}

		r.throwException(source.parent, source, err, r.renderExp)
		next, cerr := r.completeUnitOfWork(source)
		if cerr != nil {
			r.resetStack()
			return cerr
		}
		r.nextUnitOfWork = next
	}

	if r.nextUnitOfWork != nil {
		r.profile.yield()
		r.log.Debug("render yielded")
		return nil
	}

	finished := r.current.alternate()
	if r.didSuspend {
		r.resetStack()
		r.markSuspended(exp)
		r.log.WithField("expiration", exp).Debug("render suspended without a boundary, level parked")
		return nil
	}

	r.finishedWork = finished
	r.commitExp = exp
	return nil
}

// workLoop performs units of work until the tree is done or the slice is
// over. Panics from render units come back as errors with nextUnitOfWork
// still pointing at the failing node.
func (r *Root) workLoop(yieldy bool) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.tracker.reset()
			r.tracker.readingNode = nil
			err = errorFromPanic(rec)
		}
	}()

	for r.nextUnitOfWork != nil {
		next, err := r.performUnitOfWork(r.nextUnitOfWork)
		if err != nil {
			return err
		}
		r.nextUnitOfWork = next

		// at least one unit per slice so a paused pass always progresses
		if yieldy && r.sched.ShouldYield() {
			return nil
		}
	}
	return nil
}

func (r *Root) performUnitOfWork(wip *Node) (*Node, error) {
	current := wip.alternate()

	next, err := r.beginWork(current, wip, r.renderExp)
	if err != nil {
		return nil, err
	}
	wip.committedProps = wip.pendingProps

	if next == nil {
		return r.completeUnitOfWork(wip)
	}
	return next, nil
}

// completeUnitOfWork completes wip and its ancestors until one of them has
// a sibling left to begin. Incomplete nodes are unwound instead.
func (r *Root) completeUnitOfWork(wip *Node) (*Node, error) {
	for {
		current := wip.alternate()
		parent := wip.parent
		sibling := wip.sibling

		if !wip.flags.Has(Incomplete) {
			if err := r.completeWork(current, wip); err != nil {
				return nil, err
			}
			resetChildExpiration(wip)

			if parent != nil && !parent.flags.Has(Incomplete) {
				appendEffects(parent, wip)
			}
		} else {
			if next := r.unwindWork(wip); next != nil {
				next.flags &= HostEffectMask
				return next, nil
			}
			if parent != nil {
				parent.firstEffect = nil
				parent.lastEffect = nil
				parent.flags.set(Incomplete)
			}
		}

		if sibling != nil {
			return sibling, nil
		}
		if parent == nil {
			return nil, nil
		}
		wip = parent
	}
}

func (r *Root) markNestedUpdate(remaining ExpirationTime) error {
	if remaining != Sync {
		r.nestedUpdates = 0
		return nil
	}

	r.nestedUpdates++
	if r.nestedUpdates <= nestedUpdateLimit {
		return nil
	}

	r.nestedUpdates = 0
	r.markCommitted(NoWork)
	return errors.WithStack(&ContractError{
		Code:    ErrCodeMaxUpdateDepth,
		Message: "maximum update depth exceeded, a commit callback keeps scheduling updates",
	})
}

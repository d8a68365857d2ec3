package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var (
	// ErrWrongGoroutine is raised when the scheduler is driven from a goroutine
	// other than the one it is bound to. Use Post to hand work over instead.
	ErrWrongGoroutine = errors.New("scheduler: called from a goroutine that does not own the loop")

	// ErrReentrantStep is returned when Step or Flush is called from inside a task.
	ErrReentrantStep = errors.New("scheduler: cannot step from within a task")
)

// DefaultSliceDuration is how long the loop runs tasks before yielding back.
const DefaultSliceDuration = 5 * time.Millisecond

// Callback is a unit of scheduled work. It may return a continuation, which
// replaces the callback and keeps the task queued at the same priority.
type Callback func(didTimeout bool) (Callback, error)

// Options tunes a single Schedule call. A zero Timeout uses the priority's
// default timeout.
type Options struct {
	Delay   time.Duration
	Timeout time.Duration
}

type Task struct {
	id       uint64
	callback Callback
	priority Priority
	canceled bool
	delayed  bool

	startTime      time.Time
	expirationTime time.Time

	index int // position in its heap, -1 when not queued
}

func (t *Task) Priority() Priority        { return t.priority }
func (t *Task) ExpirationTime() time.Time { return t.expirationTime }
func (t *Task) Canceled() bool            { return t.canceled }

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithSliceDuration(d time.Duration) Option {
	return func(s *Scheduler) { s.slice = d }
}

func WithTimeouts(t Timeouts) Option {
	return func(s *Scheduler) { s.timeouts = t }
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler is a cooperative, single goroutine task loop. Ready tasks are
// kept in a min-heap by expiration; delayed tasks wait in a second heap keyed
// by their start time until they are due.
type Scheduler struct {
	clock    clock.Clock
	origin   time.Time
	slice    time.Duration
	timeouts Timeouts
	log      *logrus.Entry

	taskQueue  *taskHeap
	timerQueue *taskHeap
	nextID     uint64

	currentPriority Priority
	currentTask     *Task
	performing      bool
	sliceStart      time.Time

	ingress *ingressQueue

	// goroutine id of the loop owner, 0 while unbound
	owner atomic.Int64
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:      clock.NewClock(),
		slice:      DefaultSliceDuration,
		timeouts:   DefaultTimeouts(),
		taskQueue:  newTaskHeap(expirationKey),
		timerQueue: newTaskHeap(startKey),
		ingress:    newIngressQueue(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("component", "scheduler")
	s.origin = s.clock.Now()

	return s
}

// Now returns the scheduler's clock reading.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// NowMs returns milliseconds elapsed since the scheduler was created.
func (s *Scheduler) NowMs() float64 {
	return float64(s.clock.Now().Sub(s.origin)) / float64(time.Millisecond)
}

// Timeouts returns the per priority timeouts the scheduler was built with.
func (s *Scheduler) Timeouts() Timeouts {
	return s.timeouts
}

// OnLoop reports whether the calling goroutine may drive the scheduler.
func (s *Scheduler) OnLoop() bool {
	owner := s.owner.Load()
	return owner == 0 || owner == goid.Get()
}

func (s *Scheduler) bind() {
	gid := goid.Get()
	if s.owner.CompareAndSwap(0, gid) {
		return
	}
	if s.owner.Load() != gid {
		panic(ErrWrongGoroutine)
	}
}

// Post hands fn over to the loop goroutine. It is safe to call from any
// goroutine; fn runs at normal priority the next time the loop steps.
func (s *Scheduler) Post(fn func()) {
	s.ingress.Enqueue(fn)
}

// Schedule queues cb at priority p and returns a handle that can cancel it.
func (s *Scheduler) Schedule(p Priority, cb Callback, opts Options) *Task {
	s.bind()

	if p == NoPriority {
		p = NormalPriority
	}

	now := s.clock.Now()
	start := now
	if opts.Delay > 0 {
		start = now.Add(opts.Delay)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = s.timeouts.For(p)
	}

	s.nextID++
	t := &Task{
		id:             s.nextID,
		callback:       cb,
		priority:       p,
		startTime:      start,
		expirationTime: deadline(start, timeout),
		index:          -1,
	}

	if start.After(now) {
		t.delayed = true
		s.timerQueue.push(t)
	} else {
		s.taskQueue.push(t)
	}

	s.log.WithFields(logrus.Fields{
		"task":     t.id,
		"priority": p,
		"delay":    opts.Delay,
	}).Debug("task scheduled")

	return t
}

// Cancel drops a task that has not run yet. Cancelling a finished task is a no-op.
func (s *Scheduler) Cancel(t *Task) {
	if t == nil || t.canceled {
		return
	}
	s.bind()

	t.canceled = true
	t.callback = nil

	if t.delayed {
		s.timerQueue.remove(t)
	} else {
		s.taskQueue.remove(t)
	}
}

// CurrentPriority is the ambient priority read by nested Schedule calls and
// by the reconciler when it picks an expiration for an update.
func (s *Scheduler) CurrentPriority() Priority {
	if s.currentPriority == NoPriority {
		return NormalPriority
	}
	return s.currentPriority
}

// WithPriority runs fn with p as the ambient priority.
func (s *Scheduler) WithPriority(p Priority, fn func()) {
	prev := s.currentPriority
	s.currentPriority = p
	defer func() { s.currentPriority = prev }()

	fn()
}

// RunWithPriority runs fn with p as the ambient priority and returns its result.
func RunWithPriority[T any](s *Scheduler, p Priority, fn func() T) T {
	var result T
	s.WithPriority(p, func() { result = fn() })
	return result
}

// ShouldYield reports whether the running task has used up its time slice.
func (s *Scheduler) ShouldYield() bool {
	if !s.performing {
		return false
	}
	return s.clock.Since(s.sliceStart) >= s.slice
}

// Pending reports whether tasks are ready now or work was posted.
func (s *Scheduler) Pending() bool {
	s.advanceTimers(s.clock.Now())
	return s.taskQueue.Len() > 0 || s.ingress.Len() > 0
}

// Delayed reports how many tasks are waiting for their start time.
func (s *Scheduler) Delayed() int {
	return s.timerQueue.Len()
}

// Step runs ready tasks for one time slice. It reports whether ready work
// remains. A failing task is dropped and its error returned once the loop
// state has been restored, so the heaps stay consistent.
func (s *Scheduler) Step() (bool, error) {
	s.bind()
	if s.performing {
		return false, ErrReentrantStep
	}

	if err := s.drainIngress(); err != nil {
		return s.Pending(), err
	}

	s.performing = true
	s.sliceStart = s.clock.Now()
	err := s.workLoop()
	s.performing = false

	return s.Pending(), err
}

// Flush steps until no ready work remains or a task fails. Delayed tasks
// that are not yet due stay queued.
func (s *Scheduler) Flush() error {
	for {
		more, err := s.Step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Run drives the loop on the calling goroutine until ctx is done. Task
// errors are logged and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	s.bind()

	for {
		more, err := s.Step()
		if err != nil {
			s.log.WithError(err).Error("task failed")
		}
		if more {
			continue
		}

		var (
			timer  clock.Timer
			timerC <-chan time.Time
		)
		if next := s.timerQueue.peek(); next != nil {
			timer = s.clock.NewTimer(next.startTime.Sub(s.clock.Now()))
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-s.ingress.Wait():
		case <-timerC:
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// drainIngress runs everything posted so far. A failing item does not stop
// the ones after it; the failures are returned together.
func (s *Scheduler) drainIngress() error {
	var errs error
	for _, fn := range s.ingress.Drain() {
		var err error
		s.WithPriority(NormalPriority, func() {
			_, err = s.invoke(func(bool) (Callback, error) {
				fn()
				return nil, nil
			}, false)
		})
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "posted work"))
		}
	}
	return errs
}

// advanceTimers promotes delayed tasks whose start time has passed.
func (s *Scheduler) advanceTimers(now time.Time) {
	for t := s.timerQueue.peek(); t != nil; t = s.timerQueue.peek() {
		if t.startTime.After(now) {
			return
		}

		s.timerQueue.pop()
		if t.canceled {
			continue
		}

		t.delayed = false
		s.taskQueue.push(t)
	}
}

func (s *Scheduler) workLoop() error {
	now := s.clock.Now()
	s.advanceTimers(now)

	ran := false
	for t := s.taskQueue.peek(); t != nil; t = s.taskQueue.peek() {
		// every slice runs at least one task; expired tasks run regardless
		if ran && t.expirationTime.After(now) && s.ShouldYield() {
			return nil
		}
		ran = true

		cb := t.callback
		if cb == nil {
			s.taskQueue.remove(t)
			continue
		}
		t.callback = nil

		didTimeout := !t.expirationTime.After(now)

		prevPriority := s.currentPriority
		s.currentPriority = t.priority
		s.currentTask = t

		cont, err := s.invoke(cb, didTimeout)

		s.currentTask = nil
		s.currentPriority = prevPriority
		now = s.clock.Now()

		if err != nil {
			s.taskQueue.remove(t)
			return errors.Wrapf(err, "task %d (%s)", t.id, t.priority)
		}

		if cont != nil && !t.canceled {
			t.callback = cont
		} else {
			s.taskQueue.remove(t)
		}

		s.advanceTimers(now)
	}

	return nil
}

func (s *Scheduler) invoke(cb Callback, didTimeout bool) (cont Callback, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.WithStack(e)
			} else {
				err = errors.Errorf("panic: %v", r)
			}
			cont = nil
		}
	}()

	return cb(didTimeout)
}

// Package loom reconciles trees of elements against a host tree. Renders are
// split into interruptible units of work driven by a priority scheduler; the
// resulting mutations are applied to the host in one commit.
package loom

import (
	"github.com/sirupsen/logrus"

	"github.com/AnatoleLucet/loom/internal"
	"github.com/AnatoleLucet/loom/internal/scheduler"
)

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}

	return v.(T)
}

type (
	Scheduler       = scheduler.Scheduler
	SchedulerOption = scheduler.Option
	Priority        = scheduler.Priority
	Timeouts        = scheduler.Timeouts

	Host         = internal.Host
	HostInstance = internal.HostInstance
	Props        = internal.Props
	Patch        = internal.Patch
	PropChange   = internal.PropChange

	Config           = internal.Config
	ExpirationConfig = internal.ExpirationConfig
	Profile          = internal.Profile
)

const (
	ImmediatePriority    = scheduler.ImmediatePriority
	UserBlockingPriority = scheduler.UserBlockingPriority
	NormalPriority       = scheduler.NormalPriority
	LowPriority          = scheduler.LowPriority
	IdlePriority         = scheduler.IdlePriority
)

var (
	WithClock           = scheduler.WithClock
	WithSliceDuration   = scheduler.WithSliceDuration
	WithTimeouts        = scheduler.WithTimeouts
	WithSchedulerLogger = scheduler.WithLogger
)

// NewScheduler creates a scheduler. It binds to the first goroutine that
// schedules work on it; other goroutines hand work over through Post.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	return scheduler.New(opts...)
}

// WithPriority runs fn with p as the ambient priority. Updates dispatched
// inside fn are scheduled at p.
func WithPriority(s *Scheduler, p Priority, fn func()) {
	s.WithPriority(p, fn)
}

// RunWithPriority runs fn with p as the ambient priority and returns its
// result.
func RunWithPriority[T any](s *Scheduler, p Priority, fn func() T) T {
	return scheduler.RunWithPriority(s, p, fn)
}

func DefaultConfig() Config {
	return internal.DefaultConfig()
}

type rootOptions struct {
	log     *logrus.Entry
	onError func(error)
}

type RootOption func(*rootOptions)

// WithLogger sets the logger of a root.
func WithLogger(l *logrus.Entry) RootOption {
	return func(o *rootOptions) { o.log = l }
}

// WithUncaughtErrorHandler receives render errors that no boundary captured.
// The root's output has already been cleared when fn runs.
func WithUncaughtErrorHandler(fn func(err error)) RootOption {
	return func(o *rootOptions) { o.onError = fn }
}

// Root owns one rendered tree inside a host container.
type Root struct {
	root *internal.Root
}

// NewRoot creates a root rendering into container.
func NewRoot(sched *Scheduler, host Host, container any, cfg Config, opts ...RootOption) *Root {
	o := rootOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Root{
		internal.NewRoot(sched, host, container, cfg, internal.RootOptions{
			Logger:          o.log,
			OnUncaughtError: o.onError,
		}),
	}
}

// ID is the unique id of the root, used in its log fields.
func (r *Root) ID() string {
	return r.root.ID()
}

// Render replaces the content of the root with el. In legacy mode the tree
// is committed before Render returns; in concurrent mode the render is
// scheduled.
func (r *Root) Render(el *Element) error {
	return r.root.Render(el)
}

// Unmount removes everything the root rendered.
func (r *Root) Unmount() error {
	return r.root.Render(nil)
}

// Batch runs fn and renders the updates it made once it returns.
func (r *Root) Batch(fn func()) error {
	return r.root.Batch(fn)
}

// FlushSync runs fn at immediate priority and commits its updates before
// returning.
func (r *Root) FlushSync(fn func()) error {
	return r.root.FlushSync(fn)
}

// FlushPassiveEffects runs the passive effects of the last commit now
// instead of waiting for the scheduler.
func (r *Root) FlushPassiveEffects() error {
	return r.root.FlushPassiveEffects()
}

func (r *Root) Profile() Profile {
	return r.root.Profile()
}

// LiveNodes reports how many work nodes the root holds.
func (r *Root) LiveNodes() int {
	return r.root.LiveNodes()
}

// InProgress reports whether a render is paused between two slices.
func (r *Root) InProgress() bool {
	return r.root.InProgress()
}

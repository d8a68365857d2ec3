package loom

import (
	"io"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/AnatoleLucet/loom/internal/memhost"
)

type harness struct {
	t *testing.T

	clock     *fakeclock.FakeClock
	sched     *Scheduler
	host      *memhost.Host
	container *memhost.Node
	root      *Root
	logs      *test.Hook

	uncaught []error
}

type harnessOption func(*Config)

func concurrent(cfg *Config) {
	cfg.ConcurrentMode = true
}

// newHarness builds a root on an in-memory host. The scheduler's slice is
// zero so a concurrent render performs one unit of work per step.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	cfg := DefaultConfig()
	cfg.EnableProfiling = true
	for _, opt := range opts {
		opt(&cfg)
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	logger.Out = io.Discard

	h := &harness{
		t:     t,
		clock: fakeclock.NewFakeClock(time.Unix(0, 0)),
		host:  memhost.New(),
		logs:  hook,
	}
	h.sched = NewScheduler(
		WithClock(h.clock),
		WithSliceDuration(0),
		WithSchedulerLogger(logrus.NewEntry(logger)),
	)
	h.container = h.host.NewContainer("root")
	h.root = NewRoot(h.sched, h.host, h.container, cfg,
		WithLogger(logrus.NewEntry(logger)),
		WithUncaughtErrorHandler(func(err error) { h.uncaught = append(h.uncaught, err) }),
	)
	return h
}

// render renders el and runs the scheduler until it is idle.
func (h *harness) render(el *Element) {
	h.t.Helper()
	require.NoError(h.t, h.root.Render(el))
	h.flush()
}

func (h *harness) flush() {
	h.t.Helper()
	require.NoError(h.t, h.sched.Flush())
}

func (h *harness) html() string {
	return h.host.String(h.container)
}

func (h *harness) warnings() []logrus.Fields {
	var out []logrus.Fields
	for _, e := range h.logs.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e.Data)
		}
	}
	return out
}

func recoverError(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}

package loom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatoleLucet/loom/internal/memhost"
)

func TestConcurrent(t *testing.T) {
	var set func(string)
	app := NewComponent("App", func(s *Scope, _ struct{}) (*Element, error) {
		v, setV := UseState(s, "init")
		set = setV
		return H("div", nil,
			H("p", nil, Text(v)),
			H("p", nil, Text("static")),
		), nil
	})

	t.Run("render is scheduled and split into slices", func(t *testing.T) {
		h := newHarness(t, concurrent)

		require.NoError(t, h.root.Render(C(app, struct{}{})))
		assert.Empty(t, h.html())

		more, err := h.sched.Step()
		require.NoError(t, err)
		assert.True(t, more)
		assert.True(t, h.root.InProgress())
		assert.Empty(t, h.html())

		h.flush()
		assert.False(t, h.root.InProgress())
		assert.Equal(t, "<div><p>init</p><p>static</p></div>", h.html())
		assert.Greater(t, h.root.Profile().Yields, int64(1))
		assert.EqualValues(t, 1, h.root.Profile().Commits)
	})

	t.Run("urgent update interrupts a paused render", func(t *testing.T) {
		h := newHarness(t, concurrent)
		require.NoError(t, h.root.Render(C(app, struct{}{})))
		h.flush()
		h.host.ClearLog()

		WithPriority(h.sched, LowPriority, func() { set("low") })

		for i := 0; i < 2; i++ {
			_, err := h.sched.Step()
			require.NoError(t, err)
		}
		require.True(t, h.root.InProgress())
		assert.Equal(t, "<div><p>init</p><p>static</p></div>", h.html())

		require.NoError(t, h.root.FlushSync(func() { set("high") }))
		assert.Equal(t, "<div><p>high</p><p>static</p></div>", h.html())

		h.flush()
		assert.Equal(t, "<div><p>high</p><p>static</p></div>", h.html())
		assert.Equal(t, 1, h.host.Count(memhost.OpUpdateText))
		assert.EqualValues(t, 1, h.root.Profile().Interruptions)
	})

	t.Run("less urgent updates do not restart a paused render", func(t *testing.T) {
		h := newHarness(t, concurrent)
		require.NoError(t, h.root.Render(C(app, struct{}{})))
		h.flush()

		seen := []string{}
		h.host.OnCommit(func() { seen = append(seen, h.html()) })

		set("mid")
		for i := 0; i < 2; i++ {
			_, err := h.sched.Step()
			require.NoError(t, err)
		}
		require.True(t, h.root.InProgress())

		WithPriority(h.sched, IdlePriority, func() { set("idle") })
		assert.True(t, h.root.InProgress())
		assert.EqualValues(t, 0, h.root.Profile().Interruptions)

		h.flush()
		assert.Equal(t, []string{
			"<div><p>mid</p><p>static</p></div>",
			"<div><p>idle</p><p>static</p></div>",
		}, seen)
		assert.EqualValues(t, 0, h.root.Profile().Interruptions)
	})

	t.Run("updates at the same priority share a render", func(t *testing.T) {
		h := newHarness(t, concurrent)
		require.NoError(t, h.root.Render(C(app, struct{}{})))
		h.flush()
		before := h.root.Profile().Commits

		set("a")
		set("b")
		h.flush()

		assert.Equal(t, "<div><p>b</p><p>static</p></div>", h.html())
		assert.Equal(t, before+1, h.root.Profile().Commits)
	})

	t.Run("a paused render does not touch the host", func(t *testing.T) {
		h := newHarness(t, concurrent)
		require.NoError(t, h.root.Render(C(app, struct{}{})))
		h.flush()
		h.host.ClearLog()

		set("next")
		_, err := h.sched.Step()
		require.NoError(t, err)
		require.True(t, h.root.InProgress())
		assert.Empty(t, h.host.Log())
		assert.False(t, h.host.Committing())

		h.flush()
		assert.Equal(t, []string{"update-text #text2"}, h.host.Log())
	})

	t.Run("run with priority returns the result under that priority", func(t *testing.T) {
		h := newHarness(t, concurrent)

		got := RunWithPriority(h.sched, UserBlockingPriority, func() Priority {
			return h.sched.CurrentPriority()
		})
		assert.Equal(t, UserBlockingPriority, got)
		assert.NotEqual(t, UserBlockingPriority, h.sched.CurrentPriority())
	})

	t.Run("flush sync commits before returning", func(t *testing.T) {
		h := newHarness(t, concurrent)

		require.NoError(t, h.root.FlushSync(func() {
			require.NoError(t, h.root.Render(C(app, struct{}{})))
		}))
		assert.Equal(t, "<div><p>init</p><p>static</p></div>", h.html())
	})
}

func TestConcurrentSuspense(t *testing.T) {
	renders := 0
	data := NewComponent("Data", func(s *Scope, r *Resource[string]) (*Element, error) {
		renders++
		v, err := r.Read()
		if err != nil {
			return nil, err
		}
		return H("p", nil, Text(v)), nil
	})

	t.Run("a boundary shows its fallback until the resource resolves", func(t *testing.T) {
		h := newHarness(t, concurrent)
		res := NewResource[string]()

		require.NoError(t, h.root.Render(Suspense(Text("loading"), C(data, res))))
		h.flush()
		assert.Equal(t, "loading", h.html())

		res.Resolve("ready")
		h.flush()
		assert.Equal(t, "<p>ready</p>", h.html())
		assert.Empty(t, h.uncaught)
	})

	t.Run("without a boundary the level is parked and retried", func(t *testing.T) {
		h := newHarness(t, concurrent)
		res := NewResource[string]()
		renders = 0

		require.NoError(t, h.root.Render(C(data, res)))
		h.flush()
		assert.Empty(t, h.html())
		assert.Empty(t, h.uncaught)
		assert.Equal(t, 1, renders)
		assert.Equal(t, 1, h.sched.Delayed())
		assert.EqualValues(t, 0, h.root.Profile().Commits)

		// the idle retry runs once its delay is over and parks again
		h.clock.Increment(time.Second)
		h.flush()
		assert.Equal(t, 2, renders)
		assert.Empty(t, h.html())
		assert.Equal(t, 1, h.sched.Delayed())

		// settling pings the parked level
		res.Resolve("late")
		h.flush()
		assert.Equal(t, 3, renders)
		assert.Equal(t, "<p>late</p>", h.html())
		assert.Equal(t, 0, h.sched.Delayed())
		assert.EqualValues(t, 1, h.root.Profile().Commits)
	})
}

package internal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/AnatoleLucet/loom/internal/scheduler"
)

func TestLongestIncreasing(t *testing.T) {
	t.Run("keeps the run that did not move", func(t *testing.T) {
		assert.Equal(t, []bool{false, true, true}, longestIncreasing([]int{2, 0, 1}))
		assert.Equal(t, []bool{true, true, true}, longestIncreasing([]int{0, 1, 2}))
		assert.Equal(t, []bool{}, longestIncreasing(nil))
	})

	t.Run("marks a longest strictly increasing subsequence", rapid.MakeCheck(func(t *rapid.T) {
		seq := rapid.Permutation(rapid.SliceOfNDistinct(rapid.IntRange(0, 1000), 0, 40, rapid.ID[int]).Draw(t, "values")).Draw(t, "seq")

		keep := longestIncreasing(seq)

		var picked []int
		for i, k := range keep {
			if k {
				picked = append(picked, seq[i])
			}
		}
		for i := 1; i < len(picked); i++ {
			if picked[i-1] >= picked[i] {
				t.Fatalf("picked %v is not increasing", picked)
			}
		}

		// quadratic reference
		best := 0
		lengths := make([]int, len(seq))
		for i := range seq {
			lengths[i] = 1
			for j := 0; j < i; j++ {
				if seq[j] < seq[i] && lengths[j]+1 > lengths[i] {
					lengths[i] = lengths[j] + 1
				}
			}
			if lengths[i] > best {
				best = lengths[i]
			}
		}
		if len(picked) != best {
			t.Fatalf("picked %d of %v, longest is %d", len(picked), seq, best)
		}
	}))
}

func TestDiffProps(t *testing.T) {
	handler := func() {}

	patch := diffProps(
		Props{"class": "a", "id": "x", "title": "t", "onClick": handler},
		Props{"class": "b", "id": "x", "lang": "en", "onClick": handler},
	)

	want := Patch{
		{Key: "class", Value: "b"},
		{Key: "lang", Value: "en"},
		{Key: "onClick", Value: handler},
		{Key: "title", Removed: true},
	}
	diff := cmp.Diff(want, patch, cmp.Comparer(func(a, b func()) bool { return (a == nil) == (b == nil) }))
	assert.Empty(t, diff)

	assert.Empty(t, diffProps(Props{"a": 1}, Props{"a": 1}))
	assert.Empty(t, diffProps(nil, nil))
}

func TestIsEqual(t *testing.T) {
	m := map[string]int{"a": 1}
	s := []int{1, 2}

	assert.True(t, isEqual(1, 1))
	assert.True(t, isEqual("a", "a"))
	assert.True(t, isEqual(nil, nil))
	assert.True(t, isEqual(m, m))
	assert.True(t, isEqual(s, s))

	assert.False(t, isEqual(1, int64(1)))
	assert.False(t, isEqual(m, map[string]int{"a": 1}))
	assert.False(t, isEqual(s, []int{1, 2}))
	assert.False(t, isEqual(func() {}, func() {}))
	assert.False(t, isEqual(nil, 0))

	assert.True(t, depsEqual([]any{1, "a"}, []any{1, "a"}))
	assert.False(t, depsEqual(nil, nil))
	assert.False(t, depsEqual([]any{1}, []any{2}))
}

func TestExpiration(t *testing.T) {
	cfg := DefaultExpirationConfig()

	t.Run("updates close in time share a bucket", func(t *testing.T) {
		a := cfg.async(msToExpiration(1000))
		b := cfg.async(msToExpiration(1100))
		c := cfg.async(msToExpiration(2000))

		assert.Equal(t, a, b)
		assert.Greater(t, a, c)
		assert.Greater(t, Sync, a)
		assert.Greater(t, a, Never)
	})

	t.Run("interactive work expires sooner than async work", func(t *testing.T) {
		now := msToExpiration(1000)
		assert.Greater(t, cfg.interactive(now), cfg.async(now))
	})

	t.Run("maps priorities both ways", func(t *testing.T) {
		now := msToExpiration(1000)

		assert.Equal(t, Sync, cfg.expirationForPriority(scheduler.ImmediatePriority, now))
		assert.Equal(t, Never, cfg.expirationForPriority(scheduler.IdlePriority, now))

		assert.Equal(t, scheduler.ImmediatePriority, cfg.priorityForExpiration(now, Sync))
		assert.Equal(t, scheduler.IdlePriority, cfg.priorityForExpiration(now, Never))
		assert.Equal(t, scheduler.UserBlockingPriority, cfg.priorityForExpiration(now, cfg.interactive(now)))
		assert.Equal(t, scheduler.NormalPriority, cfg.priorityForExpiration(now, cfg.async(now)))
		assert.Equal(t, scheduler.ImmediatePriority, cfg.priorityForExpiration(msToExpiration(9000), cfg.async(now)))
	})

	t.Run("round trips milliseconds at unit precision", func(t *testing.T) {
		assert.Equal(t, int64(1230), expirationToMs(msToExpiration(1230)))
		assert.Equal(t, int64(1230), expirationToMs(msToExpiration(1239)))
	})

	t.Run("windows finer than a unit are rejected or clamped", func(t *testing.T) {
		require.NoError(t, cfg.Validate())

		fine := cfg
		fine.AsyncBucketMs = 5
		assert.Error(t, fine.Validate())

		norm := ExpirationConfig{AsyncBucketMs: 5}.normalize()
		require.NoError(t, norm.Validate())
		assert.Equal(t, int64(unitSize), norm.AsyncBucketMs)
		assert.Equal(t, cfg.InteractiveBucketMs, norm.InteractiveBucketMs)
		assert.NotPanics(t, func() { norm.async(msToExpiration(1000)) })
	})
}

func appendTo(s string) StateFunc {
	return func(prev, props any) any {
		p, _ := prev.(string)
		return p + s
	}
}

func TestUpdateQueue(t *testing.T) {
	low := msToExpiration(1000)

	t.Run("skipped updates are replayed on the same base", func(t *testing.T) {
		r := NewRoot(nil, nil, nil, DefaultConfig(), RootOptions{})
		n := r.arena.newNode(StatefulComponent, "", nil)
		n.updateQueue = newUpdateQueue("")

		enqueueUpdate(n, &Update{expiration: low, tag: ReplaceState, payload: appendTo("A")})
		enqueueUpdate(n, &Update{expiration: Sync, tag: ReplaceState, payload: appendTo("B")})
		enqueueUpdate(n, &Update{expiration: low, tag: ReplaceState, payload: appendTo("C")})

		r.processUpdateQueue(n, nil, Sync)
		assert.Equal(t, "B", n.committedState)
		assert.Equal(t, low, n.expiration)

		r.processUpdateQueue(n, nil, low)
		assert.Equal(t, "ABC", n.committedState)
		assert.Equal(t, NoWork, n.expiration)
		assert.Nil(t, n.updateQueue.baseQueue)
	})

	t.Run("merges partial state and collects callbacks", func(t *testing.T) {
		r := NewRoot(nil, nil, nil, DefaultConfig(), RootOptions{})
		n := r.arena.newNode(StatefulComponent, "", nil)
		n.updateQueue = newUpdateQueue(State{"a": 1, "b": 1})

		calls := 0
		enqueueUpdate(n, &Update{expiration: Sync, tag: MergeState, payload: State{"b": 2}, callback: func() error {
			calls++
			return nil
		}})
		enqueueUpdate(n, &Update{expiration: Sync, tag: ForceRerun})

		r.processUpdateQueue(n, nil, Sync)
		assert.Equal(t, State{"a": 1, "b": 2}, n.committedState)
		assert.True(t, r.hasForceUpdate)
		assert.True(t, n.flags.Has(Callback))

		require.NoError(t, commitUpdateQueue(n.updateQueue))
		require.NoError(t, commitUpdateQueue(n.updateQueue))
		assert.Equal(t, 1, calls)
	})

	t.Run("a panicking callback becomes an error", func(t *testing.T) {
		q := newUpdateQueue(nil)
		q.callbacks = []*Update{
			{callback: func() error { panic("boom") }},
			{callback: func() error { return nil }},
		}
		err := commitUpdateQueue(q)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})
}

func TestArena(t *testing.T) {
	a := newArena()

	n := a.newNode(HostComponent, "", nil)
	wip := createWorkInProgress(n, nil)
	assert.Equal(t, 1, a.Live())
	assert.Same(t, wip, n.alternate())
	assert.Same(t, n, wip.alternate())

	// reusing the same pair does not allocate
	assert.Same(t, wip, createWorkInProgress(n, nil))

	a.release(n)
	assert.Equal(t, 0, a.Live())
	assert.False(t, n.live())
	assert.False(t, wip.live())
	assert.Nil(t, wip.alternate())

	m := a.newNode(HostText, "", nil)
	assert.Equal(t, n.id, m.id)
	assert.NotEqual(t, n.gen, m.gen)
	assert.False(t, n.live())
	assert.True(t, m.live())
}

func TestAttachment(t *testing.T) {
	a := newArena()
	link := func(parent *Node, children ...*Node) {
		var prev *Node
		for _, c := range children {
			c.parent = parent
			if prev == nil {
				parent.child = c
			} else {
				prev.sibling = c
			}
			prev = c
		}
	}

	root := a.newNode(HostRoot, "", nil)
	list := a.newNode(HostComponent, "", nil)
	link(root, list)

	items := make([]*Node, 1000)
	for i := range items {
		items[i] = a.newNode(HostComponent, "", nil)
	}
	link(list, items...)

	// left behind by a discarded attempt: points at list but is not linked
	dropped := a.newNode(HostComponent, "", nil)
	dropped.parent = list
	below := a.newNode(HostText, "", nil)
	link(dropped, below)

	tree := newAttachment(root)
	for _, n := range items {
		assert.True(t, tree.attached(n))
	}
	assert.False(t, tree.attached(dropped))
	assert.False(t, tree.attached(below))
	assert.False(t, tree.attached(a.newNode(HostText, "", nil)))

	// every parent's children are walked once
	assert.Len(t, tree.scanned, 2)
}

func TestBatcher(t *testing.T) {
	t.Run("flushes once when the outermost batch closes", func(t *testing.T) {
		b := NewBatcher()
		flushes := 0
		flush := func() error { flushes++; return nil }

		require.NoError(t, b.Batch(func() {
			b.Defer()
			require.NoError(t, b.Batch(func() { b.Defer() }, flush))
			assert.True(t, b.IsBatching())
			assert.Equal(t, 0, flushes)
		}, flush))

		assert.False(t, b.IsBatching())
		assert.Equal(t, 1, flushes)
	})

	t.Run("nothing deferred means nothing to flush", func(t *testing.T) {
		b := NewBatcher()
		require.NoError(t, b.Batch(func() {}, func() error { return errors.New("unexpected flush") }))
	})

	t.Run("returns the flush error", func(t *testing.T) {
		b := NewBatcher()
		err := b.Batch(b.Defer, func() error { return errors.New("render failed") })
		assert.EqualError(t, err, "render failed")
	})
}

func TestEffectFlags(t *testing.T) {
	var f EffectFlags
	f.set(Placement | UpdateEffect)
	assert.Equal(t, "Placement|Update", f.String())
	assert.True(t, f.hasSideEffects())

	f.replace(Placement|UpdateEffect, PerformedWork)
	assert.False(t, f.hasSideEffects())
}

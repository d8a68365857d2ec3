package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(slice time.Duration) (*Scheduler, *fakeclock.FakeClock) {
	clk := fakeclock.NewFakeClock(time.Unix(0, 0))
	return New(WithClock(clk), WithSliceDuration(slice)), clk
}

func logTask(log *[]string, name string) Callback {
	return func(bool) (Callback, error) {
		*log = append(*log, name)
		return nil, nil
	}
}

func TestScheduler(t *testing.T) {
	t.Run("runs tasks by priority then insertion order", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		log := []string{}

		s.Schedule(LowPriority, logTask(&log, "low"), Options{})
		s.Schedule(NormalPriority, logTask(&log, "normal 1"), Options{})
		s.Schedule(ImmediatePriority, logTask(&log, "immediate"), Options{})
		s.Schedule(NormalPriority, logTask(&log, "normal 2"), Options{})
		s.Schedule(UserBlockingPriority, logTask(&log, "user blocking"), Options{})

		require.NoError(t, s.Flush())
		assert.Equal(t, []string{"immediate", "user blocking", "normal 1", "normal 2", "low"}, log)
	})

	t.Run("cancelled tasks never run", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		log := []string{}

		s.Schedule(NormalPriority, logTask(&log, "a"), Options{})
		b := s.Schedule(NormalPriority, logTask(&log, "b"), Options{})
		s.Schedule(NormalPriority, logTask(&log, "c"), Options{})
		s.Cancel(b)
		s.Cancel(b)

		require.NoError(t, s.Flush())
		assert.Equal(t, []string{"a", "c"}, log)
		assert.True(t, b.Canceled())
	})

	t.Run("continuations keep the task in place", func(t *testing.T) {
		s, clk := newTestScheduler(10 * time.Millisecond)
		log := []string{}

		steps := 0
		var work Callback
		work = func(bool) (Callback, error) {
			steps++
			log = append(log, "work")
			clk.Increment(10 * time.Millisecond)
			if steps < 3 {
				return work, nil
			}
			return nil, nil
		}
		s.Schedule(NormalPriority, work, Options{})
		s.Schedule(NormalPriority, logTask(&log, "other"), Options{})

		more, err := s.Step()
		require.NoError(t, err)
		assert.True(t, more)
		assert.Equal(t, []string{"work"}, log)

		require.NoError(t, s.Flush())
		assert.Equal(t, []string{"work", "work", "work", "other"}, log)
	})

	t.Run("yields once the slice is used up", func(t *testing.T) {
		s, clk := newTestScheduler(5 * time.Millisecond)
		log := []string{}

		for _, name := range []string{"a", "b", "c"} {
			name := name
			s.Schedule(NormalPriority, func(bool) (Callback, error) {
				log = append(log, name)
				clk.Increment(3 * time.Millisecond)
				return nil, nil
			}, Options{})
		}

		more, err := s.Step()
		require.NoError(t, err)
		assert.True(t, more)
		assert.Equal(t, []string{"a", "b"}, log)

		more, err = s.Step()
		require.NoError(t, err)
		assert.False(t, more)
		assert.Equal(t, []string{"a", "b", "c"}, log)
	})

	t.Run("should yield is false outside of a task", func(t *testing.T) {
		s, clk := newTestScheduler(0)
		clk.Increment(time.Second)
		assert.False(t, s.ShouldYield())
	})

	t.Run("expired tasks run without yielding and know it", func(t *testing.T) {
		s, clk := newTestScheduler(0)
		timeouts := []bool{}

		for i := 0; i < 3; i++ {
			s.Schedule(UserBlockingPriority, func(didTimeout bool) (Callback, error) {
				timeouts = append(timeouts, didTimeout)
				return nil, nil
			}, Options{})
		}
		clk.Increment(time.Second)

		more, err := s.Step()
		require.NoError(t, err)
		assert.False(t, more)
		assert.Equal(t, []bool{true, true, true}, timeouts)
	})

	t.Run("delayed tasks wait for their start time", func(t *testing.T) {
		s, clk := newTestScheduler(time.Second)
		log := []string{}

		s.Schedule(ImmediatePriority, logTask(&log, "delayed"), Options{Delay: 100 * time.Millisecond})
		s.Schedule(IdlePriority, logTask(&log, "idle"), Options{})

		require.NoError(t, s.Flush())
		assert.Equal(t, []string{"idle"}, log)
		assert.Equal(t, 1, s.Delayed())

		clk.Increment(100 * time.Millisecond)
		require.NoError(t, s.Flush())
		assert.Equal(t, []string{"idle", "delayed"}, log)
		assert.Equal(t, 0, s.Delayed())
	})

	t.Run("ambient priority follows the running task", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		seen := []Priority{}

		s.Schedule(LowPriority, func(bool) (Callback, error) {
			seen = append(seen, s.CurrentPriority())
			s.WithPriority(ImmediatePriority, func() {
				seen = append(seen, s.CurrentPriority())
			})
			seen = append(seen, s.CurrentPriority())
			return nil, nil
		}, Options{})

		require.NoError(t, s.Flush())
		assert.Equal(t, []Priority{LowPriority, ImmediatePriority, LowPriority}, seen)
		assert.Equal(t, NormalPriority, s.CurrentPriority())
		assert.Equal(t, "user-blocking", RunWithPriority(s, UserBlockingPriority, func() string {
			return s.CurrentPriority().String()
		}))
	})

	t.Run("failing task is dropped and the error surfaces", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		log := []string{}
		boom := errors.New("boom")

		s.Schedule(NormalPriority, func(bool) (Callback, error) { return nil, boom }, Options{})
		s.Schedule(NormalPriority, logTask(&log, "after"), Options{})

		err := s.Flush()
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)

		require.NoError(t, s.Flush())
		assert.Equal(t, []string{"after"}, log)
	})

	t.Run("panicking task becomes an error", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)

		s.Schedule(NormalPriority, func(bool) (Callback, error) { panic("oops") }, Options{})

		err := s.Flush()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oops")
		assert.False(t, s.Pending())
	})

	t.Run("step from inside a task is rejected", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		var inner error

		s.Schedule(NormalPriority, func(bool) (Callback, error) {
			_, inner = s.Step()
			return nil, nil
		}, Options{})

		require.NoError(t, s.Flush())
		assert.ErrorIs(t, inner, ErrReentrantStep)
	})

	t.Run("posted work runs on the loop", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		s.Schedule(IdlePriority, func(bool) (Callback, error) { return nil, nil }, Options{})

		var wg sync.WaitGroup
		var mu sync.Mutex
		count := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.False(t, s.OnLoop())
				s.Post(func() {
					mu.Lock()
					count++
					mu.Unlock()
				})
			}()
		}
		wg.Wait()

		require.NoError(t, s.Flush())
		assert.Equal(t, 10, count)
	})

	t.Run("a failing post does not drop the ones after it", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		s.Schedule(IdlePriority, func(bool) (Callback, error) { return nil, nil }, Options{})
		ran := []int{}

		done := make(chan struct{})
		go func() {
			s.Post(func() { panic("first fails") })
			s.Post(func() { ran = append(ran, 2) })
			s.Post(func() { panic("third fails") })
			close(done)
		}()
		<-done

		_, err := s.Step()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "first fails")
		assert.Contains(t, err.Error(), "third fails")
		assert.Equal(t, []int{2}, ran)

		require.NoError(t, s.Flush())
		assert.Equal(t, []int{2}, ran)
	})

	t.Run("scheduling from another goroutine panics", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		s.Schedule(NormalPriority, func(bool) (Callback, error) { return nil, nil }, Options{})

		done := make(chan any)
		go func() {
			defer func() { done <- recover() }()
			s.Schedule(NormalPriority, func(bool) (Callback, error) { return nil, nil }, Options{})
		}()
		assert.Equal(t, ErrWrongGoroutine, <-done)
	})

	t.Run("run stops when the context is done", func(t *testing.T) {
		s, _ := newTestScheduler(time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		log := []string{}

		s.Schedule(NormalPriority, func(bool) (Callback, error) {
			log = append(log, "ran")
			cancel()
			return nil, nil
		}, Options{})

		err := s.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []string{"ran"}, log)
	})
}

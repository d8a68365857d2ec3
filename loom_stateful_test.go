package loom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterUnit struct {
	log  *[]string
	inst **Instance
}

func (u *counterUnit) Render(inst *Instance) (*Element, error) {
	*u.inst = inst
	return Text(fmt.Sprintf("%s %v", PropsOf[string](inst), inst.State["n"])), nil
}

func (u *counterUnit) DidMount(inst *Instance) error {
	*u.log = append(*u.log, "mount")
	return nil
}

func (u *counterUnit) SnapshotBeforeUpdate(inst *Instance, prevProps any, prevState State) (any, error) {
	return prevState["n"], nil
}

func (u *counterUnit) DidUpdate(inst *Instance, prevProps any, prevState State, snapshot any) error {
	*u.log = append(*u.log, fmt.Sprintf("update from %v", snapshot))
	return nil
}

func (u *counterUnit) WillUnmount(inst *Instance) error {
	*u.log = append(*u.log, "unmount")
	return nil
}

type evenUnit struct {
	renders *int
	inst    **Instance
}

func (u *evenUnit) Render(inst *Instance) (*Element, error) {
	*u.renders++
	*u.inst = inst
	return Text(fmt.Sprint(inst.State["n"])), nil
}

func (u *evenUnit) ShouldUpdate(inst *Instance, nextProps any, nextState State) bool {
	return nextState["n"].(int)%2 == 0
}

type catcherUnit struct {
	caught *[]string
}

func (u *catcherUnit) Render(inst *Instance) (*Element, error) {
	if err, _ := inst.State["err"].(error); err != nil {
		return Text("recovered: " + err.Error()), nil
	}
	return PropsOf[*Element](inst), nil
}

func (u *catcherUnit) DerivedStateFromError(err error) State {
	return State{"err": err}
}

func (u *catcherUnit) DidCatch(inst *Instance, err error) {
	*u.caught = append(*u.caught, err.Error())
}

func TestStateful(t *testing.T) {
	t.Run("runs lifecycle callbacks around commits", func(t *testing.T) {
		h := newHarness(t)
		log := []string{}
		var inst *Instance

		counter := NewStateful("Counter",
			func(string) Stateful { return &counterUnit{log: &log, inst: &inst} },
			func(string) State { return State{"n": 0} },
		)

		h.render(C(counter, "a"))
		assert.Equal(t, "a 0", h.html())
		assert.Equal(t, []string{"mount"}, log)

		inst.SetState(State{"n": 1}, func() error {
			log = append(log, "callback")
			return nil
		})
		h.flush()
		assert.Equal(t, "a 1", h.html())
		assert.Equal(t, []string{"mount", "update from 0", "callback"}, log)

		h.render(C(counter, "b"))
		assert.Equal(t, "b 1", h.html())

		require.NoError(t, h.root.Unmount())
		assert.Equal(t, "unmount", log[len(log)-1])

		inst.SetState(State{"n": 2}, nil)
		warnings := h.warnings()
		require.Len(t, warnings, 1)
		assert.Equal(t, ErrCodeUpdateOnUnmounted, warnings[0]["code"])
	})

	t.Run("functional set state sees the latest state", func(t *testing.T) {
		h := newHarness(t)
		log := []string{}
		var inst *Instance

		counter := NewStateful("Counter",
			func(string) Stateful { return &counterUnit{log: &log, inst: &inst} },
			func(string) State { return State{"n": 0} },
		)
		h.render(C(counter, "c"))

		require.NoError(t, h.root.Batch(func() {
			for i := 0; i < 3; i++ {
				inst.SetStateFunc(func(prev State, _ any) State {
					return State{"n": prev["n"].(int) + 1}
				}, nil)
			}
		}))
		assert.Equal(t, "c 3", h.html())
	})

	t.Run("update gate skips renders", func(t *testing.T) {
		h := newHarness(t)
		renders := 0
		var inst *Instance

		even := NewStateful("Even",
			func(struct{}) Stateful { return &evenUnit{renders: &renders, inst: &inst} },
			func(struct{}) State { return State{"n": 0} },
		)
		h.render(C(even, struct{}{}))

		inst.SetState(State{"n": 1}, nil)
		h.flush()
		assert.Equal(t, "0", h.html())
		assert.Equal(t, 1, renders)

		inst.SetState(State{"n": 2}, nil)
		h.flush()
		assert.Equal(t, "2", h.html())
		assert.Equal(t, 2, renders)

		inst.ForceUpdate(nil)
		h.flush()
		assert.Equal(t, 3, renders)
	})

	t.Run("error catcher renders its recovered state", func(t *testing.T) {
		h := newHarness(t)
		caught := []string{}

		boom := NewComponent("Boom", func(s *Scope, _ struct{}) (*Element, error) {
			return nil, fmt.Errorf("kaput")
		})
		catcher := NewStateful("Catcher",
			func(*Element) Stateful { return &catcherUnit{caught: &caught} },
			nil,
		)

		h.render(H("div", nil, C(catcher, C(boom, struct{}{})), Text("after")))
		assert.Equal(t, "<div>recovered: kaputafter</div>", h.html())
		assert.Equal(t, []string{"kaput"}, caught)
		assert.Empty(t, h.uncaught)
	})
}

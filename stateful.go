package loom

import "github.com/AnatoleLucet/loom/internal"

type (
	State    = internal.State
	Instance = internal.Instance

	// Stateful is a unit keeping its state on an Instance rather than in
	// hooks. It may also implement any of the lifecycle interfaces below.
	Stateful = internal.Stateful

	Mounter      = internal.Mounter
	Updater      = internal.Updater
	Unmounter    = internal.Unmounter
	Snapshotter  = internal.Snapshotter
	UpdateGate   = internal.UpdateGate
	ErrorCatcher = internal.ErrorCatcher
)

// StatefulComponent declares a stateful unit taking props of type P.
type StatefulComponent[P any] struct {
	t *internal.StatefulType
}

// NewStateful declares a stateful unit. create builds the unit once per
// mounted instance; initial, when not nil, gives its first state.
func NewStateful[P any](name string, create func(props P) Stateful, initial func(props P) State) *StatefulComponent[P] {
	t := &internal.StatefulType{
		Name: name,
		New:  func(props any) Stateful { return create(as[P](props)) },
	}
	if initial != nil {
		t.InitialState = func(props any) State { return initial(as[P](props)) }
	}
	return &StatefulComponent[P]{t}
}

func (c *StatefulComponent[P]) kind() internal.Kind { return internal.StatefulComponent }
func (c *StatefulComponent[P]) typ() any            { return c.t }

// PropsOf returns the current props of inst as P.
func PropsOf[P any](inst *Instance) P {
	return as[P](inst.Props)
}

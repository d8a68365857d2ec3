package loom

import (
	"github.com/AnatoleLucet/loom/internal"
)

type Scope = internal.Scope

// Renderable is a component that can be instantiated with props of type P.
type Renderable[P any] interface {
	kind() internal.Kind
	typ() any
}

// Component is a render function with hooks.
type Component[P any] struct {
	t *internal.ComponentType
}

// NewComponent declares a function component. render is called with a scope
// to call hooks on and returns at most one element.
func NewComponent[P any](name string, render func(s *Scope, props P) (*Element, error)) *Component[P] {
	return &Component[P]{
		&internal.ComponentType{
			Name: name,
			Render: func(s *internal.Scope, props any) (*Element, error) {
				return render(s, as[P](props))
			},
		},
	}
}

func (c *Component[P]) kind() internal.Kind { return internal.FunctionComponent }
func (c *Component[P]) typ() any            { return c.t }

// C describes an instance of component c with props.
func C[P any](c Renderable[P], props P) *Element {
	return &Element{
		Kind:  c.kind(),
		Type:  c.typ(),
		Props: props,
	}
}

// UseState keeps a value across renders. Setting it to an equal value does
// not schedule a render.
func UseState[T any](s *Scope, initial T) (T, func(T)) {
	v, dispatch := s.UseState(initial)
	return as[T](v), func(next T) { dispatch(next) }
}

// UseStateFunc is UseState with a setter that computes the next value from
// the latest one.
func UseStateFunc[T any](s *Scope, initial T) (T, func(func(prev T) T)) {
	v, dispatch := s.UseState(initial)
	return as[T](v), func(fn func(prev T) T) {
		dispatch(func(prev any) any { return fn(as[T](prev)) })
	}
}

// UseReducer keeps a state that changes by dispatching actions to reducer.
func UseReducer[S, A any](s *Scope, reducer func(state S, action A) S, initial S) (S, func(A)) {
	v, dispatch := s.UseReducer(func(state, action any) any {
		return reducer(as[S](state), as[A](action))
	}, initial)
	return as[S](v), func(action A) { dispatch(action) }
}

// UseEffect runs create after the commit, once the host tree is updated.
// The function create returns, if any, runs before the next create and on
// unmount. A nil deps runs the effect after every render; otherwise it only
// runs again when one of deps changed.
func UseEffect(s *Scope, create func() func(), deps []any) {
	s.UseEffect(create, deps)
}

// UseLayoutEffect is UseEffect run synchronously during the commit.
func UseLayoutEffect(s *Scope, create func() func(), deps []any) {
	s.UseLayoutEffect(create, deps)
}

// Deps builds a dependency list. Deps() with no values runs an effect only
// on mount.
func Deps(values ...any) []any {
	if values == nil {
		return []any{}
	}
	return values
}

// UseMemo caches the result of compute until one of deps changes.
func UseMemo[T any](s *Scope, compute func() T, deps []any) T {
	return as[T](s.UseMemo(func() any { return compute() }, deps))
}

// UseRef returns the same ref on every render.
func UseRef(s *Scope, initial any) *Ref {
	return s.UseRef(initial)
}

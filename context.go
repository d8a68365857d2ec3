package loom

import "github.com/AnatoleLucet/loom/internal"

// Context passes a value down the tree without threading it through props.
type Context[T any] struct {
	ctx *internal.ContextType
}

// NewContext creates a context read as def below no provider.
func NewContext[T any](name string, def T) *Context[T] {
	return &Context[T]{
		&internal.ContextType{Name: name, Default: def},
	}
}

// Provide makes value the context's value for children.
func (c *Context[T]) Provide(value T, children ...*Element) *Element {
	return &Element{
		Kind:     internal.ContextProvider,
		Type:     c.ctx,
		Props:    internal.ProviderProps{Value: value},
		Children: children,
	}
}

// Consume renders the result of render with the nearest provided value.
func (c *Context[T]) Consume(render func(value T) *Element) *Element {
	return &Element{
		Kind: internal.ContextConsumer,
		Type: c.ctx,
		Props: internal.ConsumerProps{
			Render: func(v any) *Element { return render(as[T](v)) },
		},
	}
}

// UseContext reads the nearest provided value of ctx and re-renders the
// component when it changes.
func UseContext[T any](s *Scope, ctx *Context[T]) T {
	return as[T](s.UseContext(ctx.ctx))
}

package loom

import "github.com/AnatoleLucet/loom/internal"

type (
	Element = internal.Element
	Ref     = internal.Ref
)

// H describes a host element.
func H(tag string, props Props, children ...*Element) *Element {
	return &Element{
		Kind:     internal.HostComponent,
		Type:     tag,
		Props:    props,
		Children: children,
	}
}

// Text describes a host text node.
func Text(s string) *Element {
	return &Element{Kind: internal.HostText, Text: s}
}

// Fragment groups children without adding a host node.
func Fragment(children ...*Element) *Element {
	return &Element{Kind: internal.Fragment, Children: children}
}

// Portal renders children into another host container.
func Portal(container any, children ...*Element) *Element {
	return &Element{
		Kind:     internal.HostPortal,
		Props:    internal.PortalProps{Container: container},
		Children: children,
	}
}

// ErrorBoundary renders children, or fallback once one of them failed to
// render. Calling reset from the fallback retries the children.
func ErrorBoundary(fallback func(err error, reset func()) *Element, children ...*Element) *Element {
	return &Element{
		Kind:     internal.ErrorBoundary,
		Props:    internal.ErrorBoundaryProps{Fallback: fallback},
		Children: children,
	}
}

// OnError returns a copy of the error boundary el that also reports every
// captured error to fn.
func OnError(el *Element, fn func(err error)) *Element {
	props, ok := el.Props.(internal.ErrorBoundaryProps)
	if !ok {
		return el
	}
	props.OnError = fn

	cp := *el
	cp.Props = props
	return &cp
}

// Suspense renders fallback in place of children while one of them is
// suspended.
func Suspense(fallback *Element, children ...*Element) *Element {
	return &Element{
		Kind:     internal.SuspenseBoundary,
		Props:    internal.SuspenseProps{Fallback: fallback},
		Children: children,
	}
}

// Keyed returns a copy of el identified by key among its siblings.
func Keyed(key string, el *Element) *Element {
	cp := *el
	cp.Key = key
	return &cp
}

// WithRef returns a copy of el whose committed instance is stored in ref.
func WithRef(ref *Ref, el *Element) *Element {
	cp := *el
	cp.Ref = ref
	return &cp
}
